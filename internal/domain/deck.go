package domain

import "time"

// Deck is the shared ordered candidate sequence for one scope. All members
// vote against the same deck; it is regenerated (generation+1) only once
// every member has voted on every item in it.
type Deck struct {
	ScopeID    string    `json:"scope_id"`
	Generation int       `json:"generation"`
	ItemIDs    []string  `json:"item_ids"`
	CreatedAt  time.Time `json:"created_at"`
}

// Candidate pairs an item identifier with its current display metadata as
// served by the external catalog.
type Candidate struct {
	ItemID   string       `json:"item_id"`
	Snapshot ItemSnapshot `json:"snapshot"`
}
