package domain

import "time"

// Direction is a member's binary decision on an item.
type Direction string

const (
	DirectionRight Direction = "right"
	DirectionLeft  Direction = "left"
)

// Valid reports whether the direction is one of the two known values.
func (d Direction) Valid() bool {
	return d == DirectionRight || d == DirectionLeft
}

// Vote is a member's most recent decision for one (scope, item) key. There
// is at most one Vote per (scope, item, member); a new vote overwrites the
// prior one, it is never appended.
type Vote struct {
	ScopeID  string       `json:"scope_id"`
	ItemID   string       `json:"item_id"`
	MemberID string       `json:"member_id"`
	Dir      Direction    `json:"direction"`
	Snapshot ItemSnapshot `json:"snapshot"`
	VotedAt  time.Time    `json:"voted_at"`
}

// VoteRequest is a vote submission. ScopeID may be empty, in which case the
// vote lands in the member's solo scope and is never evaluated for consensus.
type VoteRequest struct {
	ScopeID  string       `json:"scope_id,omitempty"`
	Dir      Direction    `json:"direction"`
	Snapshot ItemSnapshot `json:"item"`
}

// VoteResponse reports the outcome of a submission. Match is non-nil only
// when this vote completed (or re-observed) group consensus on the item.
type VoteResponse struct {
	ScopeID string       `json:"scope_id"`
	ItemID  string       `json:"item_id"`
	Dir     Direction    `json:"direction"`
	VotedAt time.Time    `json:"voted_at"`
	Match   *MatchRecord `json:"match,omitempty"`
}
