package domain

import "time"

// MatchStatus is the lifecycle state of a materialized match. Identity and
// creation-time snapshot fields never change after creation; only the status
// moves.
type MatchStatus string

const (
	MatchStatusActive   MatchStatus = "active"
	MatchStatusResolved MatchStatus = "resolved"
	MatchStatusArchived MatchStatus = "archived"
)

// Valid reports whether the status is a known lifecycle state.
func (s MatchStatus) Valid() bool {
	return s == MatchStatusActive || s == MatchStatusResolved || s == MatchStatusArchived
}

// MatchRecord is the persisted artifact of group agreement on one item. At
// most one record is ever created per (scope, item), for the lifetime of the
// scope.
type MatchRecord struct {
	MatchID          string       `json:"match_id"`
	ScopeID          string       `json:"scope_id"`
	ItemID           string       `json:"item_id"`
	MemberIDs        []string     `json:"member_ids"` // roster snapshot at creation
	RequiredCount    int          `json:"required_count"`
	AffirmativeCount int          `json:"affirmative_count"`
	Unanimous        bool         `json:"unanimous"`
	Status           MatchStatus  `json:"status"`
	Snapshot         ItemSnapshot `json:"snapshot"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// MatchStatusRequest asks for a status transition on an existing match.
type MatchStatusRequest struct {
	ScopeID string      `json:"scope_id"`
	ItemID  string      `json:"item_id"`
	Status  MatchStatus `json:"status"`
}
