package domain

import "time"

// Member is one participant in a scope. The identifier is assigned by
// account provisioning and never changes; only the display name may drift.
type Member struct {
	MemberID    string    `json:"member_id"`
	DisplayName string    `json:"display_name"`
	JoinedAt    time.Time `json:"joined_at"`
}
