package types

import "time"

// ActionKind is the outcome recorded by an admin decision.
type ActionKind string

const (
	ActionApproved ActionKind = "approved"
	ActionRejected ActionKind = "rejected"
	ActionReopened ActionKind = "reopened"
)

// AdminAction is an append-only audit record of an admin decision on a
// profile. Records are never updated or deleted, and they outlive the
// profile they reference.
type AdminAction struct {
	ID        int        `json:"id" db:"id"`
	AdminID   int        `json:"admin_id" db:"admin_id"`
	ProfileID int        `json:"profile_id" db:"profile_id"`
	Action    ActionKind `json:"action" db:"action"`

	// FromStatus and ToStatus capture the transition the action applied.
	FromStatus Status `json:"from_status" db:"from_status"`
	ToStatus   Status `json:"to_status" db:"to_status"`

	Notes     string    `json:"notes,omitempty" db:"notes"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
