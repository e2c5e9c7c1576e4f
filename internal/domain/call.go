package domain

import (
	"time"

	"github.com/google/uuid"
)

// CallType represents the media type of a call
type CallType string

const (
	CallTypeVideo CallType = "VIDEO"
	CallTypeAudio CallType = "AUDIO"
)

// CallStatus represents the lifecycle state of a call.
// ACTIVE is the only non-terminal status; a call transitions out of it
// exactly once.
type CallStatus string

const (
	CallStatusActive    CallStatus = "ACTIVE"
	CallStatusCompleted CallStatus = "COMPLETED"
	CallStatusCancelled CallStatus = "CANCELLED"
)

// Call represents a 1:1 call between two matched users.
// Maps to the CockroachDB calls table.
type Call struct {
	ID              uuid.UUID  `json:"call_id" db:"call_id"`
	User1ID         int64      `json:"user1_id" db:"user1_id"`
	User2ID         int64      `json:"user2_id" db:"user2_id"`
	Type            CallType   `json:"call_type" db:"call_type"`
	Status          CallStatus `json:"status" db:"status"`
	StartedAt       time.Time  `json:"started_at" db:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	DurationSeconds *int       `json:"duration_seconds,omitempty" db:"duration_seconds"`
}

// NewCall creates a fresh ACTIVE call between two users
func NewCall(user1ID, user2ID int64, callType CallType) *Call {
	return &Call{
		ID:        uuid.New(),
		User1ID:   user1ID,
		User2ID:   user2ID,
		Type:      callType,
		Status:    CallStatusActive,
		StartedAt: time.Now().UTC(),
	}
}

// IsTerminal reports whether the call has reached a terminal status
func (c *Call) IsTerminal() bool {
	return c.Status != CallStatusActive
}

// PartnerOf returns the other participant of the call, and false when the
// given user is not a participant at all
func (c *Call) PartnerOf(userID int64) (int64, bool) {
	switch userID {
	case c.User1ID:
		return c.User2ID, true
	case c.User2ID:
		return c.User1ID, true
	default:
		return 0, false
	}
}

// Finalize moves the call into the given terminal status, stamping EndedAt
// and deriving DurationSeconds as whole seconds since StartedAt.
// It must only be applied to an ACTIVE call; callers check IsTerminal first.
func (c *Call) Finalize(status CallStatus, endedAt time.Time) {
	c.Status = status
	c.EndedAt = &endedAt
	duration := int(endedAt.Sub(c.StartedAt).Seconds())
	if duration < 0 {
		duration = 0
	}
	c.DurationSeconds = &duration
}
