package repository

import (
	"time"

	"github.com/google/uuid"
)

// Action is the kind of punch a time entry records.
type Action string

const (
	ActionClockIn  Action = "clock_in"
	ActionClockOut Action = "clock_out"
)

// Opposite returns the other punch action.
func (a Action) Opposite() Action {
	if a == ActionClockIn {
		return ActionClockOut
	}
	return ActionClockIn
}

// Valid reports whether a is a known punch action.
func (a Action) Valid() bool {
	return a == ActionClockIn || a == ActionClockOut
}

// PhotoStatus is the lifecycle state of a time entry's audit photo.
// Transitions only move forward: none -> pending -> uploaded or failed.
type PhotoStatus string

const (
	PhotoStatusNone     PhotoStatus = "none"
	PhotoStatusPending  PhotoStatus = "pending"
	PhotoStatusUploaded PhotoStatus = "uploaded"
	PhotoStatusFailed   PhotoStatus = "failed"
)

// StaffCredential represents a staff member's terminal credential in the database.
// Rows are never deleted, only deactivated.
type StaffCredential struct {
	ID             int64      `db:"id"`
	Name           string     `db:"name"`
	PinHash        string     `db:"pin_hash"`
	Active         bool       `db:"active"`
	FailedAttempts int        `db:"failed_attempts"`
	LockedUntil    *time.Time `db:"locked_until"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

// IsLocked reports whether the credential is inside its lockout window at now.
func (c *StaffCredential) IsLocked(now time.Time) bool {
	return c.LockedUntil != nil && c.LockedUntil.After(now)
}

// LockRemaining returns the time left in the lockout window at now,
// or zero if the credential is not locked.
func (c *StaffCredential) LockRemaining(now time.Time) time.Duration {
	if !c.IsLocked(now) {
		return 0
	}
	return c.LockedUntil.Sub(now)
}

// TimeEntry represents one recorded punch. Entries are immutable after
// creation except for the photo fields, and are never deleted.
type TimeEntry struct {
	ID          uuid.UUID   `db:"id"`
	StaffID     int64       `db:"staff_id"`
	Action      Action      `db:"action"`
	Timestamp   time.Time   `db:"timestamp"`
	PhotoStatus PhotoStatus `db:"photo_status"`
	PhotoRef    *string     `db:"photo_ref"`
	DeviceInfo  *string     `db:"device_info"`
	CreatedAt   time.Time   `db:"created_at"`
}

// ListEntryParams holds parameters for listing time entries
type ListEntryParams struct {
	Page        int
	Limit       int
	StaffID     *int64
	Action      *Action
	PhotoStatus *PhotoStatus
	FromTime    *time.Time
	ToTime      *time.Time
	Order       string
}
