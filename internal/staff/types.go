package staff

import (
	"time"

	"github.com/lengolf/timeclock/backend/internal/repository"
)

// StaffView is the wire shape for a staff credential. The PIN hash never
// leaves the repository layer.
type StaffView struct {
	ID             int64      `json:"id"`
	Name           string     `json:"name"`
	Active         bool       `json:"active"`
	FailedAttempts int        `json:"failed_attempts"`
	Locked         bool       `json:"locked"`
	LockedUntil    *time.Time `json:"locked_until,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// NewStaffView converts a credential to its wire shape, evaluating the lock
// state at now
func NewStaffView(cred *repository.StaffCredential, now time.Time) StaffView {
	view := StaffView{
		ID:             cred.ID,
		Name:           cred.Name,
		Active:         cred.Active,
		FailedAttempts: cred.FailedAttempts,
		Locked:         cred.IsLocked(now),
		CreatedAt:      cred.CreatedAt,
		UpdatedAt:      cred.UpdatedAt,
	}
	if view.Locked {
		view.LockedUntil = cred.LockedUntil
	}
	return view
}

// CreateStaffRequest is the body of POST /api/v1/staff
type CreateStaffRequest struct {
	Name string `json:"name" validate:"required,min=1,max=128"`
	Pin  string `json:"pin" validate:"required,len=6,numeric"`
}

// ResetPinRequest is the body of POST /api/v1/staff/{id}/pin
type ResetPinRequest struct {
	Pin string `json:"pin" validate:"required,len=6,numeric"`
}

// ListStaffResponse wraps a staff listing
type ListStaffResponse struct {
	Staff []StaffView `json:"staff"`
	Total int         `json:"total"`
}
