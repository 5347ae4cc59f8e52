package punch

import (
	"github.com/lengolf/timeclock/backend/internal/repository"
)

// PunchRequest is the body of POST /api/v1/punch.
//
// Photo carries an optional base64-encoded JPEG or PNG capture. It is
// deliberately not validated here: a punch with an undecodable or oversized
// photo still succeeds and the entry records the photo as failed.
type PunchRequest struct {
	Pin        string `json:"pin" validate:"required,len=6,numeric"`
	Photo      string `json:"photo,omitempty"`
	DeviceInfo string `json:"deviceInfo,omitempty" validate:"omitempty,max=512"`
}

// PunchResponse is the wire shape for every punch outcome, success or not.
type PunchResponse struct {
	Success              bool   `json:"success"`
	StaffName            string `json:"staffName,omitempty"`
	Action               string `json:"action,omitempty"`
	Timestamp            string `json:"timestamp,omitempty"`
	PhotoAccepted        *bool  `json:"photoAccepted,omitempty"`
	Locked               bool   `json:"locked,omitempty"`
	LockRemainingSeconds int    `json:"lockRemainingSeconds,omitempty"`
	Message              string `json:"message,omitempty"`
}

// Result is the outcome of a successfully resolved punch.
type Result struct {
	Entry     repository.TimeEntry
	StaffName string

	// Deduped reports that an identical recent punch already existed and
	// Entry refers to that prior entry rather than a new one.
	Deduped bool

	// PhotoAccepted is nil when no photo was involved, otherwise whether
	// the submitted capture passed validation and was queued for upload.
	PhotoAccepted *bool
}
