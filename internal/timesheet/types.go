package timesheet

import (
	"time"

	"github.com/lengolf/timeclock/backend/internal/repository"
)

// EntryView is the wire representation of a time entry. Timestamps are
// rendered in the business timezone. The raw storage key in photo_ref is
// internal; clients fetch photos through the presigned URL endpoint.
type EntryView struct {
	ID          string    `json:"id"`
	StaffID     int64     `json:"staff_id"`
	Action      string    `json:"action"`
	Timestamp   time.Time `json:"timestamp"`
	PhotoStatus string    `json:"photo_status"`
	HasPhoto    bool      `json:"has_photo"`
	DeviceInfo  *string   `json:"device_info,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewEntryView converts a repository entry for the wire.
func NewEntryView(e repository.TimeEntry, loc *time.Location) EntryView {
	return EntryView{
		ID:          e.ID.String(),
		StaffID:     e.StaffID,
		Action:      string(e.Action),
		Timestamp:   e.Timestamp.In(loc),
		PhotoStatus: string(e.PhotoStatus),
		HasPhoto:    e.PhotoStatus == repository.PhotoStatusUploaded,
		DeviceInfo:  e.DeviceInfo,
		CreatedAt:   e.CreatedAt.In(loc),
	}
}

// ListEntriesResponse is the payload for entry listings.
type ListEntriesResponse struct {
	Entries []EntryView `json:"entries"`
	Total   int         `json:"total"`
	Page    int         `json:"page"`
	Limit   int         `json:"limit"`
}

// PhotoURLResponse carries a presigned photo download URL.
type PhotoURLResponse struct {
	URL              string `json:"url"`
	ExpiresInSeconds int64  `json:"expires_in_seconds"`
}

// Session is one paired clock-in/clock-out block within a day summary.
// A session cut off by the day boundary has one side missing, Complete
// false, and contributes nothing to the day's total.
type Session struct {
	ClockIn         *time.Time `json:"clock_in,omitempty"`
	ClockOut        *time.Time `json:"clock_out,omitempty"`
	DurationSeconds int64      `json:"duration_seconds"`
	Complete        bool       `json:"complete"`
}

// DaySummary is the per-staff work summary for one local calendar day.
type DaySummary struct {
	StaffID            int64       `json:"staff_id"`
	StaffName          string      `json:"staff_name"`
	Date               string      `json:"date"`
	Timezone           string      `json:"timezone"`
	Sessions           []Session   `json:"sessions"`
	TotalWorkedSeconds int64       `json:"total_worked_seconds"`
	Entries            []EntryView `json:"entries"`
}
