package events

import "time"

// Event type constants
const (
	EventTypeConnected       = "connected"
	EventTypeHeartbeat       = "heartbeat"
	EventTypePunchRecorded   = "punch_recorded"
	EventTypePhotoStatus     = "photo_status"
	EventTypeStaffLocked     = "staff_locked"
	EventTypeStaffUnlocked   = "staff_unlocked"
	EventTypeConnectionLimit = "connection_limit"
	EventTypeError           = "error"
)

// ConnectedEvent is sent when a client establishes a stream connection.
type ConnectedEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// HeartbeatEvent is sent periodically to keep the connection alive.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// PunchRecordedEvent is sent when a new time entry is recorded. Deduplicated
// punches reuse an existing entry and do not produce an event.
type PunchRecordedEvent struct {
	EntryID   string    `json:"entry_id"`
	StaffID   int64     `json:"staff_id"`
	StaffName string    `json:"staff_name"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
	HasPhoto  bool      `json:"has_photo"`
}

// PhotoStatusEvent is sent when an entry's photo finishes processing.
// Storage keys stay internal; clients fetch photos through the presigned
// URL endpoint.
type PhotoStatusEvent struct {
	EntryID  string `json:"entry_id"`
	StaffID  int64  `json:"staff_id"`
	Status   string `json:"status"`
	HasPhoto bool   `json:"has_photo"`
}

// StaffLockedEvent is sent when repeated failed attempts lock a credential.
type StaffLockedEvent struct {
	StaffID     int64     `json:"staff_id"`
	StaffName   string    `json:"staff_name"`
	LockedUntil time.Time `json:"locked_until"`
}

// StaffUnlockedEvent is sent when an administrator clears a lockout.
type StaffUnlockedEvent struct {
	StaffID   int64     `json:"staff_id"`
	StaffName string    `json:"staff_name"`
	ClearedAt time.Time `json:"cleared_at"`
}

// ConnectionLimitEvent is sent when a client exceeds the connection limit.
type ConnectionLimitEvent struct {
	Message        string `json:"message"`
	MaxConnections int    `json:"max_connections"`
}

// ErrorEvent is sent when an error occurs.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
