// Package timesheet exposes recorded time entries to the admin dashboard:
// filtered listings, per-entry photo access through short-lived presigned
// URLs, and per-staff daily summaries with paired work sessions.
//
// Everything here is read-only. Entries are written by the punch service
// and settled by the photo pipeline; this package never mutates them.
package timesheet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lengolf/timeclock/backend/internal/repository"
)

var (
	// ErrNoPhoto is returned when an entry has no uploaded photo to serve.
	ErrNoPhoto = errors.New("entry has no uploaded photo")

	// ErrStorageUnavailable is returned when photo storage is not configured,
	// so presigned URLs cannot be generated.
	ErrStorageUnavailable = errors.New("photo storage not configured")

	// ErrInvalidDate is returned when a day summary date cannot be parsed.
	ErrInvalidDate = errors.New("invalid date, expected YYYY-MM-DD")
)

// daySummaryDateFormat is the wire format for day summary dates.
const daySummaryDateFormat = "2006-01-02"

// Presigner generates short-lived download URLs for stored photo objects.
// Implemented by storage.StorageService.
type Presigner interface {
	PresignGet(ctx context.Context, key string) (string, time.Duration, error)
}

// Service reads time entries for the admin surfaces.
type Service struct {
	entries repository.TimeEntryRepository
	creds   repository.CredentialRepository
	presign Presigner
	logger  *slog.Logger
	loc     *time.Location
	nowFunc func() time.Time
}

// ServiceConfig holds the dependencies for creating a timesheet Service.
type ServiceConfig struct {
	Entries     repository.TimeEntryRepository
	Credentials repository.CredentialRepository
	// Presigner may be nil when object storage is not configured;
	// photo URL requests then fail with ErrStorageUnavailable.
	Presigner Presigner
	Logger    *slog.Logger
	// Location is the business timezone used to bound day summaries.
	Location *time.Location
	// NowFunc overrides the clock in tests.
	NowFunc func() time.Time
}

// NewService creates a timesheet Service.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	nowFunc := cfg.NowFunc
	if nowFunc == nil {
		nowFunc = time.Now
	}
	return &Service{
		entries: cfg.Entries,
		creds:   cfg.Credentials,
		presign: cfg.Presigner,
		logger:  logger,
		loc:     loc,
		nowFunc: nowFunc,
	}
}

// Location returns the business timezone entries are rendered in.
func (s *Service) Location() *time.Location {
	return s.loc
}

// List returns a filtered page of time entries plus the total match count.
func (s *Service) List(ctx context.Context, params repository.ListEntryParams) ([]repository.TimeEntry, int, error) {
	return s.entries.List(ctx, params)
}

// Get returns a single time entry by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*repository.TimeEntry, error) {
	return s.entries.GetByID(ctx, id)
}

// PhotoURL returns a presigned download URL for an entry's photo along with
// its validity window. Only entries whose photo finished uploading have one.
func (s *Service) PhotoURL(ctx context.Context, id uuid.UUID) (string, time.Duration, error) {
	entry, err := s.entries.GetByID(ctx, id)
	if err != nil {
		return "", 0, err
	}
	if entry.PhotoStatus != repository.PhotoStatusUploaded || entry.PhotoRef == nil {
		return "", 0, ErrNoPhoto
	}
	if s.presign == nil {
		return "", 0, ErrStorageUnavailable
	}

	url, expiry, err := s.presign.PresignGet(ctx, *entry.PhotoRef)
	if err != nil {
		return "", 0, fmt.Errorf("failed to presign photo URL: %w", err)
	}
	return url, expiry, nil
}

// DaySummary builds the work summary for one staff member on one local day.
// An empty date means today in the business timezone.
func (s *Service) DaySummary(ctx context.Context, staffID int64, date string) (*DaySummary, error) {
	cred, err := s.creds.GetByID(ctx, staffID)
	if err != nil {
		return nil, err
	}

	var day time.Time
	if date == "" {
		now := s.nowFunc().In(s.loc)
		day = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	} else {
		parsed, err := time.ParseInLocation(daySummaryDateFormat, date, s.loc)
		if err != nil {
			return nil, ErrInvalidDate
		}
		day = parsed
	}

	// The day window is [midnight, next midnight) in the business zone.
	// AddDate survives DST transitions where the local day is not 24h.
	dayStart := day
	dayEnd := day.AddDate(0, 0, 1)

	entries, _, err := s.entries.List(ctx, repository.ListEntryParams{
		StaffID:  &staffID,
		FromTime: &dayStart,
		ToTime:   &dayEnd,
		Order:    "asc",
		Limit:    maxDayEntries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load day entries: %w", err)
	}
	if len(entries) == maxDayEntries {
		s.logger.Warn("day summary truncated", "staff_id", staffID, "date", dayStart.Format(daySummaryDateFormat), "limit", maxDayEntries)
	}

	summary := &DaySummary{
		StaffID:   staffID,
		StaffName: cred.Name,
		Date:      dayStart.Format(daySummaryDateFormat),
		Timezone:  s.loc.String(),
		Sessions:  pairSessions(entries, s.loc),
		Entries:   make([]EntryView, 0, len(entries)),
	}
	for _, e := range entries {
		summary.Entries = append(summary.Entries, NewEntryView(e, s.loc))
	}
	for _, sess := range summary.Sessions {
		summary.TotalWorkedSeconds += sess.DurationSeconds
	}
	return summary, nil
}

// maxDayEntries bounds the per-day fetch. Staff punch a handful of times a
// day; hitting this limit means something upstream is broken.
const maxDayEntries = 200

// pairSessions folds an ascending entry list into work sessions. A clock-in
// opens a session and the next clock-out closes it. Sessions cut off by the
// day boundary stay in the list with one side missing and a zero duration:
// an overnight shift shows an open session on the first day and an orphan
// clock-out on the second.
func pairSessions(entries []repository.TimeEntry, loc *time.Location) []Session {
	sessions := make([]Session, 0, len(entries)/2+1)
	var open *Session

	for _, e := range entries {
		ts := e.Timestamp.In(loc)
		switch e.Action {
		case repository.ActionClockIn:
			if open != nil {
				sessions = append(sessions, *open)
			}
			open = &Session{ClockIn: &ts}
		case repository.ActionClockOut:
			if open != nil {
				open.ClockOut = &ts
				open.Complete = true
				open.DurationSeconds = int64(ts.Sub(*open.ClockIn) / time.Second)
				sessions = append(sessions, *open)
				open = nil
			} else {
				sessions = append(sessions, Session{ClockOut: &ts})
			}
		}
	}
	if open != nil {
		sessions = append(sessions, *open)
	}
	return sessions
}
