package timesheet

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lengolf/timeclock/backend/internal/repository"
)

var bangkok = mustLoadLocation("Asia/Bangkok")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockEntryStore is an in-memory TimeEntryRepository for read paths
type mockEntryStore struct {
	mu      sync.Mutex
	entries []repository.TimeEntry
}

func (m *mockEntryStore) add(entry repository.TimeEntry) repository.TimeEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = entry.Timestamp
	}
	m.entries = append(m.entries, entry)
	return entry
}

func (m *mockEntryStore) RecordPunch(ctx context.Context, entry *repository.TimeEntry, dedupeWindow time.Duration) (bool, error) {
	*entry = m.add(*entry)
	return false, nil
}

func (m *mockEntryStore) GetByID(ctx context.Context, id uuid.UUID) (*repository.TimeEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.entries {
		if m.entries[i].ID == id {
			copied := m.entries[i]
			return &copied, nil
		}
	}
	return nil, repository.ErrEntryNotFound
}

func (m *mockEntryStore) GetMostRecent(ctx context.Context, staffID int64) (*repository.TimeEntry, error) {
	return nil, nil
}

// List mirrors the SQL filters: from is inclusive, to exclusive, default
// order newest first
func (m *mockEntryStore) List(ctx context.Context, params repository.ListEntryParams) ([]repository.TimeEntry, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []repository.TimeEntry
	for _, e := range m.entries {
		if params.StaffID != nil && e.StaffID != *params.StaffID {
			continue
		}
		if params.Action != nil && e.Action != *params.Action {
			continue
		}
		if params.PhotoStatus != nil && e.PhotoStatus != *params.PhotoStatus {
			continue
		}
		if params.FromTime != nil && e.Timestamp.Before(*params.FromTime) {
			continue
		}
		if params.ToTime != nil && !e.Timestamp.Before(*params.ToTime) {
			continue
		}
		matched = append(matched, e)
	}

	asc := params.Order == "asc"
	sort.SliceStable(matched, func(i, j int) bool {
		if asc {
			return matched[i].Timestamp.Before(matched[j].Timestamp)
		}
		return matched[j].Timestamp.Before(matched[i].Timestamp)
	})

	total := len(matched)
	page := params.Page
	if page < 1 {
		page = 1
	}
	limit := params.Limit
	if limit < 1 {
		limit = 20
	}
	start := (page - 1) * limit
	if start > len(matched) {
		start = len(matched)
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (m *mockEntryStore) MarkPhotoUploaded(ctx context.Context, id uuid.UUID, photoRef string) error {
	return nil
}

func (m *mockEntryStore) MarkPhotoFailed(ctx context.Context, id uuid.UUID) error {
	return nil
}

func (m *mockEntryStore) PhotoRefsExist(ctx context.Context, refs []string) (map[string]bool, error) {
	return map[string]bool{}, nil
}

// mockCredStore resolves staff names for summaries
type mockCredStore struct {
	names map[int64]string
}

func (m *mockCredStore) GetByID(ctx context.Context, id int64) (*repository.StaffCredential, error) {
	name, ok := m.names[id]
	if !ok {
		return nil, repository.ErrStaffNotFound
	}
	return &repository.StaffCredential{ID: id, Name: name, Active: true}, nil
}

func (m *mockCredStore) Create(ctx context.Context, cred *repository.StaffCredential) error {
	return nil
}

func (m *mockCredStore) List(ctx context.Context, includeInactive bool) ([]repository.StaffCredential, error) {
	return nil, nil
}

func (m *mockCredStore) ListActiveUnlocked(ctx context.Context, now time.Time) ([]repository.StaffCredential, error) {
	return nil, nil
}

func (m *mockCredStore) ListActiveLocked(ctx context.Context, now time.Time) ([]repository.StaffCredential, error) {
	return nil, nil
}

func (m *mockCredStore) UpdatePinHash(ctx context.Context, id int64, pinHash string, now time.Time) error {
	return nil
}

func (m *mockCredStore) SetActive(ctx context.Context, id int64, active bool, now time.Time) error {
	return nil
}

func (m *mockCredStore) RecordFailures(ctx context.Context, threshold int, lockDuration time.Duration, now time.Time) ([]repository.StaffCredential, error) {
	return nil, nil
}

func (m *mockCredStore) ResetFailureState(ctx context.Context, id int64, now time.Time) error {
	return nil
}

// mockPresigner returns predictable URLs
type mockPresigner struct {
	err  error
	last string
}

func (m *mockPresigner) PresignGet(ctx context.Context, key string) (string, time.Duration, error) {
	if m.err != nil {
		return "", 0, m.err
	}
	m.last = key
	return "https://storage.example.com/" + key + "?sig=abc", 15 * time.Minute, nil
}

type timesheetFixture struct {
	service   *Service
	entries   *mockEntryStore
	creds     *mockCredStore
	presigner *mockPresigner
	now       time.Time
}

func newTimesheetFixture(t *testing.T) *timesheetFixture {
	t.Helper()
	f := &timesheetFixture{
		entries:   &mockEntryStore{},
		creds:     &mockCredStore{names: map[int64]string{1: "Nok", 2: "Lek"}},
		presigner: &mockPresigner{},
		now:       time.Date(2026, 3, 14, 18, 0, 0, 0, bangkok),
	}
	f.service = NewService(ServiceConfig{
		Entries:     f.entries,
		Credentials: f.creds,
		Presigner:   f.presigner,
		Logger:      testLogger(),
		Location:    bangkok,
		NowFunc:     func() time.Time { return f.now },
	})
	return f
}

// punchAt records an entry at local Bangkok wall time, stored in UTC the way
// the punch service persists them
func (f *timesheetFixture) punchAt(staffID int64, action repository.Action, year int, month time.Month, day, hour, minute int) repository.TimeEntry {
	ts := time.Date(year, month, day, hour, minute, 0, 0, bangkok).UTC()
	return f.entries.add(repository.TimeEntry{
		StaffID:     staffID,
		Action:      action,
		Timestamp:   ts,
		PhotoStatus: repository.PhotoStatusNone,
	})
}

func sessionAt(loc *time.Location, hour, minute int) *time.Time {
	ts := time.Date(2026, 3, 14, hour, minute, 0, 0, loc)
	return &ts
}

func TestPairSessions(t *testing.T) {
	entry := func(action repository.Action, hour, minute int) repository.TimeEntry {
		return repository.TimeEntry{
			ID:        uuid.New(),
			StaffID:   1,
			Action:    action,
			Timestamp: time.Date(2026, 3, 14, hour, minute, 0, 0, bangkok).UTC(),
		}
	}

	tests := []struct {
		name    string
		entries []repository.TimeEntry
		want    []Session
	}{
		{
			name:    "no entries",
			entries: nil,
			want:    []Session{},
		},
		{
			name:    "open session",
			entries: []repository.TimeEntry{entry(repository.ActionClockIn, 9, 0)},
			want: []Session{
				{ClockIn: sessionAt(bangkok, 9, 0)},
			},
		},
		{
			name: "single complete session",
			entries: []repository.TimeEntry{
				entry(repository.ActionClockIn, 9, 0),
				entry(repository.ActionClockOut, 17, 30),
			},
			want: []Session{
				{ClockIn: sessionAt(bangkok, 9, 0), ClockOut: sessionAt(bangkok, 17, 30), DurationSeconds: 30600, Complete: true},
			},
		},
		{
			name: "split shift",
			entries: []repository.TimeEntry{
				entry(repository.ActionClockIn, 9, 0),
				entry(repository.ActionClockOut, 12, 0),
				entry(repository.ActionClockIn, 13, 0),
				entry(repository.ActionClockOut, 17, 0),
			},
			want: []Session{
				{ClockIn: sessionAt(bangkok, 9, 0), ClockOut: sessionAt(bangkok, 12, 0), DurationSeconds: 10800, Complete: true},
				{ClockIn: sessionAt(bangkok, 13, 0), ClockOut: sessionAt(bangkok, 17, 0), DurationSeconds: 14400, Complete: true},
			},
		},
		{
			name: "orphan clock-out from an overnight shift",
			entries: []repository.TimeEntry{
				entry(repository.ActionClockOut, 6, 0),
				entry(repository.ActionClockIn, 14, 0),
				entry(repository.ActionClockOut, 22, 0),
			},
			want: []Session{
				{ClockOut: sessionAt(bangkok, 6, 0)},
				{ClockIn: sessionAt(bangkok, 14, 0), ClockOut: sessionAt(bangkok, 22, 0), DurationSeconds: 28800, Complete: true},
			},
		},
		{
			name: "trailing open session",
			entries: []repository.TimeEntry{
				entry(repository.ActionClockIn, 9, 0),
				entry(repository.ActionClockOut, 12, 0),
				entry(repository.ActionClockIn, 13, 0),
			},
			want: []Session{
				{ClockIn: sessionAt(bangkok, 9, 0), ClockOut: sessionAt(bangkok, 12, 0), DurationSeconds: 10800, Complete: true},
				{ClockIn: sessionAt(bangkok, 13, 0)},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := pairSessions(tt.entries, bangkok)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d sessions, want %d: %+v", len(got), len(tt.want), got)
			}
			for i := range got {
				assertSessionEqual(t, i, got[i], tt.want[i])
			}
		})
	}
}

func assertSessionEqual(t *testing.T, i int, got, want Session) {
	t.Helper()
	if (got.ClockIn == nil) != (want.ClockIn == nil) ||
		(got.ClockIn != nil && !got.ClockIn.Equal(*want.ClockIn)) {
		t.Errorf("session %d clock_in = %v, want %v", i, got.ClockIn, want.ClockIn)
	}
	if (got.ClockOut == nil) != (want.ClockOut == nil) ||
		(got.ClockOut != nil && !got.ClockOut.Equal(*want.ClockOut)) {
		t.Errorf("session %d clock_out = %v, want %v", i, got.ClockOut, want.ClockOut)
	}
	if got.DurationSeconds != want.DurationSeconds {
		t.Errorf("session %d duration = %d, want %d", i, got.DurationSeconds, want.DurationSeconds)
	}
	if got.Complete != want.Complete {
		t.Errorf("session %d complete = %v, want %v", i, got.Complete, want.Complete)
	}
}

func TestDaySummary_PairsAndTotals(t *testing.T) {
	f := newTimesheetFixture(t)
	f.punchAt(1, repository.ActionClockIn, 2026, 3, 14, 9, 0)
	f.punchAt(1, repository.ActionClockOut, 2026, 3, 14, 12, 0)
	f.punchAt(1, repository.ActionClockIn, 2026, 3, 14, 13, 0)
	f.punchAt(1, repository.ActionClockOut, 2026, 3, 14, 17, 30)
	// Another staff member's day must not bleed in
	f.punchAt(2, repository.ActionClockIn, 2026, 3, 14, 10, 0)

	summary, err := f.service.DaySummary(context.Background(), 1, "2026-03-14")
	if err != nil {
		t.Fatalf("DaySummary() error = %v", err)
	}

	if summary.StaffID != 1 || summary.StaffName != "Nok" {
		t.Errorf("staff = %d %q, want 1 Nok", summary.StaffID, summary.StaffName)
	}
	if summary.Date != "2026-03-14" {
		t.Errorf("date = %q, want 2026-03-14", summary.Date)
	}
	if summary.Timezone != "Asia/Bangkok" {
		t.Errorf("timezone = %q, want Asia/Bangkok", summary.Timezone)
	}
	if len(summary.Sessions) != 2 {
		t.Fatalf("got %d sessions, want 2", len(summary.Sessions))
	}
	wantTotal := int64(3*3600 + 4*3600 + 1800)
	if summary.TotalWorkedSeconds != wantTotal {
		t.Errorf("total = %d, want %d", summary.TotalWorkedSeconds, wantTotal)
	}
	if len(summary.Entries) != 4 {
		t.Errorf("got %d entries, want 4", len(summary.Entries))
	}
	for _, view := range summary.Entries {
		if _, offset := view.Timestamp.Zone(); offset != 7*3600 {
			t.Errorf("entry timestamp offset = %d, want business zone offset", offset)
		}
	}
}

func TestDaySummary_DefaultsToToday(t *testing.T) {
	f := newTimesheetFixture(t)
	f.punchAt(1, repository.ActionClockIn, 2026, 3, 14, 9, 0)

	summary, err := f.service.DaySummary(context.Background(), 1, "")
	if err != nil {
		t.Fatalf("DaySummary() error = %v", err)
	}
	if summary.Date != "2026-03-14" {
		t.Errorf("date = %q, want today in the business zone", summary.Date)
	}
	if len(summary.Entries) != 1 {
		t.Errorf("got %d entries, want 1", len(summary.Entries))
	}
}

func TestDaySummary_DayBoundaries(t *testing.T) {
	f := newTimesheetFixture(t)
	// Midnight belongs to the day, the next midnight does not
	f.punchAt(1, repository.ActionClockIn, 2026, 3, 14, 0, 0)
	f.punchAt(1, repository.ActionClockOut, 2026, 3, 14, 23, 59)
	f.punchAt(1, repository.ActionClockIn, 2026, 3, 15, 0, 0)

	summary, err := f.service.DaySummary(context.Background(), 1, "2026-03-14")
	if err != nil {
		t.Fatalf("DaySummary() error = %v", err)
	}
	if len(summary.Entries) != 2 {
		t.Fatalf("got %d entries, want 2 (next midnight excluded)", len(summary.Entries))
	}
}

func TestDaySummary_OvernightShift(t *testing.T) {
	f := newTimesheetFixture(t)
	f.punchAt(1, repository.ActionClockIn, 2026, 3, 13, 22, 0)
	f.punchAt(1, repository.ActionClockOut, 2026, 3, 14, 6, 0)

	firstDay, err := f.service.DaySummary(context.Background(), 1, "2026-03-13")
	if err != nil {
		t.Fatalf("DaySummary() error = %v", err)
	}
	if len(firstDay.Sessions) != 1 || firstDay.Sessions[0].Complete {
		t.Errorf("first day should show one open session: %+v", firstDay.Sessions)
	}
	if firstDay.TotalWorkedSeconds != 0 {
		t.Errorf("open session must not count toward the total, got %d", firstDay.TotalWorkedSeconds)
	}

	secondDay, err := f.service.DaySummary(context.Background(), 1, "2026-03-14")
	if err != nil {
		t.Fatalf("DaySummary() error = %v", err)
	}
	if len(secondDay.Sessions) != 1 || secondDay.Sessions[0].ClockIn != nil {
		t.Errorf("second day should show one orphan clock-out: %+v", secondDay.Sessions)
	}
	if secondDay.TotalWorkedSeconds != 0 {
		t.Errorf("orphan clock-out must not count toward the total, got %d", secondDay.TotalWorkedSeconds)
	}
}

func TestDaySummary_InvalidDate(t *testing.T) {
	f := newTimesheetFixture(t)

	for _, date := range []string{"14-03-2026", "2026/03/14", "yesterday", "2026-13-01"} {
		if _, err := f.service.DaySummary(context.Background(), 1, date); !errors.Is(err, ErrInvalidDate) {
			t.Errorf("DaySummary(%q) error = %v, want ErrInvalidDate", date, err)
		}
	}
}

func TestDaySummary_UnknownStaff(t *testing.T) {
	f := newTimesheetFixture(t)

	if _, err := f.service.DaySummary(context.Background(), 99, "2026-03-14"); !errors.Is(err, repository.ErrStaffNotFound) {
		t.Errorf("DaySummary() error = %v, want ErrStaffNotFound", err)
	}
}

func TestPhotoURL_Presigns(t *testing.T) {
	f := newTimesheetFixture(t)
	ref := "punch-photos/1/some-entry.jpg"
	entry := f.entries.add(repository.TimeEntry{
		StaffID:     1,
		Action:      repository.ActionClockIn,
		Timestamp:   f.now,
		PhotoStatus: repository.PhotoStatusUploaded,
		PhotoRef:    &ref,
	})

	url, expiry, err := f.service.PhotoURL(context.Background(), entry.ID)
	if err != nil {
		t.Fatalf("PhotoURL() error = %v", err)
	}
	if !strings.Contains(url, ref) {
		t.Errorf("url %q does not reference the stored key", url)
	}
	if expiry != 15*time.Minute {
		t.Errorf("expiry = %v, want 15m", expiry)
	}
	if f.presigner.last != ref {
		t.Errorf("presigned key = %q, want %q", f.presigner.last, ref)
	}
}

func TestPhotoURL_NoPhoto(t *testing.T) {
	f := newTimesheetFixture(t)

	for _, status := range []repository.PhotoStatus{
		repository.PhotoStatusNone,
		repository.PhotoStatusPending,
		repository.PhotoStatusFailed,
	} {
		entry := f.entries.add(repository.TimeEntry{
			StaffID:     1,
			Action:      repository.ActionClockIn,
			Timestamp:   f.now,
			PhotoStatus: status,
		})
		if _, _, err := f.service.PhotoURL(context.Background(), entry.ID); !errors.Is(err, ErrNoPhoto) {
			t.Errorf("PhotoURL() with status %s error = %v, want ErrNoPhoto", status, err)
		}
	}
}

func TestPhotoURL_StorageNotConfigured(t *testing.T) {
	f := newTimesheetFixture(t)
	f.service = NewService(ServiceConfig{
		Entries:     f.entries,
		Credentials: f.creds,
		Presigner:   nil,
		Logger:      testLogger(),
		Location:    bangkok,
	})
	ref := "punch-photos/1/some-entry.jpg"
	entry := f.entries.add(repository.TimeEntry{
		StaffID:     1,
		Action:      repository.ActionClockIn,
		Timestamp:   f.now,
		PhotoStatus: repository.PhotoStatusUploaded,
		PhotoRef:    &ref,
	})

	if _, _, err := f.service.PhotoURL(context.Background(), entry.ID); !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("PhotoURL() error = %v, want ErrStorageUnavailable", err)
	}
}

func TestPhotoURL_UnknownEntry(t *testing.T) {
	f := newTimesheetFixture(t)

	if _, _, err := f.service.PhotoURL(context.Background(), uuid.New()); !errors.Is(err, repository.ErrEntryNotFound) {
		t.Errorf("PhotoURL() error = %v, want ErrEntryNotFound", err)
	}
}
