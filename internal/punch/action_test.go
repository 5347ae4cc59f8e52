package punch

import (
	"testing"
	"time"

	"pgregory.net/rapid"

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

func entryAt(action repository.Action, ts time.Time) *repository.TimeEntry {
	return &repository.TimeEntry{
		StaffID:   1,
		Action:    action,
		Timestamp: ts,
	}
}

func TestNextAction(t *testing.T) {
	// 10:00 on a fixed local date in the business zone
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, bangkok)

	tests := []struct {
		name string
		last *repository.TimeEntry
		want repository.Action
	}{
		{
			name: "no entries ever",
			last: nil,
			want: repository.ActionClockIn,
		},
		{
			name: "last entry yesterday",
			last: entryAt(repository.ActionClockIn, now.AddDate(0, 0, -1)),
			want: repository.ActionClockIn,
		},
		{
			name: "clocked in earlier today",
			last: entryAt(repository.ActionClockIn, now.Add(-4*time.Hour)),
			want: repository.ActionClockOut,
		},
		{
			name: "clocked out earlier today",
			last: entryAt(repository.ActionClockOut, now.Add(-time.Hour)),
			want: repository.ActionClockIn,
		},
		{
			name: "clocked out last week",
			last: entryAt(repository.ActionClockOut, now.AddDate(0, 0, -7)),
			want: repository.ActionClockIn,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextAction(tt.last, now, bangkok)
			if got != tt.want {
				t.Errorf("NextAction() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestNextAction_LocalMidnightRearms(t *testing.T) {
	// Clock in at 23:50 local; a punch at 00:10 the next local day starts a
	// fresh cycle instead of closing the shift.
	clockIn := time.Date(2026, 3, 14, 23, 50, 0, 0, bangkok)
	after := time.Date(2026, 3, 15, 0, 10, 0, 0, bangkok)

	got := NextAction(entryAt(repository.ActionClockIn, clockIn), after, bangkok)
	if got != repository.ActionClockIn {
		t.Errorf("expected clock_in after local midnight, got %s", got)
	}
}

func TestNextAction_UTCMidnightDoesNotRearm(t *testing.T) {
	// Bangkok is UTC+7: 06:50 and 07:10 local straddle midnight UTC but sit
	// on the same local date, so the cycle alternates normally.
	clockIn := time.Date(2026, 3, 14, 6, 50, 0, 0, bangkok)
	after := time.Date(2026, 3, 14, 7, 10, 0, 0, bangkok)

	if clockIn.UTC().Day() == after.UTC().Day() {
		t.Fatal("test times must straddle UTC midnight")
	}

	got := NextAction(entryAt(repository.ActionClockIn, clockIn), after, bangkok)
	if got != repository.ActionClockOut {
		t.Errorf("expected clock_out across UTC midnight, got %s", got)
	}
}

func TestNextAction_EntryStoredInUTC(t *testing.T) {
	// Entries come back from the database in UTC; the local date must be
	// derived in the business zone regardless of the stored zone.
	clockIn := time.Date(2026, 3, 14, 9, 0, 0, 0, bangkok).UTC()
	now := time.Date(2026, 3, 14, 17, 0, 0, 0, bangkok)

	got := NextAction(entryAt(repository.ActionClockIn, clockIn), now, bangkok)
	if got != repository.ActionClockOut {
		t.Errorf("expected clock_out, got %s", got)
	}
}

func TestNextAction_Alternation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		// A sequence of punches within one local day strictly alternates
		day := time.Date(2026, 3, 14, 6, 0, 0, 0, bangkok)
		numPunches := rapid.IntRange(1, 10).Draw(t, "numPunches")

		var last *repository.TimeEntry
		want := repository.ActionClockIn
		ts := day
		for i := 0; i < numPunches; i++ {
			ts = ts.Add(time.Duration(rapid.IntRange(1, 90).Draw(t, "gapMinutes")) * time.Minute)
			if ts.In(bangkok).Day() != day.Day() {
				break
			}

			got := NextAction(last, ts, bangkok)
			if got != want {
				t.Fatalf("punch %d: NextAction() = %s, want %s", i, got, want)
			}

			last = entryAt(got, ts)
			want = want.Opposite()
		}
	})
}
