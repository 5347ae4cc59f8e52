package punch

import (
	"time"

	"github.com/lengolf/timeclock/backend/internal/repository"
)

// NextAction decides whether a staff member's next punch is a clock-in or a
// clock-out. The two-state cycle is scoped to one local calendar day in the
// business zone: no entry at all, or a most recent entry from a different
// local day, means clock_in; otherwise the next action is the opposite of the
// most recent one.
//
// The date is taken in the business zone, not UTC or the server zone, so a
// shift spanning UTC midnight still alternates normally. Crossing local
// midnight re-arms the cycle to clock_in.
func NextAction(last *repository.TimeEntry, now time.Time, loc *time.Location) repository.Action {
	if last == nil {
		return repository.ActionClockIn
	}
	if !sameLocalDay(last.Timestamp, now, loc) {
		return repository.ActionClockIn
	}
	return last.Action.Opposite()
}

// sameLocalDay reports whether two instants fall on the same calendar date
// in the given location.
func sameLocalDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}
