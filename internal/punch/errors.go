// Package punch implements the terminal punch-processing core: PIN
// resolution against the hashed credential pool, lockout bookkeeping, the
// daily clock_in/clock_out state machine, and durable entry recording.
package punch

import (
	"errors"
	"fmt"
	"time"
)

// Service errors
var (
	// ErrInvalidPin covers every resolution miss. It is deliberately generic:
	// a PIN that matches nothing and a PIN that would have matched with one
	// wrong digit produce the same error, so responses never reveal how close
	// an attempt was.
	ErrInvalidPin = errors.New("pin does not match any active credential")

	// ErrPinConflict means more than one credential verified against the same
	// PIN. Provisioning enforces PIN uniqueness, so a conflict is a
	// configuration error; the resolver fails closed instead of picking a
	// winner, and handlers render it as the generic invalid-PIN response.
	ErrPinConflict = errors.New("pin matches multiple credentials")
)

// AccountLockedError reports a punch attempt rejected because the credential
// it resolved to is inside a lockout window, or because the attempt itself
// pushed credentials over the failure threshold.
type AccountLockedError struct {
	Remaining time.Duration
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account locked for another %d seconds", e.RemainingSeconds())
}

// RemainingSeconds returns the remaining lock window in whole seconds,
// rounded up so a countdown never reads zero while the lock still holds.
func (e *AccountLockedError) RemainingSeconds() int {
	if e.Remaining <= 0 {
		return 0
	}
	return int((e.Remaining + time.Second - 1) / time.Second)
}
