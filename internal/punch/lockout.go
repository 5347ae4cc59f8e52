package punch

import (
	"context"
	"log/slog"
	"time"

	"github.com/lengolf/timeclock/backend/internal/repository"
)

// Lockout defaults
const (
	DefaultLockoutThreshold = 10
	DefaultLockoutDuration  = 60 * time.Minute
)

// LockoutPolicy owns the failure counters on staff credentials. Every
// mutation happens through a single atomic statement in the repository, so
// concurrent attempts never lose an increment and the locked transition
// happens exactly once; this layer adds configuration and transition logging.
type LockoutPolicy struct {
	repo      repository.CredentialRepository
	threshold int
	duration  time.Duration
	logger    *slog.Logger
}

// NewLockoutPolicy creates a LockoutPolicy with the given threshold and lock
// window. Non-positive values fall back to the defaults.
func NewLockoutPolicy(repo repository.CredentialRepository, threshold int, duration time.Duration, logger *slog.Logger) *LockoutPolicy {
	if threshold <= 0 {
		threshold = DefaultLockoutThreshold
	}
	if duration <= 0 {
		duration = DefaultLockoutDuration
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LockoutPolicy{
		repo:      repo,
		threshold: threshold,
		duration:  duration,
		logger:    logger,
	}
}

// Threshold returns the configured failure threshold.
func (p *LockoutPolicy) Threshold() int { return p.threshold }

// Duration returns the configured lock window length.
func (p *LockoutPolicy) Duration() time.Duration { return p.duration }

// RecordFailure counts one unmatched PIN attempt. The attempt carries no
// staff identity, so the failure lands on every active unlocked credential in
// one atomic statement; credentials this attempt pushed over the threshold
// are returned already carrying their fresh lock window.
func (p *LockoutPolicy) RecordFailure(ctx context.Context, now time.Time) ([]repository.StaffCredential, error) {
	updated, err := p.repo.RecordFailures(ctx, p.threshold, p.duration, now)
	if err != nil {
		return nil, err
	}

	// Rows the statement updated were unlocked going in, so any lock on a
	// returned row was set by this attempt.
	var newlyLocked []repository.StaffCredential
	for _, cred := range updated {
		if cred.IsLocked(now) {
			newlyLocked = append(newlyLocked, cred)
		}
	}

	if len(newlyLocked) > 0 {
		ids := make([]int64, len(newlyLocked))
		for i, cred := range newlyLocked {
			ids[i] = cred.ID
		}
		p.logger.Warn("failed attempt threshold crossed, credentials locked",
			"credential_ids", ids,
			"threshold", p.threshold,
			"lock_duration", p.duration.String(),
		)
		recordLockouts(len(newlyLocked))
	}

	return newlyLocked, nil
}

// RecordSuccess resets the matched staff member's failure state after a
// successful verification, clearing both the counter and any lock window.
func (p *LockoutPolicy) RecordSuccess(ctx context.Context, staffID int64, now time.Time) error {
	return p.repo.ResetFailureState(ctx, staffID, now)
}

// IsLocked reports whether the credential sits inside a lockout window at
// now, and the window remaining. Pure read: expiry unlocks implicitly on the
// next evaluation, no background job involved.
func (p *LockoutPolicy) IsLocked(cred *repository.StaffCredential, now time.Time) (bool, time.Duration) {
	if !cred.IsLocked(now) {
		return false, 0
	}
	return true, cred.LockRemaining(now)
}
