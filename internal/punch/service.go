package punch

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lengolf/timeclock/backend/internal/events"
	"github.com/lengolf/timeclock/backend/internal/repository"
)

// DefaultDedupeWindow suppresses duplicate submissions of the same punch,
// typically a double-tap on the terminal.
const DefaultDedupeWindow = 5 * time.Second

// PhotoGate is the punch service's view of the photo pipeline. Validate
// screens a decoded capture before the entry is written, so the entry can be
// born with the right photo status. Enqueue hands an accepted capture to the
// async pipeline once the entry exists; it must not block the punch.
type PhotoGate interface {
	Validate(raw []byte) error
	Enqueue(entry repository.TimeEntry, raw []byte)
}

// Service executes punches end to end: PIN resolution, lockout accounting,
// clock action derivation, entry persistence, and photo handoff.
type Service struct {
	creds        repository.CredentialRepository
	entries      repository.TimeEntryRepository
	resolver     *Resolver
	lockout      *LockoutPolicy
	photos       PhotoGate
	eventBus     events.EventBus
	logger       *slog.Logger
	loc          *time.Location
	dedupeWindow time.Duration

	nowFunc func() time.Time
}

// ServiceConfig holds the dependencies for creating a punch Service.
type ServiceConfig struct {
	Credentials repository.CredentialRepository
	Entries     repository.TimeEntryRepository
	Resolver    *Resolver
	Lockout     *LockoutPolicy

	// Photos is optional; without it submitted captures are recorded as failed.
	Photos PhotoGate

	// EventBus is optional; without it no live feed events are published.
	EventBus events.EventBus

	Logger *slog.Logger

	// Location is the business timezone used for day boundaries.
	Location *time.Location

	DedupeWindow time.Duration
}

// NewService creates a punch Service with the given configuration.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	window := cfg.DedupeWindow
	if window <= 0 {
		window = DefaultDedupeWindow
	}
	resolver := cfg.Resolver
	if resolver == nil {
		resolver = NewResolver(DefaultResolverWorkers, logger)
	}
	lockout := cfg.Lockout
	if lockout == nil {
		lockout = NewLockoutPolicy(cfg.Credentials, 0, 0, logger)
	}

	return &Service{
		creds:        cfg.Credentials,
		entries:      cfg.Entries,
		resolver:     resolver,
		lockout:      lockout,
		photos:       cfg.Photos,
		eventBus:     cfg.EventBus,
		logger:       logger,
		loc:          loc,
		dedupeWindow: window,
		nowFunc:      time.Now,
	}
}

// Location returns the business timezone punches are interpreted in.
func (s *Service) Location() *time.Location {
	return s.loc
}

// Punch processes one terminal submission. It resolves the PIN against the
// active staff pool, derives the clock action from the staff member's last
// entry on the current business day, records the entry, and hands any
// accepted photo to the async pipeline.
//
// Failure modes map to sentinel errors: ErrInvalidPin when nothing matches,
// ErrPinConflict when more than one credential matches, and
// *AccountLockedError when the PIN belongs to a locked credential or this
// attempt triggered a lockout.
func (s *Service) Punch(ctx context.Context, req *PunchRequest) (*Result, error) {
	now := s.nowFunc()

	// Handlers reject malformed PINs before calling Punch; this guard keeps
	// a format miss from ever counting as a failed attempt.
	if !IsValidPinFormat(req.Pin) {
		recordOutcome(OutcomeInvalidPin)
		return nil, ErrInvalidPin
	}

	candidates, err := s.creds.ListActiveUnlocked(ctx, now)
	if err != nil {
		recordOutcome(OutcomeError)
		return nil, fmt.Errorf("listing active credentials: %w", err)
	}

	resolveStart := time.Now()
	matched, err := s.resolver.Resolve(ctx, req.Pin, candidates)
	observeResolve(time.Since(resolveStart).Seconds(), len(candidates))
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidPin):
			return nil, s.handleMiss(ctx, req.Pin, now)
		case errors.Is(err, ErrPinConflict):
			recordOutcome(OutcomeConflict)
			return nil, err
		default:
			recordOutcome(OutcomeError)
			return nil, err
		}
	}

	// A lockout can land between listing and matching; honor it.
	if locked, remaining := s.lockout.IsLocked(matched, now); locked {
		recordOutcome(OutcomeLocked)
		return nil, &AccountLockedError{Remaining: remaining}
	}

	if err := s.lockout.RecordSuccess(ctx, matched.ID, now); err != nil {
		// Best effort: a stale failure counter must not block the punch.
		s.logger.Error("failed to reset failure state",
			"staff_id", matched.ID,
			"error", err,
		)
	}

	last, err := s.entries.GetMostRecent(ctx, matched.ID)
	if err != nil {
		recordOutcome(OutcomeError)
		return nil, fmt.Errorf("loading most recent entry: %w", err)
	}

	entry := repository.TimeEntry{
		StaffID:     matched.ID,
		Action:      NextAction(last, now, s.loc),
		Timestamp:   now,
		PhotoStatus: repository.PhotoStatusNone,
	}
	if req.DeviceInfo != "" {
		entry.DeviceInfo = &req.DeviceInfo
	}

	raw := s.screenPhoto(req.Photo, matched.ID, &entry)

	deduped, err := s.entries.RecordPunch(ctx, &entry, s.dedupeWindow)
	if err != nil {
		recordOutcome(OutcomeError)
		return nil, fmt.Errorf("recording punch: %w", err)
	}

	if !deduped && entry.PhotoStatus == repository.PhotoStatusPending && raw != nil {
		s.photos.Enqueue(entry, raw)
	}

	result := &Result{
		Entry:     entry,
		StaffName: matched.Name,
		Deduped:   deduped,
	}
	if req.Photo != "" || entry.PhotoStatus != repository.PhotoStatusNone {
		accepted := entry.PhotoStatus == repository.PhotoStatusPending ||
			entry.PhotoStatus == repository.PhotoStatusUploaded
		result.PhotoAccepted = &accepted
	}

	if deduped {
		recordOutcome(OutcomeDeduped)
		s.logger.Info("duplicate punch suppressed",
			"staff_id", matched.ID,
			"entry_id", entry.ID,
			"action", entry.Action,
		)
	} else {
		recordOutcome(OutcomeSuccess)
		s.logger.Info("punch recorded",
			"staff_id", matched.ID,
			"entry_id", entry.ID,
			"action", entry.Action,
			"photo_status", entry.PhotoStatus,
		)
		s.publishPunchRecorded(&entry, matched.Name)
	}

	return result, nil
}

// handleMiss classifies a PIN that matched no active unlocked credential.
// The PIN may belong to a locked credential, in which case the caller learns
// the remaining lock time instead of a generic rejection. A true miss is
// charged as a failed attempt.
func (s *Service) handleMiss(ctx context.Context, pin string, now time.Time) error {
	lockedSet, err := s.creds.ListActiveLocked(ctx, now)
	if err != nil {
		recordOutcome(OutcomeError)
		return fmt.Errorf("listing locked credentials: %w", err)
	}

	if len(lockedSet) > 0 {
		lockedMatches := s.resolver.Match(ctx, pin, lockedSet)
		switch len(lockedMatches) {
		case 0:
			// Genuinely unknown PIN, fall through to attribution.
		case 1:
			recordOutcome(OutcomeLocked)
			return &AccountLockedError{Remaining: lockedMatches[0].LockRemaining(now)}
		default:
			ids := make([]int64, len(lockedMatches))
			for i, cred := range lockedMatches {
				ids[i] = cred.ID
			}
			s.logger.Error("PIN matches multiple locked credentials, failing closed",
				"credential_ids", ids,
			)
			recordOutcome(OutcomeConflict)
			return ErrPinConflict
		}
	}

	// A cancelled fan-out skips comparisons, so an empty match set proves
	// nothing; bail before charging anyone for it.
	if err := ctx.Err(); err != nil {
		recordOutcome(OutcomeError)
		return err
	}

	newlyLocked, err := s.lockout.RecordFailure(ctx, now)
	if err != nil {
		// The attempt still failed; bookkeeping trouble must not change the
		// answer the terminal sees.
		s.logger.Error("failed to record failed attempt", "error", err)
		recordOutcome(OutcomeInvalidPin)
		return ErrInvalidPin
	}

	if len(newlyLocked) > 0 {
		s.publishLockouts(newlyLocked)
		recordOutcome(OutcomeLocked)
		return &AccountLockedError{Remaining: s.lockout.Duration()}
	}

	recordOutcome(OutcomeInvalidPin)
	return ErrInvalidPin
}

// publishPunchRecorded publishes a punch_recorded event to the live feed.
func (s *Service) publishPunchRecorded(entry *repository.TimeEntry, staffName string) {
	if s.eventBus == nil {
		return
	}

	eventData := events.PunchRecordedEvent{
		EntryID:   entry.ID.String(),
		StaffID:   entry.StaffID,
		StaffName: staffName,
		Action:    string(entry.Action),
		Timestamp: entry.Timestamp,
		HasPhoto:  entry.PhotoStatus == repository.PhotoStatusPending || entry.PhotoStatus == repository.PhotoStatusUploaded,
	}

	data, err := json.Marshal(eventData)
	if err != nil {
		s.logger.Warn("failed to marshal punch_recorded event", "error", err)
		return
	}

	event := events.Event{
		ID:        uuid.New().String(),
		Type:      events.EventTypePunchRecorded,
		Channel:   events.ChannelPunches,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	if err := s.eventBus.Publish(event); err != nil {
		s.logger.Warn("failed to publish punch_recorded event",
			"entry_id", entry.ID,
			"error", err,
		)
	}
}

// publishLockouts publishes a staff_locked event for each newly locked
// credential.
func (s *Service) publishLockouts(locked []repository.StaffCredential) {
	if s.eventBus == nil {
		return
	}

	for _, cred := range locked {
		if cred.LockedUntil == nil {
			continue
		}

		eventData := events.StaffLockedEvent{
			StaffID:     cred.ID,
			StaffName:   cred.Name,
			LockedUntil: *cred.LockedUntil,
		}

		data, err := json.Marshal(eventData)
		if err != nil {
			s.logger.Warn("failed to marshal staff_locked event", "error", err)
			continue
		}

		event := events.Event{
			ID:        uuid.New().String(),
			Type:      events.EventTypeStaffLocked,
			Channel:   events.ChannelPunches,
			Data:      data,
			Timestamp: time.Now().UTC(),
		}

		if err := s.eventBus.Publish(event); err != nil {
			s.logger.Warn("failed to publish staff_locked event",
				"staff_id", cred.ID,
				"error", err,
			)
		}
	}
}

// screenPhoto decodes and validates a submitted capture, sets the entry's
// born photo status accordingly, and returns the raw bytes for the pipeline.
// A bad capture never fails the punch; the entry just records the photo as
// failed.
func (s *Service) screenPhoto(encoded string, staffID int64, entry *repository.TimeEntry) []byte {
	if encoded == "" {
		return nil
	}

	if s.photos == nil {
		s.logger.Warn("photo submitted but no pipeline configured", "staff_id", staffID)
		entry.PhotoStatus = repository.PhotoStatusFailed
		return nil
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		s.logger.Warn("photo rejected: invalid base64",
			"staff_id", staffID,
			"error", err,
		)
		entry.PhotoStatus = repository.PhotoStatusFailed
		return nil
	}

	if err := s.photos.Validate(raw); err != nil {
		s.logger.Warn("photo rejected",
			"staff_id", staffID,
			"error", err,
		)
		entry.PhotoStatus = repository.PhotoStatusFailed
		return nil
	}

	entry.PhotoStatus = repository.PhotoStatusPending
	return raw
}
