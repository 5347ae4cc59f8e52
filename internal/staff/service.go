// Package staff provides the management surface for staff credentials:
// enrollment, PIN resets, lockout clears, and activation. It owns every
// credential mutation the lockout policy does not.
package staff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lengolf/timeclock/backend/internal/events"
	"github.com/lengolf/timeclock/backend/internal/punch"
	"github.com/lengolf/timeclock/backend/internal/repository"
)

// Service errors
var (
	// ErrPinInUse means the PIN already verifies against another active
	// credential. Letting it through would arm the resolver's fail-closed
	// multi-match path and lock both people out.
	ErrPinInUse = errors.New("pin already in use by an active staff member")

	ErrInvalidPinFormat = errors.New("pin must be exactly 6 digits")
)

// Service implements staff credential management
type Service struct {
	creds    repository.CredentialRepository
	pins     *punch.PinValidator
	resolver *punch.Resolver
	eventBus events.EventBus
	logger   *slog.Logger

	nowFunc func() time.Time
}

// ServiceConfig holds the dependencies for creating a staff Service
type ServiceConfig struct {
	Credentials repository.CredentialRepository
	Pins        *punch.PinValidator
	Resolver    *punch.Resolver

	// EventBus is optional; without it no staff_unlocked events are published.
	EventBus events.EventBus

	Logger *slog.Logger
}

// NewService creates a new staff Service instance
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pins := cfg.Pins
	if pins == nil {
		pins = punch.NewPinValidator(punch.DefaultBcryptCost)
	}
	resolver := cfg.Resolver
	if resolver == nil {
		resolver = punch.NewResolver(punch.DefaultResolverWorkers, logger)
	}

	return &Service{
		creds:    cfg.Credentials,
		pins:     pins,
		resolver: resolver,
		eventBus: cfg.EventBus,
		logger:   logger,
		nowFunc:  time.Now,
	}
}

// Create enrolls a new staff member with a hashed PIN. The PIN must not
// verify against any existing active credential; uniqueness can only be
// checked with the raw PIN in hand, so this is the one place it is enforced.
func (s *Service) Create(ctx context.Context, name, pin string) (*repository.StaffCredential, error) {
	if !punch.IsValidPinFormat(pin) {
		return nil, ErrInvalidPinFormat
	}

	if err := s.checkPinUnique(ctx, pin, 0); err != nil {
		return nil, err
	}

	pinHash, err := s.pins.HashPin(pin)
	if err != nil {
		return nil, fmt.Errorf("hashing pin: %w", err)
	}

	cred := &repository.StaffCredential{
		Name:    name,
		PinHash: pinHash,
		Active:  true,
	}
	if err := s.creds.Create(ctx, cred); err != nil {
		return nil, fmt.Errorf("creating staff credential: %w", err)
	}

	s.logger.Info("staff member enrolled", "staff_id", cred.ID, "name", cred.Name)
	return cred, nil
}

// Get returns one staff credential
func (s *Service) Get(ctx context.Context, id int64) (*repository.StaffCredential, error) {
	return s.creds.GetByID(ctx, id)
}

// List returns staff credentials, optionally including deactivated ones
func (s *Service) List(ctx context.Context, includeInactive bool) ([]repository.StaffCredential, error) {
	return s.creds.List(ctx, includeInactive)
}

// ResetPin replaces a staff member's PIN and clears their failure state.
// The new PIN goes through the same uniqueness check as enrollment.
func (s *Service) ResetPin(ctx context.Context, id int64, pin string) error {
	if !punch.IsValidPinFormat(pin) {
		return ErrInvalidPinFormat
	}

	if _, err := s.creds.GetByID(ctx, id); err != nil {
		return err
	}

	if err := s.checkPinUnique(ctx, pin, id); err != nil {
		return err
	}

	pinHash, err := s.pins.HashPin(pin)
	if err != nil {
		return fmt.Errorf("hashing pin: %w", err)
	}

	now := s.nowFunc()
	if err := s.creds.UpdatePinHash(ctx, id, pinHash, now); err != nil {
		return fmt.Errorf("updating pin hash: %w", err)
	}
	if err := s.creds.ResetFailureState(ctx, id, now); err != nil {
		return fmt.Errorf("resetting failure state: %w", err)
	}

	s.logger.Info("staff pin reset", "staff_id", id)
	return nil
}

// Unlock clears a staff member's failure state, ending any lockout window
// early. Safe to call on an unlocked account.
func (s *Service) Unlock(ctx context.Context, id int64) (*repository.StaffCredential, error) {
	cred, err := s.creds.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.nowFunc()
	wasLocked := cred.IsLocked(now)

	if err := s.creds.ResetFailureState(ctx, id, now); err != nil {
		return nil, fmt.Errorf("resetting failure state: %w", err)
	}

	cred.FailedAttempts = 0
	cred.LockedUntil = nil
	cred.UpdatedAt = now

	s.logger.Info("staff unlocked",
		"staff_id", id,
		"name", cred.Name,
		"was_locked", wasLocked,
	)

	if wasLocked {
		s.publishUnlocked(cred, now)
	}

	return cred, nil
}

// Deactivate removes a staff member from the punch candidate pool. The row
// is kept; entries keep their history.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	if err := s.creds.SetActive(ctx, id, false, s.nowFunc()); err != nil {
		return err
	}
	s.logger.Info("staff deactivated", "staff_id", id)
	return nil
}

// Activate returns a staff member to the punch candidate pool. Reactivation
// cannot re-check PIN uniqueness (only the hash survives); if the PIN has
// since been given to someone else, the resolver fails closed on first use.
func (s *Service) Activate(ctx context.Context, id int64) error {
	if err := s.creds.SetActive(ctx, id, true, s.nowFunc()); err != nil {
		return err
	}
	s.logger.Info("staff activated", "staff_id", id)
	return nil
}

// checkPinUnique fans the candidate PIN out over every active credential and
// rejects it if any hash verifies. excludeID skips the staff member being
// reset so re-issuing the same PIN is allowed.
func (s *Service) checkPinUnique(ctx context.Context, pin string, excludeID int64) error {
	candidates, err := s.creds.List(ctx, false)
	if err != nil {
		return fmt.Errorf("listing credentials: %w", err)
	}

	matches := s.resolver.Match(ctx, pin, candidates)
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, match := range matches {
		if match.ID != excludeID {
			return ErrPinInUse
		}
	}
	return nil
}

// publishUnlocked publishes a staff_unlocked event to the live feed
func (s *Service) publishUnlocked(cred *repository.StaffCredential, clearedAt time.Time) {
	if s.eventBus == nil {
		return
	}

	eventData := events.StaffUnlockedEvent{
		StaffID:   cred.ID,
		StaffName: cred.Name,
		ClearedAt: clearedAt,
	}

	data, err := json.Marshal(eventData)
	if err != nil {
		s.logger.Warn("failed to marshal staff_unlocked event", "error", err)
		return
	}

	event := events.Event{
		ID:        uuid.New().String(),
		Type:      events.EventTypeStaffUnlocked,
		Channel:   events.ChannelPunches,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	if err := s.eventBus.Publish(event); err != nil {
		s.logger.Warn("failed to publish staff_unlocked event",
			"staff_id", cred.ID,
			"error", err,
		)
	}
}
