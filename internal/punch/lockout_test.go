package punch

import (
	"context"
	"testing"
	"time"

	"github.com/lengolf/timeclock/backend/internal/repository"
)

func TestLockoutPolicy_Defaults(t *testing.T) {
	policy := NewLockoutPolicy(newMockCredentialRepo(), 0, 0, testLogger())

	if policy.Threshold() != DefaultLockoutThreshold {
		t.Errorf("expected default threshold %d, got %d", DefaultLockoutThreshold, policy.Threshold())
	}
	if policy.Duration() != DefaultLockoutDuration {
		t.Errorf("expected default duration %v, got %v", DefaultLockoutDuration, policy.Duration())
	}
}

func TestLockoutPolicy_ThresholdTransition(t *testing.T) {
	creds := newMockCredentialRepo()
	cred := creds.add(repository.StaffCredential{Name: "Nok", PinHash: "x", Active: true})
	policy := NewLockoutPolicy(creds, 3, time.Hour, testLogger())

	ctx := context.Background()
	now := time.Now()

	// Two failures: counted but not locked
	for i := 0; i < 2; i++ {
		locked, err := policy.RecordFailure(ctx, now)
		if err != nil {
			t.Fatalf("failure %d: %v", i+1, err)
		}
		if len(locked) != 0 {
			t.Fatalf("failure %d should not lock", i+1)
		}
	}

	// Third crosses the threshold
	locked, err := policy.RecordFailure(ctx, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(locked) != 1 || locked[0].ID != cred.ID {
		t.Fatalf("expected credential %d locked, got %v", cred.ID, locked)
	}
	if locked[0].LockedUntil == nil || !locked[0].LockedUntil.Equal(now.Add(time.Hour)) {
		t.Error("lock window should be now + duration")
	}
}

func TestLockoutPolicy_LockIsAbsolute(t *testing.T) {
	creds := newMockCredentialRepo()
	cred := creds.add(repository.StaffCredential{Name: "Nok", PinHash: "x", Active: true})
	policy := NewLockoutPolicy(creds, 2, time.Hour, testLogger())

	ctx := context.Background()
	now := time.Now()

	policy.RecordFailure(ctx, now)
	policy.RecordFailure(ctx, now) // locks until now+1h

	// A later failure while locked must not extend the window
	locked, err := policy.RecordFailure(ctx, now.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(locked) != 0 {
		t.Fatal("locked credential must not absorb further failures")
	}

	stored, _ := creds.GetByID(ctx, cred.ID)
	if !stored.LockedUntil.Equal(now.Add(time.Hour)) {
		t.Errorf("lock window moved: %v, want %v", stored.LockedUntil, now.Add(time.Hour))
	}
	if stored.FailedAttempts != 2 {
		t.Errorf("counter changed while locked: %d", stored.FailedAttempts)
	}
}

func TestLockoutPolicy_ExpiredLockResetsCounter(t *testing.T) {
	creds := newMockCredentialRepo()
	cred := creds.add(repository.StaffCredential{Name: "Nok", PinHash: "x", Active: true})
	policy := NewLockoutPolicy(creds, 3, time.Hour, testLogger())

	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 3; i++ {
		policy.RecordFailure(ctx, now)
	}

	// First failure after expiry starts a fresh window at 1, not 4
	after := now.Add(2 * time.Hour)
	locked, err := policy.RecordFailure(ctx, after)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(locked) != 0 {
		t.Fatal("fresh window must not re-lock on the first failure")
	}

	stored, _ := creds.GetByID(ctx, cred.ID)
	if stored.FailedAttempts != 1 {
		t.Errorf("expected counter restarted at 1, got %d", stored.FailedAttempts)
	}
	if stored.IsLocked(after) {
		t.Error("credential should not be locked")
	}
}

func TestLockoutPolicy_RecordSuccessClearsState(t *testing.T) {
	creds := newMockCredentialRepo()
	cred := creds.add(repository.StaffCredential{Name: "Nok", PinHash: "x", Active: true})
	policy := NewLockoutPolicy(creds, 10, time.Hour, testLogger())

	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 5; i++ {
		policy.RecordFailure(ctx, now)
	}

	if err := policy.RecordSuccess(ctx, cred.ID, now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, _ := creds.GetByID(ctx, cred.ID)
	if stored.FailedAttempts != 0 {
		t.Errorf("expected counter 0, got %d", stored.FailedAttempts)
	}
	if stored.LockedUntil != nil {
		t.Error("expected lock cleared")
	}
}

func TestLockoutPolicy_IsLocked(t *testing.T) {
	policy := NewLockoutPolicy(newMockCredentialRepo(), 10, time.Hour, testLogger())
	now := time.Now()

	until := now.Add(20 * time.Minute)
	locked := &repository.StaffCredential{LockedUntil: &until}

	isLocked, remaining := policy.IsLocked(locked, now)
	if !isLocked {
		t.Fatal("expected locked")
	}
	if remaining != 20*time.Minute {
		t.Errorf("expected 20m remaining, got %v", remaining)
	}

	// Window expiry flips the answer with no state change
	isLocked, remaining = policy.IsLocked(locked, now.Add(21*time.Minute))
	if isLocked {
		t.Error("expected unlocked after expiry")
	}
	if remaining != 0 {
		t.Errorf("expected 0 remaining, got %v", remaining)
	}

	isLocked, _ = policy.IsLocked(&repository.StaffCredential{}, now)
	if isLocked {
		t.Error("credential without a window must not read locked")
	}
}

func TestLockoutPolicy_FailureHitsWholePool(t *testing.T) {
	creds := newMockCredentialRepo()
	nok := creds.add(repository.StaffCredential{Name: "Nok", PinHash: "x", Active: true})
	bee := creds.add(repository.StaffCredential{Name: "Bee", PinHash: "y", Active: true})
	creds.add(repository.StaffCredential{Name: "Old", PinHash: "z", Active: false})
	policy := NewLockoutPolicy(creds, 10, time.Hour, testLogger())

	ctx := context.Background()
	if _, err := policy.RecordFailure(ctx, time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// An unmatched PIN names nobody, so every active credential absorbs it;
	// inactive rows stay untouched
	for _, id := range []int64{nok.ID, bee.ID} {
		stored, _ := creds.GetByID(ctx, id)
		if stored.FailedAttempts != 1 {
			t.Errorf("credential %d: expected 1 failure, got %d", id, stored.FailedAttempts)
		}
	}
	inactive, _ := creds.GetByID(ctx, 3)
	if inactive.FailedAttempts != 0 {
		t.Errorf("inactive credential charged: %d", inactive.FailedAttempts)
	}
}
