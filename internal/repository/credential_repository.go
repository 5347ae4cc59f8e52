package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Common errors
var (
	ErrStaffNotFound = errors.New("staff credential not found")
)

const credentialColumns = `id, name, pin_hash, active, failed_attempts, locked_until, created_at, updated_at`

// CredentialRepository defines the interface for staff credential data access.
// Failure-counter mutations go through the atomic RecordFailures/ResetFailureState
// pair; nothing else touches failed_attempts or locked_until.
type CredentialRepository interface {
	Create(ctx context.Context, cred *StaffCredential) error
	GetByID(ctx context.Context, id int64) (*StaffCredential, error)
	List(ctx context.Context, includeInactive bool) ([]StaffCredential, error)
	ListActiveUnlocked(ctx context.Context, now time.Time) ([]StaffCredential, error)
	ListActiveLocked(ctx context.Context, now time.Time) ([]StaffCredential, error)
	UpdatePinHash(ctx context.Context, id int64, pinHash string, now time.Time) error
	SetActive(ctx context.Context, id int64, active bool, now time.Time) error
	RecordFailures(ctx context.Context, threshold int, lockDuration time.Duration, now time.Time) ([]StaffCredential, error)
	ResetFailureState(ctx context.Context, id int64, now time.Time) error
}

// credentialRepository implements CredentialRepository using PostgreSQL
type credentialRepository struct {
	pool *pgxpool.Pool
}

// NewCredentialRepository creates a new CredentialRepository instance
func NewCredentialRepository(pool *pgxpool.Pool) CredentialRepository {
	return &credentialRepository{pool: pool}
}

// Create inserts a new staff credential
func (r *credentialRepository) Create(ctx context.Context, cred *StaffCredential) error {
	query := `
		INSERT INTO staff_credentials (name, pin_hash, active)
		VALUES ($1, $2, $3)
		RETURNING id, failed_attempts, locked_until, created_at, updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		cred.Name,
		cred.PinHash,
		cred.Active,
	).Scan(&cred.ID, &cred.FailedAttempts, &cred.LockedUntil, &cred.CreatedAt, &cred.UpdatedAt)
	if err != nil {
		return err
	}

	return nil
}

// GetByID retrieves a staff credential by its ID
func (r *credentialRepository) GetByID(ctx context.Context, id int64) (*StaffCredential, error) {
	query := `SELECT ` + credentialColumns + ` FROM staff_credentials WHERE id = $1`

	cred := &StaffCredential{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&cred.ID,
		&cred.Name,
		&cred.PinHash,
		&cred.Active,
		&cred.FailedAttempts,
		&cred.LockedUntil,
		&cred.CreatedAt,
		&cred.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStaffNotFound
		}
		return nil, err
	}

	return cred, nil
}

// List retrieves all staff credentials, optionally including deactivated ones
func (r *credentialRepository) List(ctx context.Context, includeInactive bool) ([]StaffCredential, error) {
	query := `SELECT ` + credentialColumns + ` FROM staff_credentials`
	if !includeInactive {
		query += ` WHERE active = TRUE`
	}
	query += ` ORDER BY name ASC, id ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanCredentials(rows)
}

// ListActiveUnlocked retrieves the PIN resolution candidate set: credentials
// that are active and not inside a lockout window at now. Locked credentials
// are excluded here so the resolver never verifies against an account that
// cannot succeed.
func (r *credentialRepository) ListActiveUnlocked(ctx context.Context, now time.Time) ([]StaffCredential, error) {
	query := `
		SELECT ` + credentialColumns + `
		FROM staff_credentials
		WHERE active = TRUE
		  AND (locked_until IS NULL OR locked_until <= $1)
		ORDER BY id ASC
	`

	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanCredentials(rows)
}

// ListActiveLocked retrieves active credentials currently inside a lockout
// window. Checked only after the unlocked candidate set produced no match,
// to tell a locked account apart from a wrong PIN.
func (r *credentialRepository) ListActiveLocked(ctx context.Context, now time.Time) ([]StaffCredential, error) {
	query := `
		SELECT ` + credentialColumns + `
		FROM staff_credentials
		WHERE active = TRUE
		  AND locked_until IS NOT NULL
		  AND locked_until > $1
		ORDER BY id ASC
	`

	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanCredentials(rows)
}

// UpdatePinHash replaces a credential's PIN hash
func (r *credentialRepository) UpdatePinHash(ctx context.Context, id int64, pinHash string, now time.Time) error {
	query := `UPDATE staff_credentials SET pin_hash = $2, updated_at = $3 WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id, pinHash, now)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrStaffNotFound
	}

	return nil
}

// SetActive flips the active flag. Deactivation is the only removal this
// table supports; rows are kept for the audit trail.
func (r *credentialRepository) SetActive(ctx context.Context, id int64, active bool, now time.Time) error {
	query := `UPDATE staff_credentials SET active = $2, updated_at = $3 WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id, active, now)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrStaffNotFound
	}

	return nil
}

// RecordFailures registers one failed PIN attempt against every active,
// currently-unlocked credential in a single atomic statement and returns the
// updated rows. An unmatched PIN carries no staff identity, so the whole
// candidate set that failed to produce the match absorbs the failure.
//
// The statement handles the racy situations without a read-modify-write gap:
//   - lock already expired: the stale counter resets and this failure counts
//     as the first of a fresh window;
//   - counter crossing the threshold: locked_until is set to now + lockDuration
//     in the same statement, so the transition to locked happens exactly once;
//   - already locked: the row fails the WHERE clause (re-evaluated against the
//     latest committed version under row locks), so a concurrent attempt that
//     lands after the transition neither increments the counter nor extends
//     the window. The lock is absolute, set once.
//
// Concurrent failures never lose an increment because the increment reads the
// row value inside the UPDATE itself. A returned row with a non-nil
// locked_until was locked by this statement.
func (r *credentialRepository) RecordFailures(ctx context.Context, threshold int, lockDuration time.Duration, now time.Time) ([]StaffCredential, error) {
	query := `
		UPDATE staff_credentials
		SET failed_attempts = CASE
		        WHEN locked_until IS NOT NULL AND locked_until <= $1 THEN 1
		        ELSE failed_attempts + 1
		    END,
		    locked_until = CASE
		        WHEN locked_until IS NOT NULL AND locked_until <= $1 THEN
		            CASE WHEN 1 >= $2 THEN $1 + ($3 * INTERVAL '1 second') ELSE NULL END
		        ELSE
		            CASE WHEN failed_attempts + 1 >= $2 THEN $1 + ($3 * INTERVAL '1 second') ELSE NULL END
		    END,
		    updated_at = $1
		WHERE active = TRUE
		  AND (locked_until IS NULL OR locked_until <= $1)
		RETURNING ` + credentialColumns + `
	`

	rows, err := r.pool.Query(ctx, query, now, threshold, int64(lockDuration.Seconds()))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanCredentials(rows)
}

// ResetFailureState clears the failure counter and any lockout window in one
// statement. Called on successful verification and on administrative unlock.
func (r *credentialRepository) ResetFailureState(ctx context.Context, id int64, now time.Time) error {
	query := `
		UPDATE staff_credentials
		SET failed_attempts = 0, locked_until = NULL, updated_at = $2
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id, now)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrStaffNotFound
	}

	return nil
}

func scanCredentials(rows pgx.Rows) ([]StaffCredential, error) {
	var creds []StaffCredential
	for rows.Next() {
		var cred StaffCredential
		if err := rows.Scan(
			&cred.ID,
			&cred.Name,
			&cred.PinHash,
			&cred.Active,
			&cred.FailedAttempts,
			&cred.LockedUntil,
			&cred.CreatedAt,
			&cred.UpdatedAt,
		); err != nil {
			return nil, err
		}
		creds = append(creds, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return creds, nil
}
