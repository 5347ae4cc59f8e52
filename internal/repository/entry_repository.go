package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Time entry repository errors
var (
	ErrEntryNotFound   = errors.New("time entry not found")
	ErrPhotoNotPending = errors.New("time entry photo is not pending")
)

// TimeEntryRepository defines the interface for time entry data access.
// Entries are append-only: after RecordPunch nothing but the photo fields
// ever changes, and those only move forward.
type TimeEntryRepository interface {
	RecordPunch(ctx context.Context, entry *TimeEntry, dedupeWindow time.Duration) (deduped bool, err error)
	GetByID(ctx context.Context, id uuid.UUID) (*TimeEntry, error)
	GetMostRecent(ctx context.Context, staffID int64) (*TimeEntry, error)
	List(ctx context.Context, params ListEntryParams) ([]TimeEntry, int, error)
	MarkPhotoUploaded(ctx context.Context, id uuid.UUID, photoRef string) error
	MarkPhotoFailed(ctx context.Context, id uuid.UUID) error
	PhotoRefsExist(ctx context.Context, refs []string) (map[string]bool, error)
}

const entryColumns = `id, staff_id, action, timestamp, photo_status, photo_ref, device_info, created_at`

// TimeEntryRepo implements TimeEntryRepository using PostgreSQL
type TimeEntryRepo struct {
	db *sqlx.DB
}

// NewTimeEntryRepo creates a new TimeEntryRepo instance
func NewTimeEntryRepo(db *sqlx.DB) *TimeEntryRepo {
	return &TimeEntryRepo{db: db}
}

// RecordPunch durably inserts a punch, absorbing duplicate submissions.
//
// The whole check-then-insert runs under a per-staff transaction-scoped
// advisory lock, so two rapid taps from the same staff member are serialized
// while punches from different staff never contend. If an entry with the same
// staff and action already exists inside the dedupe window, *entry is
// overwritten with the existing row and deduped is true; no new row is
// created.
func (r *TimeEntryRepo) RecordPunch(ctx context.Context, entry *TimeEntry, dedupeWindow time.Duration) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, entry.StaffID); err != nil {
		return false, fmt.Errorf("failed to acquire punch lock: %w", err)
	}

	cutoff := entry.Timestamp.Add(-dedupeWindow)
	dedupeQuery := `
		SELECT ` + entryColumns + `
		FROM time_entries
		WHERE staff_id = $1 AND action = $2 AND timestamp > $3
		ORDER BY timestamp DESC
		LIMIT 1
	`

	var existing TimeEntry
	err = tx.GetContext(ctx, &existing, dedupeQuery, entry.StaffID, entry.Action, cutoff)
	switch {
	case err == nil:
		if commitErr := tx.Commit(); commitErr != nil {
			return false, fmt.Errorf("failed to commit dedupe read: %w", commitErr)
		}
		*entry = existing
		return true, nil
	case errors.Is(err, sql.ErrNoRows):
		// No duplicate inside the window, proceed with the insert.
	default:
		return false, fmt.Errorf("failed to check for duplicate punch: %w", err)
	}

	insertQuery := `
		INSERT INTO time_entries (staff_id, action, timestamp, photo_status, device_info)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, photo_ref, created_at
	`

	err = tx.QueryRowContext(ctx, insertQuery,
		entry.StaffID,
		entry.Action,
		entry.Timestamp,
		entry.PhotoStatus,
		entry.DeviceInfo,
	).Scan(&entry.ID, &entry.PhotoRef, &entry.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert time entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit time entry: %w", err)
	}

	return false, nil
}

// GetByID retrieves a time entry by its ID
func (r *TimeEntryRepo) GetByID(ctx context.Context, id uuid.UUID) (*TimeEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM time_entries WHERE id = $1`

	var entry TimeEntry
	err := r.db.GetContext(ctx, &entry, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to get time entry: %w", err)
	}

	return &entry, nil
}

// GetMostRecent retrieves the staff member's latest entry, or nil when the
// staff member has never punched. Backed by the (staff_id, timestamp) index.
func (r *TimeEntryRepo) GetMostRecent(ctx context.Context, staffID int64) (*TimeEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM time_entries
		WHERE staff_id = $1
		ORDER BY timestamp DESC, created_at DESC
		LIMIT 1
	`

	var entry TimeEntry
	err := r.db.GetContext(ctx, &entry, query, staffID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get most recent entry: %w", err)
	}

	return &entry, nil
}

// List retrieves time entries with pagination and filtering
func (r *TimeEntryRepo) List(ctx context.Context, params ListEntryParams) ([]TimeEntry, int, error) {
	// Apply defaults
	if params.Page < 1 {
		params.Page = 1
	}
	if params.Limit < 1 {
		params.Limit = 20
	}
	if params.Limit > 200 {
		params.Limit = 200
	}

	baseQuery := ` FROM time_entries WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if params.StaffID != nil {
		baseQuery += fmt.Sprintf(" AND staff_id = $%d", argIdx)
		args = append(args, *params.StaffID)
		argIdx++
	}
	if params.Action != nil {
		baseQuery += fmt.Sprintf(" AND action = $%d", argIdx)
		args = append(args, *params.Action)
		argIdx++
	}
	if params.PhotoStatus != nil {
		baseQuery += fmt.Sprintf(" AND photo_status = $%d", argIdx)
		args = append(args, *params.PhotoStatus)
		argIdx++
	}
	if params.FromTime != nil {
		baseQuery += fmt.Sprintf(" AND timestamp >= $%d", argIdx)
		args = append(args, *params.FromTime)
		argIdx++
	}
	if params.ToTime != nil {
		baseQuery += fmt.Sprintf(" AND timestamp < $%d", argIdx)
		args = append(args, *params.ToTime)
		argIdx++
	}

	// Count total records
	countQuery := "SELECT COUNT(*)" + baseQuery
	var totalCount int
	if err := r.db.GetContext(ctx, &totalCount, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count time entries: %w", err)
	}

	sortOrder := "DESC"
	if params.Order == "asc" {
		sortOrder = "ASC"
	}

	selectQuery := "SELECT " + entryColumns + baseQuery +
		fmt.Sprintf(" ORDER BY timestamp %s, created_at %s", sortOrder, sortOrder)

	offset := (params.Page - 1) * params.Limit
	selectQuery += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, params.Limit, offset)

	var entries []TimeEntry
	if err := r.db.SelectContext(ctx, &entries, selectQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to query time entries: %w", err)
	}

	return entries, totalCount, nil
}

// MarkPhotoUploaded finishes the photo lifecycle with the storage reference.
// Guarded on the pending state so a terminal status is never rewritten.
func (r *TimeEntryRepo) MarkPhotoUploaded(ctx context.Context, id uuid.UUID, photoRef string) error {
	query := `
		UPDATE time_entries
		SET photo_status = $2, photo_ref = $3
		WHERE id = $1 AND photo_status = $4
	`

	result, err := r.db.ExecContext(ctx, query, id, PhotoStatusUploaded, photoRef, PhotoStatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark photo uploaded: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrPhotoNotPending
	}

	return nil
}

// MarkPhotoFailed records a terminal photo failure. Guarded on the pending
// state like MarkPhotoUploaded; the punch row itself is untouched.
func (r *TimeEntryRepo) MarkPhotoFailed(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE time_entries
		SET photo_status = $2
		WHERE id = $1 AND photo_status = $3
	`

	result, err := r.db.ExecContext(ctx, query, id, PhotoStatusFailed, PhotoStatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark photo failed: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrPhotoNotPending
	}

	return nil
}

// PhotoRefsExist checks which storage refs are still referenced by an entry.
// Supports the photo retention sweep.
func (r *TimeEntryRepo) PhotoRefsExist(ctx context.Context, refs []string) (map[string]bool, error) {
	result := make(map[string]bool, len(refs))
	if len(refs) == 0 {
		return result, nil
	}

	query := `SELECT photo_ref FROM time_entries WHERE photo_ref = ANY($1)`

	var existing []string
	if err := r.db.SelectContext(ctx, &existing, query, refs); err != nil {
		return nil, fmt.Errorf("failed to check photo refs: %w", err)
	}

	for _, ref := range refs {
		result[ref] = false
	}
	for _, ref := range existing {
		result[ref] = true
	}

	return result, nil
}
