package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/grievance-api/internal/models"
)

// TrackingRepository manages the append-only transition ledger.
type TrackingRepository struct {
	db *sqlx.DB
}

// NewTrackingRepository constructs a new repository.
func NewTrackingRepository(db *sqlx.DB) *TrackingRepository {
	return &TrackingRepository{db: db}
}

// Append records one transition. The grievance's cached status column is the
// serialization point: it is advanced with a conditional UPDATE in the same
// transaction as the ledger insert, so two admins racing on the same ticket
// cannot both append from the same from_status. Returns ErrStaleAppend when
// the precondition fails and sql.ErrNoRows when the grievance does not exist.
func (r *TrackingRepository) Append(ctx context.Context, entry *models.TrackingEntry) error {
	if entry.FromStatus == nil {
		return fmt.Errorf("append tracking entry: from_status required")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger append: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	// Redirects also move queue ownership; the cached current_category column
	// advances in the same transaction so list scoping never lags the ledger.
	var newCategory *models.Category
	if entry.IsRedirect {
		newCategory = entry.RedirectTarget
	}
	const advance = `UPDATE grievances SET status = $1, updated_at = $2, current_category = COALESCE($3, current_category)
	WHERE id = $4 AND status = $5`
	res, err := tx.ExecContext(ctx, advance, entry.ToStatus, entry.CreatedAt, newCategory, entry.GrievanceID, *entry.FromStatus)
	if err != nil {
		return fmt.Errorf("advance grievance status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("advance grievance status: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := tx.GetContext(ctx, &exists, "SELECT EXISTS (SELECT 1 FROM grievances WHERE id = $1)", entry.GrievanceID); err != nil {
			return fmt.Errorf("check grievance exists: %w", err)
		}
		if !exists {
			return sql.ErrNoRows
		}
		return ErrStaleAppend
	}

	const insert = `INSERT INTO tracking_entries
	(id, grievance_id, from_status, to_status, actor_id, note, redirect_target, is_redirect, is_override, created_at)
	VALUES (:id, :grievance_id, :from_status, :to_status, :actor_id, :note, :redirect_target, :is_redirect, :is_override, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insert, entry); err != nil {
		return fmt.Errorf("insert tracking entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger append: %w", err)
	}
	return nil
}

// History returns every ledger entry for a grievance in ascending creation
// order. Pure read.
func (r *TrackingRepository) History(ctx context.Context, grievanceID string) ([]models.TrackingEntry, error) {
	const query = `SELECT id, grievance_id, from_status, to_status, actor_id, note, redirect_target, is_redirect, is_override, created_at
	FROM tracking_entries WHERE grievance_id = $1 ORDER BY created_at ASC, id ASC`
	var entries []models.TrackingEntry
	if err := r.db.SelectContext(ctx, &entries, query, grievanceID); err != nil {
		return nil, fmt.Errorf("ledger history: %w", err)
	}
	return entries, nil
}
