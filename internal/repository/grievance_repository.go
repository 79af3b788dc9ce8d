package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/grievance-api/internal/models"
)

// uniqueViolation is the PostgreSQL error code for unique constraint breaches.
const uniqueViolation = "23505"

// GrievanceRepository manages persistence for grievance records.
type GrievanceRepository struct {
	db *sqlx.DB
}

// NewGrievanceRepository constructs a new repository.
func NewGrievanceRepository(db *sqlx.DB) *GrievanceRepository {
	return &GrievanceRepository{db: db}
}

// NextTicketSeq reserves the next value of the ticket code sequence.
func (r *GrievanceRepository) NextTicketSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := r.db.GetContext(ctx, &seq, "SELECT nextval('grievance_ticket_seq')"); err != nil {
		return 0, fmt.Errorf("next ticket seq: %w", err)
	}
	return seq, nil
}

// Create inserts the grievance together with its initial ledger entry in one
// transaction, so a grievance row never exists without its SUBMITTED record.
func (r *GrievanceRepository) Create(ctx context.Context, g *models.Grievance, initial *models.TrackingEntry) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.CurrentCategory == "" {
		g.CurrentCategory = g.Category
	}
	now := time.Now().UTC()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now
	}
	g.UpdatedAt = now
	if initial.ID == "" {
		initial.ID = uuid.NewString()
	}
	initial.GrievanceID = g.ID
	if initial.CreatedAt.IsZero() {
		initial.CreatedAt = now
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create grievance: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const insertGrievance = `INSERT INTO grievances
	(id, ticket_code, submitter_id, campus, category, current_category, subject, description, has_attachments, status, created_at, updated_at)
	VALUES (:id, :ticket_code, :submitter_id, :campus, :category, :current_category, :subject, :description, :has_attachments, :status, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insertGrievance, g); err != nil {
		if IsTicketCodeTaken(err) {
			return ErrTicketCodeTaken
		}
		return fmt.Errorf("create grievance: %w", err)
	}

	const insertEntry = `INSERT INTO tracking_entries
	(id, grievance_id, from_status, to_status, actor_id, note, redirect_target, is_redirect, is_override, created_at)
	VALUES (:id, :grievance_id, :from_status, :to_status, :actor_id, :note, :redirect_target, :is_redirect, :is_override, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insertEntry, initial); err != nil {
		return fmt.Errorf("create initial tracking entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create grievance: %w", err)
	}
	return nil
}

// GetByID fetches a grievance by identifier.
func (r *GrievanceRepository) GetByID(ctx context.Context, id string) (*models.Grievance, error) {
	const query = `SELECT id, ticket_code, submitter_id, campus, category, current_category, subject, description, has_attachments, status, created_at, updated_at
	FROM grievances WHERE id = $1`
	var g models.Grievance
	if err := r.db.GetContext(ctx, &g, query, id); err != nil {
		return nil, err
	}
	return &g, nil
}

// List returns grievances matching the filter, latest first.
func (r *GrievanceRepository) List(ctx context.Context, filter models.GrievanceFilter) ([]models.Grievance, int, error) {
	base := "FROM grievances"
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.SubmitterID != "" {
		where = append(where, fmt.Sprintf("submitter_id = $%d", len(args)+1))
		args = append(args, filter.SubmitterID)
	}
	if filter.Campus != "" {
		where = append(where, fmt.Sprintf("campus = $%d", len(args)+1))
		args = append(args, filter.Campus)
	}
	if len(filter.Categories) > 0 {
		values := make([]string, len(filter.Categories))
		for i, c := range filter.Categories {
			values[i] = string(c)
		}
		args = append(args, pq.Array(values))
		// Queue scoping follows the responsible category, so a redirected
		// grievance shows up in the target department's list, not its origin's.
		where = append(where, fmt.Sprintf("current_category = ANY($%d)", len(args)))
	}
	if len(filter.Statuses) > 0 {
		values := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			values[i] = string(s)
		}
		args = append(args, pq.Array(values))
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	whereClause := strings.Join(where, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, ticket_code, submitter_id, campus, category, current_category, subject, description, has_attachments, status, created_at, updated_at
%s WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`, base, whereClause, size, offset)
	var grievances []models.Grievance
	if err := r.db.SelectContext(ctx, &grievances, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list grievances: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s WHERE %s", base, whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count grievances: %w", err)
	}
	return grievances, total, nil
}

// SetHasAttachments flips the attachment flag after a successful claim pass.
func (r *GrievanceRepository) SetHasAttachments(ctx context.Context, id string, has bool) error {
	const query = `UPDATE grievances SET has_attachments = $1, updated_at = $2 WHERE id = $3`
	if _, err := r.db.ExecContext(ctx, query, has, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("set has_attachments: %w", err)
	}
	return nil
}

// CountByStatus aggregates grievance totals per workflow state.
func (r *GrievanceRepository) CountByStatus(ctx context.Context) ([]models.StatusCount, error) {
	const query = `SELECT status, COUNT(*) AS count FROM grievances GROUP BY status ORDER BY status`
	var counts []models.StatusCount
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	return counts, nil
}

// CountByCategory aggregates grievance totals per department.
func (r *GrievanceRepository) CountByCategory(ctx context.Context) ([]models.CategoryCount, error) {
	const query = `SELECT category, COUNT(*) AS count FROM grievances GROUP BY category ORDER BY category`
	var counts []models.CategoryCount
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("count by category: %w", err)
	}
	return counts, nil
}

// IsTicketCodeTaken reports whether the error is a unique violation on the
// ticket code constraint.
func IsTicketCodeTaken(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return string(pqErr.Code) == uniqueViolation
}
