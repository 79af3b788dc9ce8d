package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/grievance-api/internal/models"
)

// AttachmentRepository manages attachment metadata rows.
type AttachmentRepository struct {
	db *sqlx.DB
}

// NewAttachmentRepository constructs a new repository.
func NewAttachmentRepository(db *sqlx.DB) *AttachmentRepository {
	return &AttachmentRepository{db: db}
}

// Insert persists a freshly uploaded, unclaimed attachment.
func (r *AttachmentRepository) Insert(ctx context.Context, a *models.Attachment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.UploadedAt.IsZero() {
		a.UploadedAt = time.Now().UTC()
	}
	const query = `INSERT INTO attachments
	(id, grievance_id, file_name, stored_path, mime_type, size_bytes, uploaded_by, uploaded_at, deleted_at)
	VALUES (:id, :grievance_id, :file_name, :stored_path, :mime_type, :size_bytes, :uploaded_by, :uploaded_at, :deleted_at)`
	if _, err := r.db.NamedExecContext(ctx, query, a); err != nil {
		return fmt.Errorf("insert attachment: %w", err)
	}
	return nil
}

// GetByID fetches one attachment.
func (r *AttachmentRepository) GetByID(ctx context.Context, id string) (*models.Attachment, error) {
	const query = `SELECT id, grievance_id, file_name, stored_path, mime_type, size_bytes, uploaded_by, uploaded_at, deleted_at
	FROM attachments WHERE id = $1`
	var a models.Attachment
	if err := r.db.GetContext(ctx, &a, query, id); err != nil {
		return nil, err
	}
	return &a, nil
}

// GetManyByIDs fetches the attachments whose ids are in the provided set.
// Missing ids are simply absent from the result.
func (r *AttachmentRepository) GetManyByIDs(ctx context.Context, ids []string) ([]models.Attachment, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const query = `SELECT id, grievance_id, file_name, stored_path, mime_type, size_bytes, uploaded_by, uploaded_at, deleted_at
	FROM attachments WHERE id = ANY($1)`
	var attachments []models.Attachment
	if err := r.db.SelectContext(ctx, &attachments, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("get attachments: %w", err)
	}
	return attachments, nil
}

// Claim links an unclaimed attachment to a grievance with a single
// conditional update. The predicate makes the claim a compare-and-swap: it
// only succeeds while the attachment is unclaimed, alive, and owned by the
// claiming uploader. Returns false when the precondition no longer holds.
func (r *AttachmentRepository) Claim(ctx context.Context, attachmentID, grievanceID, uploaderID string) (bool, error) {
	const query = `UPDATE attachments SET grievance_id = $1
	WHERE id = $2 AND grievance_id IS NULL AND uploaded_by = $3 AND deleted_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, grievanceID, attachmentID, uploaderID)
	if err != nil {
		return false, fmt.Errorf("claim attachment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim attachment: %w", err)
	}
	return affected == 1, nil
}

// ListByGrievance returns live attachments claimed by a grievance.
func (r *AttachmentRepository) ListByGrievance(ctx context.Context, grievanceID string) ([]models.Attachment, error) {
	const query = `SELECT id, grievance_id, file_name, stored_path, mime_type, size_bytes, uploaded_by, uploaded_at, deleted_at
	FROM attachments WHERE grievance_id = $1 AND deleted_at IS NULL ORDER BY uploaded_at ASC`
	var attachments []models.Attachment
	if err := r.db.SelectContext(ctx, &attachments, query, grievanceID); err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	return attachments, nil
}

// ListExpiredUnclaimed returns unclaimed attachments uploaded before the cutoff.
func (r *AttachmentRepository) ListExpiredUnclaimed(ctx context.Context, cutoff time.Time) ([]models.Attachment, error) {
	const query = `SELECT id, grievance_id, file_name, stored_path, mime_type, size_bytes, uploaded_by, uploaded_at, deleted_at
	FROM attachments WHERE grievance_id IS NULL AND deleted_at IS NULL AND uploaded_at < $1 ORDER BY uploaded_at ASC`
	var attachments []models.Attachment
	if err := r.db.SelectContext(ctx, &attachments, query, cutoff); err != nil {
		return nil, fmt.Errorf("list expired attachments: %w", err)
	}
	return attachments, nil
}

// DeleteIfUnclaimed removes an attachment row only while it is still
// unclaimed. The predicate mirrors Claim's, so a sweep racing a live claim
// resolves at the store: whichever write lands first wins.
func (r *AttachmentRepository) DeleteIfUnclaimed(ctx context.Context, id string) (bool, error) {
	const query = `DELETE FROM attachments WHERE id = $1 AND grievance_id IS NULL`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("delete unclaimed attachment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete unclaimed attachment: %w", err)
	}
	return affected == 1, nil
}
