package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/grievance-api/internal/dto"
	"github.com/noah-isme/grievance-api/internal/models"
	appErrors "github.com/noah-isme/grievance-api/pkg/errors"
	"github.com/noah-isme/grievance-api/pkg/storage"
)

type attachmentRepository interface {
	Insert(ctx context.Context, a *models.Attachment) error
	GetByID(ctx context.Context, id string) (*models.Attachment, error)
	GetManyByIDs(ctx context.Context, ids []string) ([]models.Attachment, error)
	Claim(ctx context.Context, attachmentID, grievanceID, uploaderID string) (bool, error)
	ListByGrievance(ctx context.Context, grievanceID string) ([]models.Attachment, error)
	ListExpiredUnclaimed(ctx context.Context, cutoff time.Time) ([]models.Attachment, error)
	DeleteIfUnclaimed(ctx context.Context, id string) (bool, error)
}

type blobStore interface {
	SaveStream(filename string, r io.Reader) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
}

type claimRecorder interface {
	RecordClaim(outcome string)
	RecordSweep(deleted int)
}

// AttachmentConfig bounds uploads and governs the retention sweep.
type AttachmentConfig struct {
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
	RetentionWindow  time.Duration
}

// AttachmentService tracks uploaded binary objects and their claim state.
type AttachmentService struct {
	repo    attachmentRepository
	blobs   blobStore
	signer  *storage.SignedURLSigner
	config  AttachmentConfig
	metrics claimRecorder
	logger  *zap.Logger
}

// NewAttachmentService constructs the service.
func NewAttachmentService(repo attachmentRepository, blobs blobStore, signer *storage.SignedURLSigner, cfg AttachmentConfig, metrics claimRecorder, logger *zap.Logger) *AttachmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RetentionWindow <= 0 {
		cfg.RetentionWindow = 24 * time.Hour
	}
	return &AttachmentService{repo: repo, blobs: blobs, signer: signer, config: cfg, metrics: metrics, logger: logger}
}

// UploadInput describes an incoming file.
type UploadInput struct {
	FileName  string
	MimeType  string
	SizeBytes int64
	Content   io.Reader
}

// Upload persists the blob and its metadata as a new unclaimed attachment.
// Each call produces a new logical attachment id even on client retries.
func (s *AttachmentService) Upload(ctx context.Context, in UploadInput, uploaderID string) (*models.Attachment, error) {
	if in.FileName == "" || in.Content == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file is required")
	}
	if uploaderID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "uploader is required")
	}
	if s.config.MaxFileSizeBytes > 0 && in.SizeBytes > s.config.MaxFileSizeBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds %d bytes", s.config.MaxFileSizeBytes))
	}
	if len(s.config.AllowedMIMEs) > 0 && !contains(s.config.AllowedMIMEs, in.MimeType) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("mime type %s not allowed", in.MimeType))
	}

	id := uuid.NewString()
	storedPath := filepath.Join(time.Now().UTC().Format("2006/01"), id+filepath.Ext(in.FileName))
	if _, err := s.blobs.SaveStream(storedPath, in.Content); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to store upload")
	}

	attachment := &models.Attachment{
		ID:         id,
		FileName:   in.FileName,
		StoredPath: storedPath,
		MimeType:   in.MimeType,
		SizeBytes:  in.SizeBytes,
		UploadedBy: uploaderID,
		UploadedAt: time.Now().UTC(),
	}
	if err := s.repo.Insert(ctx, attachment); err != nil {
		if delErr := s.blobs.Delete(storedPath); delErr != nil {
			s.logger.Warn("failed to remove orphaned blob", zap.String("path", storedPath), zap.Error(delErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to record upload")
	}
	return attachment, nil
}

// PrecheckOwnership verifies every id references an existing, unclaimed, live
// attachment owned by ownerID. Returns the ids that fail, in input order.
// This is the strict pre-creation gate; the claim pass that follows creation
// is best-effort and reported per item.
func (s *AttachmentService) PrecheckOwnership(ctx context.Context, ids []string, ownerID string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	attachments, err := s.repo.GetManyByIDs(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to look up attachments")
	}
	byID := make(map[string]models.Attachment, len(attachments))
	for _, a := range attachments {
		byID[a.ID] = a
	}
	var invalid []string
	for _, id := range ids {
		a, ok := byID[id]
		if !ok || a.Claimed() || a.DeletedAt != nil || a.UploadedBy != ownerID {
			invalid = append(invalid, id)
		}
	}
	return invalid, nil
}

// Claim links one unclaimed attachment to a grievance. The repository runs a
// single conditional update, so concurrent claims resolve to exactly one
// winner; a failed precondition returns false, not an error.
func (s *AttachmentService) Claim(ctx context.Context, attachmentID, grievanceID, uploaderID string) (bool, error) {
	ok, err := s.repo.Claim(ctx, attachmentID, grievanceID, uploaderID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to claim attachment")
	}
	if s.metrics != nil {
		if ok {
			s.metrics.RecordClaim(OutcomeLinked)
		} else {
			s.metrics.RecordClaim(OutcomeRejected)
		}
	}
	return ok, nil
}

// ClaimMany links the given attachments best-effort: failures are collected
// per item and never abort the pass.
func (s *AttachmentService) ClaimMany(ctx context.Context, ids []string, grievanceID, uploaderID string) (models.ClaimResult, error) {
	result := models.ClaimResult{}
	for _, id := range ids {
		ok, err := s.Claim(ctx, id, grievanceID, uploaderID)
		if err != nil {
			result.FailedCount++
			result.Failed = append(result.Failed, models.AttachmentClaimFailure{AttachmentID: id, Reason: "storage error"})
			s.logger.Warn("attachment claim errored", zap.String("attachment_id", id), zap.Error(err))
			continue
		}
		if !ok {
			result.FailedCount++
			result.Failed = append(result.Failed, models.AttachmentClaimFailure{AttachmentID: id, Reason: s.claimFailureReason(ctx, id, uploaderID)})
			continue
		}
		result.LinkedCount++
	}
	return result, nil
}

func (s *AttachmentService) claimFailureReason(ctx context.Context, id, uploaderID string) string {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "attachment not found"
		}
		return "attachment unavailable"
	}
	switch {
	case a.DeletedAt != nil:
		return "attachment deleted"
	case a.Claimed():
		return "already claimed"
	case a.UploadedBy != uploaderID:
		return "not the uploader"
	default:
		return "claim rejected"
	}
}

// ListByGrievance returns the attachments linked to a grievance.
func (s *AttachmentService) ListByGrievance(ctx context.Context, grievanceID string) ([]models.Attachment, error) {
	attachments, err := s.repo.ListByGrievance(ctx, grievanceID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to list attachments")
	}
	return attachments, nil
}

// SweepExpired removes unclaimed attachments older than the retention window
// along with their blobs. The row delete keys off the same unclaimed
// predicate as Claim, so a claim landing mid-sweep keeps its attachment.
// Failures deleting individual blobs are logged and do not abort the sweep.
func (s *AttachmentService) SweepExpired(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-s.config.RetentionWindow)
	expired, err := s.repo.ListExpiredUnclaimed(ctx, cutoff)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to list expired attachments")
	}

	deleted := 0
	for _, a := range expired {
		ok, err := s.repo.DeleteIfUnclaimed(ctx, a.ID)
		if err != nil {
			s.logger.Warn("sweep failed to delete row", zap.String("attachment_id", a.ID), zap.Error(err))
			continue
		}
		if !ok {
			// Claimed between the eligibility read and the delete.
			continue
		}
		if err := s.blobs.Delete(a.StoredPath); err != nil {
			s.logger.Warn("sweep failed to delete blob", zap.String("path", a.StoredPath), zap.Error(err))
		}
		deleted++
	}
	if s.metrics != nil && deleted > 0 {
		s.metrics.RecordSweep(deleted)
	}
	if deleted > 0 {
		s.logger.Info("attachment sweep completed", zap.Int("deleted", deleted))
	}
	return deleted, nil
}

// DownloadLink issues a signed, time-limited token for an attachment blob.
func (s *AttachmentService) DownloadLink(ctx context.Context, attachmentID string) (*dto.DownloadLink, error) {
	a, err := s.repo.GetByID(ctx, attachmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attachment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to fetch attachment")
	}
	if a.DeletedAt != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "attachment not found")
	}
	token, expiresAt, err := s.signer.Generate(a.ID, a.StoredPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}
	return &dto.DownloadLink{Token: token, ExpiresAt: expiresAt}, nil
}

// OpenByToken validates a signed token and opens the referenced blob.
func (s *AttachmentService) OpenByToken(token string) (*os.File, error) {
	_, relPath, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid download token")
	}
	file, err := s.blobs.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "attachment blob missing")
	}
	return file, nil
}

func contains(haystack []string, needle string) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}
