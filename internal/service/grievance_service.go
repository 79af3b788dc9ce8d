package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/grievance-api/internal/dto"
	"github.com/noah-isme/grievance-api/internal/models"
	"github.com/noah-isme/grievance-api/internal/repository"
	appErrors "github.com/noah-isme/grievance-api/pkg/errors"
)

type grievanceRepository interface {
	NextTicketSeq(ctx context.Context) (int64, error)
	Create(ctx context.Context, g *models.Grievance, initial *models.TrackingEntry) error
	GetByID(ctx context.Context, id string) (*models.Grievance, error)
	List(ctx context.Context, filter models.GrievanceFilter) ([]models.Grievance, int, error)
	SetHasAttachments(ctx context.Context, id string, has bool) error
}

type trackingLedger interface {
	Append(ctx context.Context, entry *models.TrackingEntry) error
	History(ctx context.Context, grievanceID string) ([]models.TrackingEntry, error)
}

type attachmentLinker interface {
	PrecheckOwnership(ctx context.Context, ids []string, ownerID string) ([]string, error)
	ClaimMany(ctx context.Context, ids []string, grievanceID, uploaderID string) (models.ClaimResult, error)
	ListByGrievance(ctx context.Context, grievanceID string) ([]models.Attachment, error)
}

type viewCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type transitionRecorder interface {
	RecordTransition(outcome string)
}

// GrievanceService orchestrates the grievance lifecycle: creation, policy
// checks, ledger appends, and the assembled read-model.
type GrievanceService struct {
	repo        grievanceRepository
	ledger      trackingLedger
	attachments attachmentLinker
	cache       viewCache
	cacheTTL    time.Duration
	validator   *validator.Validate
	metrics     transitionRecorder
	logger      *zap.Logger
}

// NewGrievanceService constructs the service.
func NewGrievanceService(repo grievanceRepository, ledger trackingLedger, attachments attachmentLinker, validate *validator.Validate, logger *zap.Logger) *GrievanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GrievanceService{
		repo:        repo,
		ledger:      ledger,
		attachments: attachments,
		validator:   validate,
		logger:      logger,
	}
}

// WithViewCache enables read-model caching for View.
func (s *GrievanceService) WithViewCache(cache viewCache, ttl time.Duration) *GrievanceService {
	s.cache = cache
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	s.cacheTTL = ttl
	return s
}

// WithMetrics enables transition outcome counters.
func (s *GrievanceService) WithMetrics(metrics transitionRecorder) *GrievanceService {
	s.metrics = metrics
	return s
}

// Create files a new grievance. Attachment ids are strictly pre-checked
// (all must be unclaimed and owned by the submitter, or the whole creation
// is rejected), while the claim pass after creation is best-effort and its
// per-item outcome is part of the result.
func (s *GrievanceService) Create(ctx context.Context, submitterID string, req dto.CreateGrievanceRequest) (*dto.CreateGrievanceResult, error) {
	if submitterID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "submitter is required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grievance payload")
	}
	category := models.Category(strings.ToUpper(strings.TrimSpace(req.Category)))
	if !category.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown category %q", req.Category))
	}

	attachmentIDs := dedupe(req.AttachmentIDs)
	if len(attachmentIDs) > 0 {
		invalid, err := s.attachments.PrecheckOwnership(ctx, attachmentIDs, submitterID)
		if err != nil {
			return nil, err
		}
		if len(invalid) > 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("attachments not claimable: %s", strings.Join(invalid, ", ")))
		}
	}

	grievance := &models.Grievance{
		TicketCode:      s.ticketCode(ctx),
		SubmitterID:     submitterID,
		Campus:          req.Campus,
		Category:        category,
		CurrentCategory: category,
		Subject:         req.Subject,
		Description:     req.Description,
		Status:          models.StatusSubmitted,
	}
	initial := &models.TrackingEntry{
		ToStatus: models.StatusSubmitted,
		ActorID:  models.SystemActor,
		Note:     "grievance submitted",
	}

	if err := s.repo.Create(ctx, grievance, initial); err != nil {
		if errors.Is(err, repository.ErrTicketCodeTaken) {
			grievance.TicketCode = fallbackTicketCode()
			err = s.repo.Create(ctx, grievance, initial)
		}
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to create grievance")
		}
	}

	result := &dto.CreateGrievanceResult{Grievance: *grievance}
	if len(attachmentIDs) > 0 {
		claims, err := s.attachments.ClaimMany(ctx, attachmentIDs, grievance.ID, submitterID)
		if err != nil {
			s.logger.Warn("attachment claim pass errored", zap.String("grievance_id", grievance.ID), zap.Error(err))
		}
		result.Attachments = claims
		if claims.LinkedCount > 0 {
			if err := s.repo.SetHasAttachments(ctx, grievance.ID, true); err != nil {
				s.logger.Warn("failed to flag attachments", zap.String("grievance_id", grievance.ID), zap.Error(err))
			} else {
				result.Grievance.HasAttachments = true
			}
		}
		if claims.FailedCount > 0 {
			s.logger.Info("grievance created with partial attachment claims",
				zap.String("grievance_id", grievance.ID),
				zap.Int("linked", claims.LinkedCount),
				zap.Int("failed", claims.FailedCount))
		}
	}
	return result, nil
}

// Transition validates the actor against the redirection policy and appends
// one ledger entry. Both the current status and the responsible queue are
// derived from the ledger, never from the cached columns. Denials mutate
// nothing.
func (s *GrievanceService) Transition(ctx context.Context, actor models.Actor, grievanceID string, req dto.TransitionRequest) (*models.Grievance, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid transition payload")
	}
	requested := models.GrievanceStatus(strings.ToUpper(strings.TrimSpace(req.Status)))

	grievance, err := s.repo.GetByID(ctx, grievanceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grievance not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to fetch grievance")
	}

	history, err := s.ledger.History(ctx, grievanceID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to read ledger")
	}
	currentStatus := grievance.Status
	if n := len(history); n > 0 {
		currentStatus = history[n-1].ToStatus
	}

	var redirectTarget *models.Category
	if req.RedirectTarget != "" {
		target := models.Category(strings.ToUpper(strings.TrimSpace(req.RedirectTarget)))
		redirectTarget = &target
	}

	decision := Decide(PolicyInput{
		Actor:           actor,
		GrievanceCampus: grievance.Campus,
		CurrentCategory: models.ResponsibleCategory(grievance, history),
		CurrentStatus:   currentStatus,
		RequestedStatus: requested,
		RedirectTarget:  redirectTarget,
	})
	if !decision.Allowed {
		if s.metrics != nil {
			s.metrics.RecordTransition(OutcomeDenied)
		}
		if currentStatus.Terminal() {
			return nil, appErrors.Clone(appErrors.ErrTerminal, decision.Reason)
		}
		return nil, appErrors.Clone(appErrors.ErrForbidden, decision.Reason)
	}

	from := currentStatus
	entry := &models.TrackingEntry{
		GrievanceID:    grievanceID,
		FromStatus:     &from,
		ToStatus:       requested,
		ActorID:        actor.ID,
		Note:           req.Note,
		RedirectTarget: redirectTarget,
		IsRedirect:     requested == models.StatusRedirected,
		IsOverride:     decision.Override,
	}
	if err := s.ledger.Append(ctx, entry); err != nil {
		switch {
		case errors.Is(err, repository.ErrStaleAppend):
			if s.metrics != nil {
				s.metrics.RecordTransition(OutcomeConflict)
			}
			return nil, appErrors.Clone(appErrors.ErrConflict, "grievance state changed, please refresh")
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grievance not found")
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to append ledger entry")
		}
	}
	if s.metrics != nil {
		s.metrics.RecordTransition(OutcomeAllowed)
	}
	s.invalidateView(ctx, grievanceID)

	grievance.Status = requested
	if entry.IsRedirect && redirectTarget != nil {
		grievance.CurrentCategory = *redirectTarget
	}
	grievance.UpdatedAt = entry.CreatedAt
	return grievance, nil
}

// View assembles the materialized read-model: grievance, full history, and
// claimed attachments. The ledger tail wins over the cached status column.
func (s *GrievanceService) View(ctx context.Context, grievanceID string) (*models.GrievanceView, error) {
	cacheKey := viewCacheKey(grievanceID)
	if s.cache != nil {
		var cached models.GrievanceView
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	grievance, err := s.repo.GetByID(ctx, grievanceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grievance not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to fetch grievance")
	}
	history, err := s.ledger.History(ctx, grievanceID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to read ledger")
	}
	attachments, err := s.attachments.ListByGrievance(ctx, grievanceID)
	if err != nil {
		return nil, err
	}

	if n := len(history); n > 0 && grievance.Status != history[n-1].ToStatus {
		// Reconciliation read: the ledger is the source of truth.
		grievance.Status = history[n-1].ToStatus
	}
	grievance.CurrentCategory = models.ResponsibleCategory(grievance, history)

	view := &models.GrievanceView{
		Grievance:   *grievance,
		History:     history,
		Attachments: attachments,
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, view, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache grievance view", zap.String("grievance_id", grievanceID), zap.Error(err))
		}
	}
	return view, nil
}

// History returns the ordered audit trail for a grievance.
func (s *GrievanceService) History(ctx context.Context, grievanceID string) ([]models.TrackingEntry, error) {
	if _, err := s.repo.GetByID(ctx, grievanceID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grievance not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to fetch grievance")
	}
	history, err := s.ledger.History(ctx, grievanceID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to read ledger")
	}
	return history, nil
}

// ClaimAttachments links additional uploads to an existing grievance. Only
// the submitter may do so, and the per-item claim semantics match creation.
func (s *GrievanceService) ClaimAttachments(ctx context.Context, actorID, grievanceID string, ids []string) (*models.ClaimResult, error) {
	grievance, err := s.repo.GetByID(ctx, grievanceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grievance not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to fetch grievance")
	}
	if grievance.SubmitterID != actorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the submitter may attach files")
	}

	claims, err := s.attachments.ClaimMany(ctx, dedupe(ids), grievanceID, actorID)
	if err != nil {
		return nil, err
	}
	if claims.LinkedCount > 0 && !grievance.HasAttachments {
		if err := s.repo.SetHasAttachments(ctx, grievanceID, true); err != nil {
			s.logger.Warn("failed to flag attachments", zap.String("grievance_id", grievanceID), zap.Error(err))
		}
	}
	s.invalidateView(ctx, grievanceID)
	return &claims, nil
}

// ListFor returns the grievances visible to the actor: students see their
// own, department admins their queue, campus admins their campus's
// non-departmental tickets, super admins everything.
func (s *GrievanceService) ListFor(ctx context.Context, actor models.Actor, query dto.GrievanceListQuery) ([]models.Grievance, *models.Pagination, error) {
	filter := models.GrievanceFilter{Page: query.Page, PageSize: query.PageSize}
	for _, raw := range query.Statuses {
		status := models.GrievanceStatus(strings.ToUpper(strings.TrimSpace(raw)))
		if status.Valid() {
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	switch actor.Role {
	case models.RoleStudent:
		filter.SubmitterID = actor.ID
	case models.RoleDeptAdmin:
		filter.Categories = []models.Category{actor.Department}
	case models.RoleCampusAdmin:
		filter.Campus = actor.Campus
		filter.Categories = []models.Category{
			models.CategoryHostel,
			models.CategoryFacility,
			models.CategoryAdministration,
			models.CategoryOther,
		}
	case models.RoleSuperAdmin:
		// unscoped
	default:
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "unknown role")
	}

	grievances, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to list grievances")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 50
	}
	return grievances, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

func (s *GrievanceService) ticketCode(ctx context.Context) string {
	seq, err := s.repo.NextTicketSeq(ctx)
	if err != nil {
		s.logger.Warn("ticket sequence unavailable, using fallback code", zap.Error(err))
		return fallbackTicketCode()
	}
	return fmt.Sprintf("GRV-%d-%06d", time.Now().UTC().Year(), seq)
}

func fallbackTicketCode() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("ISSUE-%d-%d", time.Now().UnixNano(), time.Now().Unix()%10000)
	}
	return fmt.Sprintf("ISSUE-%d-%s", time.Now().Unix(), hex.EncodeToString(buf))
}

func (s *GrievanceService) invalidateView(ctx context.Context, grievanceID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, viewCacheKey(grievanceID)); err != nil {
		s.logger.Warn("failed to invalidate view cache", zap.String("grievance_id", grievanceID), zap.Error(err))
	}
}

func viewCacheKey(grievanceID string) string {
	return "grievance:view:" + grievanceID
}

func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
