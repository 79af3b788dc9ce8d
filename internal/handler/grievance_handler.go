package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/grievance-api/internal/dto"
	"github.com/noah-isme/grievance-api/internal/models"
	appErrors "github.com/noah-isme/grievance-api/pkg/errors"
	"github.com/noah-isme/grievance-api/pkg/response"
)

type grievanceService interface {
	Create(ctx context.Context, submitterID string, req dto.CreateGrievanceRequest) (*dto.CreateGrievanceResult, error)
	Transition(ctx context.Context, actor models.Actor, grievanceID string, req dto.TransitionRequest) (*models.Grievance, error)
	View(ctx context.Context, grievanceID string) (*models.GrievanceView, error)
	History(ctx context.Context, grievanceID string) ([]models.TrackingEntry, error)
	ClaimAttachments(ctx context.Context, actorID, grievanceID string, ids []string) (*models.ClaimResult, error)
	ListFor(ctx context.Context, actor models.Actor, query dto.GrievanceListQuery) ([]models.Grievance, *models.Pagination, error)
}

// GrievanceHandler exposes REST endpoints for the grievance lifecycle.
type GrievanceHandler struct {
	service grievanceService
}

// NewGrievanceHandler constructs the handler.
func NewGrievanceHandler(service grievanceService) *GrievanceHandler {
	return &GrievanceHandler{service: service}
}

// Create files a new grievance for the authenticated student.
func (h *GrievanceHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateGrievanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid grievance payload"))
		return
	}
	result, err := h.service.Create(c.Request.Context(), claims.ActorID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// List returns the grievances visible to the caller's role and scope.
func (h *GrievanceHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	query := dto.GrievanceListQuery{
		Page:     queryInt(c, "page"),
		PageSize: queryInt(c, "page_size"),
	}
	if rawStatus := c.Query("status"); rawStatus != "" {
		query.Statuses = strings.Split(rawStatus, ",")
	}
	grievances, pagination, err := h.service.ListFor(c.Request.Context(), claims.Actor(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grievances, pagination)
}

// Get returns the assembled view: grievance, history, attachments.
func (h *GrievanceHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	view, err := h.service.View(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if claims.Role == models.RoleStudent && view.Grievance.SubmitterID != claims.ActorID {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "grievance not found"))
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// History returns the ordered audit trail.
func (h *GrievanceHandler) History(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	history, err := h.service.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, history, nil)
}

// Transition moves a grievance to a new state on behalf of an administrator.
func (h *GrievanceHandler) Transition(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid transition payload"))
		return
	}
	grievance, err := h.service.Transition(c.Request.Context(), claims.Actor(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grievance, nil)
}

// ClaimAttachments links previously uploaded files to an existing grievance.
func (h *GrievanceHandler) ClaimAttachments(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ClaimAttachmentsRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.AttachmentIDs) == 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "attachment_ids required"))
		return
	}
	result, err := h.service.ClaimAttachments(c.Request.Context(), claims.ActorID, c.Param("id"), req.AttachmentIDs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

func queryInt(c *gin.Context, key string) int {
	raw := c.Query(key)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
