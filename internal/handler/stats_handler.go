package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/grievance-api/internal/dto"
	"github.com/noah-isme/grievance-api/pkg/response"
)

type statsService interface {
	Overview(ctx context.Context) (*dto.GrievanceStats, error)
}

// StatsHandler exposes read-only grievance aggregates.
type StatsHandler struct {
	service statsService
}

// NewStatsHandler constructs the handler.
func NewStatsHandler(service statsService) *StatsHandler {
	return &StatsHandler{service: service}
}

// Overview returns grievance counts by status and category.
func (h *StatsHandler) Overview(c *gin.Context) {
	stats, err := h.service.Overview(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}
