package service

import (
	"context"

	"github.com/noah-isme/grievance-api/internal/dto"
	"github.com/noah-isme/grievance-api/internal/models"
	appErrors "github.com/noah-isme/grievance-api/pkg/errors"
)

type statsRepository interface {
	CountByStatus(ctx context.Context) ([]models.StatusCount, error)
	CountByCategory(ctx context.Context) ([]models.CategoryCount, error)
}

// StatsService exposes read-only aggregates over the grievance store for
// admin dashboards.
type StatsService struct {
	repo statsRepository
}

// NewStatsService constructs the service.
func NewStatsService(repo statsRepository) *StatsService {
	return &StatsService{repo: repo}
}

// Overview returns grievance totals grouped by status and by category.
func (s *StatsService) Overview(ctx context.Context) (*dto.GrievanceStats, error) {
	byStatus, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to count by status")
	}
	byCategory, err := s.repo.CountByCategory(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to count by category")
	}
	return &dto.GrievanceStats{ByStatus: byStatus, ByCategory: byCategory}, nil
}
