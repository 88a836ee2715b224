package analytics

import (
	"context"

	"github.com/nulzo/model-helpers/internal/store"
	"github.com/nulzo/model-helpers/internal/store/model"
)

const (
	defaultDays = 7
	maxDays     = 365
)

// UsageReport summarises completions over the last Days days.
type UsageReport struct {
	Days  int                `json:"days"`
	Daily []model.DailyStats `json:"daily"`
	Paths []model.PathStats  `json:"call_paths"`
}

type Service interface {
	GetUsageOverview(ctx context.Context, days int) (*UsageReport, error)
}

type service struct {
	repo store.Repository
}

func NewService(repo store.Repository) Service {
	return &service{
		repo: repo,
	}
}

func (s *service) GetUsageOverview(ctx context.Context, days int) (*UsageReport, error) {
	if days <= 0 {
		days = defaultDays
	}
	if days > maxDays {
		days = maxDays
	}

	daily, err := s.repo.Completions().GetDailyStats(ctx, days)
	if err != nil {
		return nil, err
	}
	paths, err := s.repo.Completions().GetPathStats(ctx, days)
	if err != nil {
		return nil, err
	}

	return &UsageReport{Days: days, Daily: daily, Paths: paths}, nil
}
