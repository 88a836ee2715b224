package store

import (
	"context"

	"github.com/nulzo/model-helpers/internal/store/model"
)

type contextKey string

const (
	ContextKeyAPIKey  contextKey = "api_key"
	ContextKeyAppName contextKey = "app_name"
)

// Repository is the main contract for the data layer.
type Repository interface {
	Completions() CompletionRepository

	// transaction support
	WithTx(ctx context.Context, fn func(repo Repository) error) error

	Close() error
}

type CompletionRepository interface {
	// Log stores a finished completion, successful or not.
	Log(ctx context.Context, log *model.CompletionLog) error
	GetByID(ctx context.Context, id string) (*model.CompletionLog, error)
	// GetDailyStats returns aggregated stats grouped by day, newest first.
	GetDailyStats(ctx context.Context, days int) ([]model.DailyStats, error)
	// GetPathStats counts completions per call path over the window.
	GetPathStats(ctx context.Context, days int) ([]model.PathStats, error)
}
