package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/nulzo/model-helpers/internal/store"
	"github.com/nulzo/model-helpers/internal/store/model"
)

// DB defines the interface for database operations (satisfied by *sqlx.DB and *sqlx.Tx)
type DB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// SqliteRepository implements store.Repository
type SqliteRepository struct {
	db       *sqlx.DB // Required for starting new transactions
	executor DB       // *sqlx.DB or *sqlx.Tx
}

func NewSqliteRepository(db *sqlx.DB) *SqliteRepository {
	return &SqliteRepository{
		db:       db,
		executor: db,
	}
}

func (r *SqliteRepository) Close() error {
	return r.db.Close()
}

func (r *SqliteRepository) WithTx(ctx context.Context, fn func(repo store.Repository) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	txRepo := &SqliteRepository{
		db:       r.db,
		executor: tx,
	}

	if err := fn(txRepo); err != nil {
		// rollback error is secondary
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

func (r *SqliteRepository) Completions() store.CompletionRepository {
	return &completionRepo{db: r.executor}
}

type completionRepo struct {
	db DB
}

func (r *completionRepo) Log(ctx context.Context, log *model.CompletionLog) error {
	if log.Dropped == "" {
		log.Dropped = "[]"
	}
	log.CreatedAt = log.CreatedAt.UTC()

	query := `
	INSERT INTO completion_logs (
		id, api_key_id, app_name, provider, model, upstream_model,
		call_path, dropped_params, finish_reason,
		input_tokens, output_tokens, cached_tokens, cache_write_tokens,
		latency_ms, status_code, cost_micros, error_message, cache_hit, created_at
	) VALUES (
		:id, :api_key_id, :app_name, :provider, :model, :upstream_model,
		:call_path, :dropped_params, :finish_reason,
		:input_tokens, :output_tokens, :cached_tokens, :cache_write_tokens,
		:latency_ms, :status_code, :cost_micros, :error_message, :cache_hit, :created_at
	)`
	_, err := r.db.NamedExecContext(ctx, query, log)
	return err
}

func (r *completionRepo) GetByID(ctx context.Context, id string) (*model.CompletionLog, error) {
	var log model.CompletionLog
	if err := r.db.GetContext(ctx, &log, `SELECT * FROM completion_logs WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return &log, nil
}

func (r *completionRepo) GetDailyStats(ctx context.Context, days int) ([]model.DailyStats, error) {
	stats := []model.DailyStats{}
	query := `
		SELECT
			DATE(created_at) as date,
			COUNT(*) as total_requests,
			COALESCE(SUM(CASE WHEN status_code >= 400 THEN 1 ELSE 0 END), 0) as failed_requests,
			COALESCE(SUM(cache_hit), 0) as cache_hits,
			COALESCE(SUM(input_tokens + output_tokens), 0) as total_tokens,
			COALESCE(SUM(cost_micros), 0) as total_cost_micros,
			COALESCE(AVG(latency_ms), 0) as avg_latency
		FROM completion_logs
		WHERE created_at >= DATE('now', ?)
		GROUP BY date
		ORDER BY date DESC
	`
	// SQLite date offset format is '-7 days'
	err := r.db.SelectContext(ctx, &stats, query, fmt.Sprintf("-%d days", days))
	return stats, err
}

func (r *completionRepo) GetPathStats(ctx context.Context, days int) ([]model.PathStats, error) {
	stats := []model.PathStats{}
	query := `
		SELECT call_path, COUNT(*) as requests
		FROM completion_logs
		WHERE created_at >= DATE('now', ?)
		GROUP BY call_path
		ORDER BY requests DESC, call_path
	`
	err := r.db.SelectContext(ctx, &stats, query, fmt.Sprintf("-%d days", days))
	return stats, err
}
