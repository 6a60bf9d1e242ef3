// internal/store/history.go
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/synthcheck-cli/api/schemas"
)

// DBPool abstracts the pgx pool so the history can run against a mock in
// tests.
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Close()
}

// History records run outcomes in Postgres. It is optional; the automation
// flow never depends on it and a nil *History is a no-op on every method.
type History struct {
	pool   DBPool
	logger *zap.Logger
}

// NewHistory connects to the database behind dbURL.
func NewHistory(ctx context.Context, dbURL string, logger *zap.Logger) (*History, error) {
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to run history database: %w", err)
	}
	return NewHistoryWithPool(pool, logger), nil
}

// NewHistoryWithPool wraps an existing pool; tests hand in a mock here.
func NewHistoryWithPool(pool DBPool, logger *zap.Logger) *History {
	return &History{pool: pool, logger: logger.Named("history")}
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS check_runs (
	run_id      TEXT PRIMARY KEY,
	image_url   TEXT NOT NULL,
	question    TEXT NOT NULL,
	strategy    TEXT,
	success     BOOLEAN,
	error       TEXT,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ
)`

// EnsureSchema creates the run table when it does not exist yet.
func (h *History) EnsureSchema(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if _, err := h.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensuring run history schema: %w", err)
	}
	return nil
}

// RecordStart inserts the run row at pickup time.
func (h *History) RecordStart(ctx context.Context, check schemas.PendingCheck, startedAt time.Time) error {
	if h == nil {
		return nil
	}
	_, err := h.pool.Exec(ctx,
		`INSERT INTO check_runs (run_id, image_url, question, started_at) VALUES ($1, $2, $3, $4)`,
		check.ID, check.ImageURL, check.Question, startedAt)
	if err != nil {
		return fmt.Errorf("recording run start: %w", err)
	}
	return nil
}

// RecordOutcome finalizes the run row. errMsg is empty on success.
func (h *History) RecordOutcome(ctx context.Context, runID string, strategy schemas.UploadStrategy, success bool, errMsg string, finishedAt time.Time) error {
	if h == nil {
		return nil
	}
	tag, err := h.pool.Exec(ctx,
		`UPDATE check_runs SET strategy = $2, success = $3, error = NULLIF($4, ''), finished_at = $5 WHERE run_id = $1`,
		runID, string(strategy), success, errMsg, finishedAt)
	if err != nil {
		return fmt.Errorf("recording run outcome: %w", err)
	}
	if tag.RowsAffected() == 0 {
		h.logger.Warn("Run outcome recorded for unknown run.", zap.String("run_id", runID))
	}
	return nil
}

// Close releases the underlying pool.
func (h *History) Close() {
	if h != nil && h.pool != nil {
		h.pool.Close()
	}
}
