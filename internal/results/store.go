package results

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/hmi-harness/api/schemas"
)

// DBPool abstracts pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const schemaSQL = `
        CREATE TABLE IF NOT EXISTS runs (
            id          UUID PRIMARY KEY,
            scenario    TEXT NOT NULL,
            started_at  TIMESTAMPTZ NOT NULL,
            finished_at TIMESTAMPTZ NOT NULL,
            passed      BOOLEAN NOT NULL,
            error       TEXT NOT NULL DEFAULT ''
        );
        CREATE TABLE IF NOT EXISTS run_steps (
            run_id      UUID NOT NULL REFERENCES runs (id) ON DELETE CASCADE,
            seq         INTEGER NOT NULL,
            name        TEXT NOT NULL,
            device      TEXT NOT NULL DEFAULT '',
            passed      BOOLEAN NOT NULL,
            detail      TEXT NOT NULL DEFAULT '',
            duration_ms BIGINT NOT NULL,
            PRIMARY KEY (run_id, seq)
        );
    `

const insertRunSQL = `
        INSERT INTO runs (id, scenario, started_at, finished_at, passed, error)
        VALUES ($1, $2, $3, $4, $5, $6);
    `

const insertStepSQL = `
        INSERT INTO run_steps (run_id, seq, name, device, passed, detail, duration_ms)
        VALUES ($1, $2, $3, $4, $5, $6, $7);
    `

// Store persists run results in PostgreSQL.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// NewStore creates a store and verifies the connection.
func NewStore(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: pool, log: logger.Named("results")}, nil
}

// EnsureSchema creates the runs and run_steps tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create results schema: %w", err)
	}
	return nil
}

// SaveRun writes the run and its steps in one transaction.
func (s *Store) SaveRun(ctx context.Context, run *schemas.RunResult) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction.", zap.Error(rollbackErr))
		}
	}()

	if _, err := tx.Exec(ctx, insertRunSQL,
		run.ID, run.Scenario, run.StartedAt.UTC(), run.FinishedAt.UTC(), run.Passed, run.Error,
	); err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}
	for i, step := range run.Steps {
		if _, err := tx.Exec(ctx, insertStepSQL,
			run.ID, i+1, step.Name, step.Device, step.Passed, step.Detail, step.Duration.Milliseconds(),
		); err != nil {
			return fmt.Errorf("failed to insert step %d (%s): %w", i+1, step.Name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Run persisted.", zap.String("run_id", run.ID), zap.Int("steps", len(run.Steps)))
	return nil
}
