// Package postgres persists interval runs for later inspection.
package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"mixsim/domain/model"
	"mixsim/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS interval_runs (
	run_id     UUID PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL,
	family     TEXT NOT NULL,
	level      DOUBLE PRECISION NOT NULL,
	n_sims     INTEGER NOT NULL,
	seed       NUMERIC(20) NOT NULL
);

CREATE TABLE IF NOT EXISTS interval_results (
	run_id  UUID NOT NULL REFERENCES interval_runs(run_id) ON DELETE CASCADE,
	row_idx INTEGER NOT NULL,
	fit     DOUBLE PRECISION NOT NULL,
	upr     DOUBLE PRECISION NOT NULL,
	lwr     DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (run_id, row_idx)
);`

// Connect opens a Postgres connection pool and verifies it.
func Connect(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	return db, nil
}

// IntervalRepository stores interval runs in Postgres.
type IntervalRepository struct {
	db *sqlx.DB
}

var _ ports.IntervalRepository = (*IntervalRepository)(nil)

// NewIntervalRepository creates a new interval repository.
func NewIntervalRepository(db *sqlx.DB) *IntervalRepository {
	return &IntervalRepository{db: db}
}

// EnsureSchema creates the backing tables when they do not exist yet.
func (r *IntervalRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure interval schema: %w", err)
	}
	return nil
}

// SaveRun stores one run and all its per-row intervals atomically.
func (r *IntervalRepository) SaveRun(ctx context.Context, run model.IntervalRun) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO interval_runs (run_id, created_at, family, level, n_sims, seed)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		run.RunID, run.CreatedAt, string(run.Family), run.Level, run.NSims, fmt.Sprintf("%d", run.Seed),
	)
	if err != nil {
		return fmt.Errorf("failed to insert interval run: %w", err)
	}

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO interval_results (run_id, row_idx, fit, upr, lwr)
		VALUES ($1, $2, $3, $4, $5)`)
	if err != nil {
		return fmt.Errorf("failed to prepare result insert: %w", err)
	}
	defer stmt.Close()

	for i, iv := range run.Intervals {
		if _, err := stmt.ExecContext(ctx, run.RunID, i, iv.Fit, iv.Upper, iv.Lower); err != nil {
			return fmt.Errorf("failed to insert interval row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit interval run: %w", err)
	}
	return nil
}
