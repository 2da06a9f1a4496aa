package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS jobs (
		id         TEXT PRIMARY KEY,
		status     TEXT NOT NULL,
		result     TEXT NOT NULL DEFAULT '',
		error      TEXT NOT NULL DEFAULT '',
		audio      BYTEA,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS jobs_status_updated_at_idx ON jobs (status, updated_at)`,
	`CREATE TABLE IF NOT EXISTS job_queue (
		seq    BIGSERIAL PRIMARY KEY,
		queue  TEXT NOT NULL,
		job_id TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS job_queue_queue_seq_idx ON job_queue (queue, seq)`,
}

// poolHeadroom is the number of connections left for request handlers
// and the reaper once every queue listener holds its own.
const poolHeadroom = 4

// NewPgxPool opens a pool sized for listeners long-lived queue poppers
// plus poolHeadroom short queries.
func NewPgxPool(ctx context.Context, dsn string, listeners int) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pgx dsn: %w", err)
	}
	if need := int32(listeners + poolHeadroom); cfg.MaxConns < need {
		cfg.MaxConns = need
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect pgxpool: %w", err)
	}

	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
