package infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresJobQueue keeps ids in job_queue. Pop deletes the oldest row
// under SKIP LOCKED, so concurrent workers never receive the same id.
// Idle poppers sleep on LISTEN with poll as an upper bound.
type PostgresJobQueue struct {
	pool *pgxpool.Pool
	name string
	poll time.Duration
}

func NewPostgresJobQueue(pool *pgxpool.Pool, name string, poll time.Duration) *PostgresJobQueue {
	if poll <= 0 {
		poll = 5 * time.Second
	}
	return &PostgresJobQueue{pool: pool, name: name, poll: poll}
}

func (q *PostgresJobQueue) Push(ctx context.Context, id string) error {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("push job: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `INSERT INTO job_queue (queue, job_id) VALUES ($1, $2)`, q.name, id); err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, q.name, id); err != nil {
		return fmt.Errorf("push job: notify: %w", err)
	}
	return tx.Commit(ctx)
}

func (q *PostgresJobQueue) Pop(ctx context.Context) (string, error) {
	conn, err := q.pool.Acquire(ctx)
	if err != nil {
		return "", fmt.Errorf("pop job: acquire: %w", err)
	}
	defer func() {
		_, _ = conn.Exec(context.WithoutCancel(ctx), "UNLISTEN *")
		conn.Release()
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{q.name}.Sanitize()); err != nil {
		return "", fmt.Errorf("pop job: listen: %w", err)
	}

	for {
		id, err := tryPop(ctx, conn, q.name)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("pop job: %w", err)
		}

		waitCtx, cancel := context.WithTimeout(ctx, q.poll)
		_, err = conn.Conn().WaitForNotification(waitCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			if !pgconn.Timeout(err) && !errors.Is(err, context.DeadlineExceeded) {
				return "", fmt.Errorf("pop job: wait: %w", err)
			}
		}
	}
}

// tryPop runs on the connection that holds LISTEN, so a popper never
// needs a second connection from the pool.
func tryPop(ctx context.Context, conn *pgxpool.Conn, name string) (string, error) {
	query := `
		DELETE FROM job_queue
		WHERE seq = (
			SELECT seq FROM job_queue
			WHERE queue = $1
			ORDER BY seq
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING job_id
	`
	var id string
	err := conn.QueryRow(ctx, query, name).Scan(&id)
	return id, err
}
