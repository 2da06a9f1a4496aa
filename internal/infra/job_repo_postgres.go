package infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Vovarama1992/scribe/internal/models"
	"github.com/Vovarama1992/scribe/internal/ports"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresJobStore struct {
	pool *pgxpool.Pool
}

func NewPostgresJobStore(pool *pgxpool.Pool) *PostgresJobStore {
	return &PostgresJobStore{pool: pool}
}

func (r *PostgresJobStore) Create(ctx context.Context, job *models.Job, audio []byte) error {
	query := `
		INSERT INTO jobs (id, status, result, error, audio, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query,
		job.ID, string(job.Status), job.Result, job.Error, audio, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *PostgresJobStore) Get(ctx context.Context, id string) (*models.Job, error) {
	query := `
		SELECT id, status, result, error, created_at, updated_at
		FROM jobs
		WHERE id = $1
	`
	job, err := scanJob(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrJobNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

func (r *PostgresJobStore) Audio(ctx context.Context, id string) ([]byte, error) {
	var audio []byte
	err := r.pool.QueryRow(ctx, `SELECT audio FROM jobs WHERE id = $1`, id).Scan(&audio)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrJobNotFound
		}
		return nil, fmt.Errorf("get job audio: %w", err)
	}
	if audio == nil {
		return nil, ports.ErrJobNotFound
	}
	return audio, nil
}

// UpdateStatus drops the audio payload once the job is terminal.
func (r *PostgresJobStore) UpdateStatus(ctx context.Context, job *models.Job, from models.JobStatus) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    result = $2,
		    error = $3,
		    updated_at = $4,
		    audio = CASE WHEN $1 IN ('COMPLETED', 'FAILED') THEN NULL ELSE audio END
		WHERE id = $5 AND status = $6
	`
	tag, err := r.pool.Exec(ctx, query,
		string(job.Status), job.Result, job.Error, job.UpdatedAt, job.ID, string(from),
	)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	if _, err := r.Get(ctx, job.ID); err != nil {
		return err
	}
	return ports.ErrStatusConflict
}

func (r *PostgresJobStore) Touch(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE jobs
		SET updated_at = $1
		WHERE id = $2 AND status = 'PROCESSING'
	`
	if _, err := r.pool.Exec(ctx, query, at, id); err != nil {
		return fmt.Errorf("touch job: %w", err)
	}
	return nil
}

func (r *PostgresJobStore) ListStale(ctx context.Context, before time.Time) ([]*models.Job, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, status, result, error, created_at, updated_at
		FROM jobs
		WHERE status = 'PROCESSING' AND updated_at < $1
		ORDER BY updated_at ASC`,
		before,
	)
	if err != nil {
		return nil, fmt.Errorf("list stale jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stale job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func scanJob(row pgx.Row) (*models.Job, error) {
	var (
		j      models.Job
		status string
	)
	if err := row.Scan(&j.ID, &status, &j.Result, &j.Error, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	j.Status = models.JobStatus(status)
	j.CreatedAt = j.CreatedAt.UTC()
	j.UpdatedAt = j.UpdatedAt.UTC()
	return &j, nil
}
