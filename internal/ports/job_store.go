package ports

import (
	"context"
	"errors"
	"time"

	"github.com/Vovarama1992/scribe/internal/models"
)

var (
	ErrJobNotFound = errors.New("job not found")
	// ErrStatusConflict means the stored status was not the expected one,
	// so the update was not applied.
	ErrStatusConflict = errors.New("job status conflict")
)

type JobStore interface {
	Create(ctx context.Context, job *models.Job, audio []byte) error
	Get(ctx context.Context, id string) (*models.Job, error)
	Audio(ctx context.Context, id string) ([]byte, error)
	// UpdateStatus writes status, result, error and updated_at of job only
	// if the stored status still equals from.
	UpdateStatus(ctx context.Context, job *models.Job, from models.JobStatus) error
	// Touch refreshes updated_at of a PROCESSING job.
	Touch(ctx context.Context, id string, at time.Time) error
	// ListStale returns PROCESSING jobs not updated since before.
	ListStale(ctx context.Context, before time.Time) ([]*models.Job, error)
}

// JobQueue is a FIFO of job ids. Pop blocks until an id is available or
// ctx is done, and hands every id to exactly one caller.
type JobQueue interface {
	Push(ctx context.Context, id string) error
	Pop(ctx context.Context) (string, error)
}
