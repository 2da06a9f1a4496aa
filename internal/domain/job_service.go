package domain

import (
	"context"
	"errors"
	"time"

	"github.com/Vovarama1992/go-utils/logger"
	"github.com/Vovarama1992/scribe/internal/models"
	"github.com/Vovarama1992/scribe/internal/ports"
	"github.com/google/uuid"
)

type jobService struct {
	store ports.JobStore
	queue ports.JobQueue
	log   *logger.ZapLogger
	now   func() time.Time
}

func NewJobService(store ports.JobStore, queue ports.JobQueue, log *logger.ZapLogger) ports.JobService {
	return &jobService{
		store: store,
		queue: queue,
		log:   log,
		now:   time.Now,
	}
}

// Submit records a PENDING job with its audio and enqueues the id.
// If the push fails the record stays PENDING and is never picked up.
func (s *jobService) Submit(ctx context.Context, audio []byte) (string, error) {
	job := models.NewJob(uuid.NewString(), s.now().UTC())

	if err := s.store.Create(ctx, job, audio); err != nil {
		return "", &ports.InfrastructureError{Op: "create job", Err: err}
	}
	if err := s.queue.Push(ctx, job.ID); err != nil {
		return "", &ports.InfrastructureError{Op: "enqueue job", Err: err}
	}

	s.log.Log(logger.LogEntry{
		Level:   "info",
		Message: "job submitted",
		Fields:  map[string]any{"jobID": job.ID, "bytes": len(audio)},
	})
	return job.ID, nil
}

func (s *jobService) Status(ctx context.Context, id string) (*models.Job, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ports.ErrJobNotFound) {
			return nil, err
		}
		return nil, &ports.InfrastructureError{Op: "load job", Err: err}
	}
	return job, nil
}
