package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Vovarama1992/go-utils/logger"
	"github.com/Vovarama1992/scribe/internal/models"
	"github.com/Vovarama1992/scribe/internal/ports"
)

const DefaultBackoff = 5 * time.Second

type ProgressTranscriber interface {
	TranscribeWithProgress(ctx context.Context, audio []byte, progress ProgressFunc) (string, error)
}

// Worker pops job ids and runs each job to a terminal state, one at a
// time. Exclusive ownership of a job comes from the queue handing every
// id to a single Pop.
type Worker struct {
	id       int
	queue    ports.JobQueue
	store    ports.JobStore
	pipeline ProgressTranscriber
	events   chan<- ports.JobEvent
	backoff  time.Duration
	metrics  ports.Metrics
	log      *logger.ZapLogger
	now      func() time.Time
}

type WorkerOptions struct {
	ID      int
	Backoff time.Duration
	Events  chan<- ports.JobEvent
	Metrics ports.Metrics
}

func NewWorker(
	queue ports.JobQueue,
	store ports.JobStore,
	pipeline ProgressTranscriber,
	log *logger.ZapLogger,
	opts WorkerOptions,
) *Worker {
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultBackoff
	}
	if opts.Metrics == nil {
		opts.Metrics = ports.NopMetrics{}
	}
	return &Worker{
		id:       opts.ID,
		queue:    queue,
		store:    store,
		pipeline: pipeline,
		events:   opts.Events,
		backoff:  opts.Backoff,
		metrics:  opts.Metrics,
		log:      log,
		now:      time.Now,
	}
}

// Run loops until ctx is cancelled. A job that was already popped is
// finished even if ctx ends meanwhile.
func (w *Worker) Run(ctx context.Context) error {
	w.info("[WORKER][START]", nil)
	defer w.info("[WORKER][STOP]", nil)

	for {
		id, err := w.queue.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.fault(&ports.InfrastructureError{Op: "pop job", Err: err})
			if !w.sleep(ctx) {
				return nil
			}
			continue
		}

		if err := w.Handle(context.WithoutCancel(ctx), id); err != nil {
			var ie *ports.InfrastructureError
			if errors.As(err, &ie) {
				w.fault(ie)
				if !w.sleep(ctx) {
					return nil
				}
				continue
			}
			w.log.Log(logger.LogEntry{
				Level:   "error",
				Message: "[WORKER][JOB][ERR]",
				Fields:  map[string]any{"worker": w.id, "jobID": id},
				Error:   err,
			})
		}
	}
}

// Handle moves one job PENDING -> PROCESSING -> COMPLETED|FAILED.
// Store faults are returned as *ports.InfrastructureError without
// touching the job further.
func (w *Worker) Handle(ctx context.Context, id string) error {
	job, err := w.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ports.ErrJobNotFound) {
			w.info("[WORKER][SKIP] unknown job", map[string]any{"jobID": id})
			return nil
		}
		return &ports.InfrastructureError{Op: "load job", Err: err}
	}
	if job.Status != models.JobPending {
		w.info("[WORKER][SKIP] job not pending", map[string]any{"jobID": id, "status": job.Status})
		return nil
	}

	if err := job.Start(w.now().UTC()); err != nil {
		return err
	}
	if err := w.store.UpdateStatus(ctx, job, models.JobPending); err != nil {
		if errors.Is(err, ports.ErrStatusConflict) {
			w.info("[WORKER][SKIP] job claimed elsewhere", map[string]any{"jobID": id})
			return nil
		}
		return &ports.InfrastructureError{Op: "mark job processing", Err: err}
	}
	w.publish(ports.JobEvent{JobID: id, Status: models.JobProcessing})
	w.info("[WORKER][PROCESSING]", map[string]any{"jobID": id})

	start := time.Now()
	text, runErr := w.run(ctx, job)
	now := w.now().UTC()
	if runErr != nil {
		var ie *ports.InfrastructureError
		if errors.As(runErr, &ie) {
			return ie
		}
		err = job.Fail(runErr.Error(), now)
	} else {
		err = job.Complete(text, now)
	}
	if err != nil {
		return err
	}

	if err := w.store.UpdateStatus(ctx, job, models.JobProcessing); err != nil {
		if errors.Is(err, ports.ErrStatusConflict) {
			w.info("[WORKER][DROP] job finalized elsewhere", map[string]any{"jobID": id})
			return nil
		}
		return &ports.InfrastructureError{Op: "store job result", Err: err}
	}

	w.metrics.JobFinished(job.Status)
	w.publish(ports.JobEvent{JobID: id, Status: job.Status, Text: job.Result, Error: job.Error})

	level := "info"
	if job.Status == models.JobFailed {
		level = "error"
	}
	w.log.Log(logger.LogEntry{
		Level:   level,
		Message: "[WORKER][DONE]",
		Fields: map[string]any{
			"worker": w.id,
			"jobID":  id,
			"status": job.Status,
			"took":   time.Since(start).String(),
		},
		Error: runErr,
	})
	return nil
}

func (w *Worker) run(ctx context.Context, job *models.Job) (string, error) {
	audio, err := w.store.Audio(ctx, job.ID)
	if err != nil {
		if errors.Is(err, ports.ErrJobNotFound) {
			return "", fmt.Errorf("audio payload missing")
		}
		return "", &ports.InfrastructureError{Op: "load job audio", Err: err}
	}

	return w.pipeline.TranscribeWithProgress(ctx, audio, func(c models.Chunk, total int, text string) {
		if err := w.store.Touch(ctx, job.ID, w.now().UTC()); err != nil {
			w.log.Log(logger.LogEntry{
				Level:   "error",
				Message: "[WORKER][HEARTBEAT][ERR]",
				Fields:  map[string]any{"jobID": job.ID, "chunk": c.Index},
				Error:   err,
			})
		}
		w.publish(ports.JobEvent{
			JobID:  job.ID,
			Status: models.JobProcessing,
			Chunk:  c.Index + 1,
			Total:  total,
			Text:   text,
		})
	})
}

func (w *Worker) publish(ev ports.JobEvent) {
	if w.events == nil {
		return
	}
	select {
	case w.events <- ev:
	default:
		w.info("[WORKER][EVENT-DROP]", map[string]any{"jobID": ev.JobID})
	}
}

func (w *Worker) fault(err *ports.InfrastructureError) {
	w.metrics.InfrastructureFault(err.Op)
	w.log.Log(logger.LogEntry{
		Level:   "error",
		Message: "[WORKER][INFRA]",
		Fields:  map[string]any{"worker": w.id, "op": err.Op, "backoff": w.backoff.String()},
		Error:   err,
	})
}

// sleep waits one backoff interval; false means ctx ended first.
func (w *Worker) sleep(ctx context.Context) bool {
	t := time.NewTimer(w.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (w *Worker) info(msg string, fields map[string]any) {
	if fields == nil {
		fields = map[string]any{}
	}
	fields["worker"] = w.id
	w.log.Log(logger.LogEntry{Level: "info", Message: msg, Fields: fields})
}
