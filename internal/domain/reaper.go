package domain

import (
	"context"
	"errors"
	"time"

	"github.com/Vovarama1992/go-utils/logger"
	"github.com/Vovarama1992/scribe/internal/models"
	"github.com/Vovarama1992/scribe/internal/ports"
)

// Reaper fails PROCESSING jobs whose worker stopped sending heartbeats.
// Jobs are never put back to PENDING.
type Reaper struct {
	store    ports.JobStore
	lease    time.Duration
	interval time.Duration
	metrics  ports.Metrics
	log      *logger.ZapLogger
	now      func() time.Time
}

func NewReaper(store ports.JobStore, lease, interval time.Duration, metrics ports.Metrics, log *logger.ZapLogger) *Reaper {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &Reaper{
		store:    store,
		lease:    lease,
		interval: interval,
		metrics:  metrics,
		log:      log,
		now:      time.Now,
	}
}

func (r *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil {
				r.metrics.InfrastructureFault("reap jobs")
				r.log.Log(logger.LogEntry{
					Level:   "error",
					Message: "[REAPER][ERR]",
					Error:   err,
				})
			}
		}
	}
}

// Sweep fails every stale job once and returns how many it failed.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	now := r.now().UTC()
	stale, err := r.store.ListStale(ctx, now.Add(-r.lease))
	if err != nil {
		return 0, &ports.InfrastructureError{Op: "list stale jobs", Err: err}
	}

	reaped := 0
	for _, job := range stale {
		last := job.UpdatedAt
		if err := job.Fail("abandoned: no heartbeat within "+r.lease.String(), now); err != nil {
			continue
		}
		if err := r.store.UpdateStatus(ctx, job, models.JobProcessing); err != nil {
			if errors.Is(err, ports.ErrStatusConflict) {
				continue
			}
			return reaped, &ports.InfrastructureError{Op: "fail stale job", Err: err}
		}
		reaped++
		r.metrics.JobFinished(models.JobFailed)
		r.log.Log(logger.LogEntry{
			Level:   "info",
			Message: "[REAPER][FAILED]",
			Fields:  map[string]any{"jobID": job.ID, "lastHeartbeat": last},
		})
	}
	return reaped, nil
}
