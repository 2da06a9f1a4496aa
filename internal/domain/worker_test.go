package domain

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Vovarama1992/scribe/internal/infra"
	"github.com/Vovarama1992/scribe/internal/models"
	"github.com/Vovarama1992/scribe/internal/ports"
)

// recordingStore logs every accepted status change in order.
type recordingStore struct {
	*infra.MemoryJobStore

	mu      sync.Mutex
	changes []string
	touches int

	failUpdate func(job *models.Job) error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{MemoryJobStore: infra.NewMemoryJobStore()}
}

func (s *recordingStore) UpdateStatus(ctx context.Context, job *models.Job, from models.JobStatus) error {
	if s.failUpdate != nil {
		if err := s.failUpdate(job); err != nil {
			return err
		}
	}
	if err := s.MemoryJobStore.UpdateStatus(ctx, job, from); err != nil {
		return err
	}
	s.mu.Lock()
	s.changes = append(s.changes, job.ID+":"+string(job.Status))
	s.mu.Unlock()
	return nil
}

func (s *recordingStore) Touch(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	s.touches++
	s.mu.Unlock()
	return s.MemoryJobStore.Touch(ctx, id, at)
}

func (s *recordingStore) log() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.changes...)
}

// flakyQueue fails the first n Pops.
type flakyQueue struct {
	*infra.MemoryJobQueue
	failures atomic.Int32
}

func (q *flakyQueue) Pop(ctx context.Context) (string, error) {
	if q.failures.Add(-1) >= 0 {
		return "", errors.New("connection refused")
	}
	return q.MemoryJobQueue.Pop(ctx)
}

func submit(t *testing.T, store ports.JobStore, queue ports.JobQueue, audio []byte) string {
	t.Helper()
	id, err := NewJobService(store, queue, nopLogger()).Submit(context.Background(), audio)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	return id
}

func mustGet(t *testing.T, store ports.JobStore, id string) *models.Job {
	t.Helper()
	job, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get(%s) error = %v", id, err)
	}
	return job
}

func waitTerminal(t *testing.T, store ports.JobStore, ids ...string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for _, id := range ids {
		for !mustGet(t, store, id).IsTerminal() {
			if time.Now().After(deadline) {
				t.Fatalf("job %s did not finish", id)
			}
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func TestWorkerCompletesJob(t *testing.T) {
	store := newRecordingStore()
	queue := infra.NewMemoryJobQueue()
	pipeline := newTestPipeline(t, time.Second, 4, newFakeExecutor(), nil)
	events := make(chan ports.JobEvent, 16)
	metrics := newCountingMetrics()

	id := submit(t, store, queue, make([]byte, 10))
	if got := mustGet(t, store, id).Status; got != models.JobPending {
		t.Fatalf("status after submit = %s, want PENDING", got)
	}

	w := NewWorker(queue, store, pipeline, nopLogger(), WorkerOptions{ID: 1, Events: events, Metrics: metrics})
	if err := w.Handle(context.Background(), id); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	job := mustGet(t, store, id)
	if job.Status != models.JobCompleted || job.Result != "c0 c1 c2" || job.Error != "" {
		t.Fatalf("job = %+v", job)
	}
	if _, err := store.Audio(context.Background(), id); !errors.Is(err, ports.ErrJobNotFound) {
		t.Fatalf("audio after completion error = %v, want ErrJobNotFound", err)
	}
	if store.touches != 3 {
		t.Fatalf("heartbeats = %d, want 3", store.touches)
	}
	if metrics.finished[models.JobCompleted] != 1 {
		t.Fatalf("finished = %v", metrics.finished)
	}

	close(events)
	var got []ports.JobEvent
	for ev := range events {
		got = append(got, ev)
	}
	// PROCESSING, three chunks, COMPLETED
	if len(got) != 5 {
		t.Fatalf("events = %d, want 5: %+v", len(got), got)
	}
	if got[0].Status != models.JobProcessing || got[4].Status != models.JobCompleted {
		t.Fatalf("events = %+v", got)
	}
	if got[3].Chunk != 3 || got[3].Total != 3 || got[3].Text != "c2" {
		t.Fatalf("last chunk event = %+v", got[3])
	}
}

func TestWorkerFailsJobOnInferenceError(t *testing.T) {
	store := newRecordingStore()
	queue := infra.NewMemoryJobQueue()
	exec := newFakeExecutor()
	exec.failAt = 0
	pipeline := newTestPipeline(t, time.Second, 4, exec, nil)

	id := submit(t, store, queue, make([]byte, 10))
	w := NewWorker(queue, store, pipeline, nopLogger(), WorkerOptions{})
	if err := w.Handle(context.Background(), id); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	job := mustGet(t, store, id)
	if job.Status != models.JobFailed || job.Error == "" || job.Result != "" {
		t.Fatalf("job = %+v", job)
	}
	if len(exec.calls) != 1 {
		t.Fatalf("chunks run = %d, want 1", len(exec.calls))
	}
}

func TestWorkerFailsUndecodableAudio(t *testing.T) {
	store := newRecordingStore()
	queue := infra.NewMemoryJobQueue()
	pipeline := newTestPipeline(t, time.Second, 4, newFakeExecutor(), nil)

	id := submit(t, store, queue, []byte("bad audio"))
	w := NewWorker(queue, store, pipeline, nopLogger(), WorkerOptions{})
	if err := w.Handle(context.Background(), id); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if job := mustGet(t, store, id); job.Status != models.JobFailed {
		t.Fatalf("status = %s, want FAILED", job.Status)
	}
}

func TestWorkerSkipsNonPending(t *testing.T) {
	store := newRecordingStore()
	queue := infra.NewMemoryJobQueue()
	exec := newFakeExecutor()
	pipeline := newTestPipeline(t, time.Second, 4, exec, nil)
	w := NewWorker(queue, store, pipeline, nopLogger(), WorkerOptions{})

	id := submit(t, store, queue, make([]byte, 4))
	if err := w.Handle(context.Background(), id); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	// redelivery of a finished job and an unknown id are no-ops
	if err := w.Handle(context.Background(), id); err != nil {
		t.Fatalf("second Handle() error = %v", err)
	}
	if err := w.Handle(context.Background(), "missing"); err != nil {
		t.Fatalf("Handle(missing) error = %v", err)
	}

	if len(exec.calls) != 1 {
		t.Fatalf("chunks run = %d, want 1", len(exec.calls))
	}
	if got := store.log(); len(got) != 2 {
		t.Fatalf("status changes = %v, want 2", got)
	}
}

func TestWorkerStoreFaultLeavesJobUnfailed(t *testing.T) {
	store := newRecordingStore()
	queue := infra.NewMemoryJobQueue()
	pipeline := newTestPipeline(t, time.Second, 4, newFakeExecutor(), nil)

	id := submit(t, store, queue, make([]byte, 4))
	store.failUpdate = func(job *models.Job) error {
		if job.IsTerminal() {
			return errors.New("store unreachable")
		}
		return nil
	}

	w := NewWorker(queue, store, pipeline, nopLogger(), WorkerOptions{})
	err := w.Handle(context.Background(), id)
	var infraErr *ports.InfrastructureError
	if !errors.As(err, &infraErr) {
		t.Fatalf("error = %v, want InfrastructureError", err)
	}
	if job := mustGet(t, store, id); job.Status != models.JobProcessing {
		t.Fatalf("status = %s, want PROCESSING", job.Status)
	}
}

func TestWorkerBacksOffOnQueueFault(t *testing.T) {
	store := newRecordingStore()
	queue := &flakyQueue{MemoryJobQueue: infra.NewMemoryJobQueue()}
	queue.failures.Store(3)
	metrics := newCountingMetrics()
	pipeline := newTestPipeline(t, time.Second, 4, newFakeExecutor(), nil)

	id := submit(t, store, queue, make([]byte, 4))

	w := NewWorker(queue, store, pipeline, nopLogger(), WorkerOptions{Backoff: time.Millisecond, Metrics: metrics})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	waitTerminal(t, store, id)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := metrics.faultCount(); got != 3 {
		t.Fatalf("faults = %d, want 3", got)
	}
	if job := mustGet(t, store, id); job.Status != models.JobCompleted {
		t.Fatalf("status = %s, want COMPLETED", job.Status)
	}
}

func TestWorkerProcessesInQueueOrder(t *testing.T) {
	store := newRecordingStore()
	queue := infra.NewMemoryJobQueue()
	exec := newFakeExecutor()
	exec.delay = 10 * time.Millisecond
	pipeline := newTestPipeline(t, time.Second, 4, exec, nil)

	a := submit(t, store, queue, make([]byte, 8))
	b := submit(t, store, queue, make([]byte, 8))

	w := NewWorker(queue, store, pipeline, nopLogger(), WorkerOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	waitTerminal(t, store, a, b)
	cancel()
	<-done

	want := []string{
		a + ":PROCESSING",
		a + ":COMPLETED",
		b + ":PROCESSING",
		b + ":COMPLETED",
	}
	got := store.log()
	if len(got) != len(want) {
		t.Fatalf("changes = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("change[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestWorkerRunStopsOnCancel(t *testing.T) {
	w := NewWorker(infra.NewMemoryJobQueue(), newRecordingStore(), nil, nopLogger(), WorkerOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

// reapingPipeline lets the reaper fail the job after its first chunk.
type reapingPipeline struct {
	*Pipeline
	reaper *Reaper
	reaped int
}

func (p *reapingPipeline) TranscribeWithProgress(ctx context.Context, audio []byte, progress ProgressFunc) (string, error) {
	return p.Pipeline.TranscribeWithProgress(ctx, audio, func(c models.Chunk, total int, text string) {
		progress(c, total, text)
		if c.Index == 0 {
			p.reaped, _ = p.reaper.Sweep(ctx)
		}
	})
}

func TestWorkerDropsResultOfReapedJob(t *testing.T) {
	store := newRecordingStore()
	queue := infra.NewMemoryJobQueue()
	metrics := newCountingMetrics()

	reaper := NewReaper(store, time.Minute, time.Minute, nil, nopLogger())
	reaper.now = func() time.Time { return time.Now().Add(time.Hour) }
	pipeline := &reapingPipeline{
		Pipeline: newTestPipeline(t, time.Second, 4, newFakeExecutor(), nil),
		reaper:   reaper,
	}

	id := submit(t, store, queue, make([]byte, 10))
	w := NewWorker(queue, store, pipeline, nopLogger(), WorkerOptions{Metrics: metrics})
	if err := w.Handle(context.Background(), id); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if pipeline.reaped != 1 {
		t.Fatalf("reaped = %d, want 1", pipeline.reaped)
	}
	job := mustGet(t, store, id)
	if job.Status != models.JobFailed || job.Result != "" || job.Error == "" {
		t.Fatalf("job = %+v", job)
	}
	if len(metrics.finished) != 0 {
		t.Fatalf("worker counted finished jobs: %v", metrics.finished)
	}
	want := []string{id + ":PROCESSING", id + ":FAILED"}
	got := store.log()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("changes = %v, want %v", got, want)
	}
}
