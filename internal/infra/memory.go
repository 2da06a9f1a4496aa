package infra

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Vovarama1992/scribe/internal/models"
	"github.com/Vovarama1992/scribe/internal/ports"
)

// MemoryJobStore keeps jobs in process. It backs single-process
// deployments and tests.
type MemoryJobStore struct {
	mu    sync.RWMutex
	jobs  map[string]models.Job
	audio map[string][]byte
}

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{
		jobs:  make(map[string]models.Job),
		audio: make(map[string][]byte),
	}
}

func (s *MemoryJobStore) Create(_ context.Context, job *models.Job, audio []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[job.ID] = *job
	s.audio[job.ID] = append([]byte(nil), audio...)
	return nil
}

func (s *MemoryJobStore) Get(_ context.Context, id string) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ports.ErrJobNotFound
	}
	return &job, nil
}

func (s *MemoryJobStore) Audio(_ context.Context, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	audio, ok := s.audio[id]
	if !ok {
		return nil, ports.ErrJobNotFound
	}
	return audio, nil
}

func (s *MemoryJobStore) UpdateStatus(_ context.Context, job *models.Job, from models.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.jobs[job.ID]
	if !ok {
		return ports.ErrJobNotFound
	}
	if cur.Status != from {
		return ports.ErrStatusConflict
	}

	cur.Status = job.Status
	cur.Result = job.Result
	cur.Error = job.Error
	cur.UpdatedAt = job.UpdatedAt
	s.jobs[job.ID] = cur
	if cur.Status.Terminal() {
		delete(s.audio, job.ID)
	}
	return nil
}

func (s *MemoryJobStore) Touch(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.jobs[id]
	if !ok || cur.Status != models.JobProcessing {
		return nil
	}
	cur.UpdatedAt = at
	s.jobs[id] = cur
	return nil
}

func (s *MemoryJobStore) ListStale(_ context.Context, before time.Time) ([]*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Job
	for _, job := range s.jobs {
		if job.Status == models.JobProcessing && job.UpdatedAt.Before(before) {
			out = append(out, &job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

// MemoryJobQueue is an in-process FIFO. Every id goes to one Pop.
type MemoryJobQueue struct {
	mu    sync.Mutex
	ids   []string
	ready chan struct{}
}

func NewMemoryJobQueue() *MemoryJobQueue {
	return &MemoryJobQueue{ready: make(chan struct{}, 1)}
}

func (q *MemoryJobQueue) Push(_ context.Context, id string) error {
	q.mu.Lock()
	q.ids = append(q.ids, id)
	q.mu.Unlock()
	q.signal()
	return nil
}

func (q *MemoryJobQueue) Pop(ctx context.Context) (string, error) {
	for {
		q.mu.Lock()
		if len(q.ids) > 0 {
			id := q.ids[0]
			q.ids[0] = ""
			q.ids = q.ids[1:]
			more := len(q.ids) > 0
			q.mu.Unlock()
			if more {
				q.signal()
			}
			return id, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-q.ready:
		}
	}
}

func (q *MemoryJobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ids)
}

func (q *MemoryJobQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
