package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/uncommonlabs/catalog-crawler/internal/catalog"
	"github.com/uncommonlabs/catalog-crawler/internal/store"
)

// JobStore is a mutex-guarded, map-backed store.JobStore enforcing the
// pending -> running -> {completed, failed} lifecycle.
type JobStore struct {
	mu    sync.RWMutex
	jobs  map[string]catalog.Job
	order []string
}

// NewJobStore constructs an empty JobStore.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]catalog.Job)}
}

// Create inserts a job in pending state.
func (s *JobStore) Create(_ context.Context, job catalog.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	job.Status = catalog.JobStatusPending
	s.jobs[job.ID] = job
	s.order = append(s.order, job.ID)
	return nil
}

// MarkRunning transitions a pending job to running.
func (s *JobStore) MarkRunning(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return store.ErrNotFound
	}
	if job.Status != catalog.JobStatusPending {
		return fmt.Errorf("job %s is %s, not pending", jobID, job.Status)
	}
	job.Status = catalog.JobStatusRunning
	s.jobs[jobID] = job
	return nil
}

// MarkCompleted transitions a running job to completed with its final count.
func (s *JobStore) MarkCompleted(_ context.Context, jobID string, productsCount int, completedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return store.ErrNotFound
	}
	if job.Status != catalog.JobStatusRunning {
		return fmt.Errorf("job %s is %s, not running", jobID, job.Status)
	}
	job.Status = catalog.JobStatusCompleted
	job.ProductsCount = productsCount
	job.CompletedAt = &completedAt
	s.jobs[jobID] = job
	return nil
}

// MarkFailed transitions a running job to failed without touching the count.
func (s *JobStore) MarkFailed(_ context.Context, jobID string, completedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return store.ErrNotFound
	}
	if job.Status != catalog.JobStatusRunning {
		return fmt.Errorf("job %s is %s, not running", jobID, job.Status)
	}
	job.Status = catalog.JobStatusFailed
	job.CompletedAt = &completedAt
	s.jobs[jobID] = job
	return nil
}

// Get loads one job by ID.
func (s *JobStore) Get(_ context.Context, jobID string) (catalog.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return catalog.Job{}, store.ErrNotFound
	}
	return job, nil
}

// List returns jobs newest first; limit <= 0 returns all.
func (s *JobStore) List(_ context.Context, limit int) ([]catalog.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]catalog.Job, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, s.jobs[s.order[i]])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// GetRunning returns the currently running job, if any.
func (s *JobStore) GetRunning(_ context.Context) (catalog.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, job := range s.jobs {
		if job.Status == catalog.JobStatusRunning {
			return job, nil
		}
	}
	return catalog.Job{}, store.ErrNotFound
}
