// Package registry tracks AI jobs for the lifetime of the process.
//
// Entries are never evicted unless the caller runs Sweep, so a long-running
// process accumulates one entry per submitted job.
package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"churchsite/internal/models"
)

var (
	// ErrNotFound is returned for ids the registry never issued.
	ErrNotFound = errors.New("job not found")
	// ErrAlreadyTerminal is returned when a job is completed twice.
	ErrAlreadyTerminal = errors.New("job already in terminal state")
	// ErrExists is returned when an id is created twice.
	ErrExists = errors.New("job already exists")
)

// Registry is the shared job table read by pollers and written by the dispatcher.
type Registry interface {
	Create(id string) error
	Complete(id string, status models.JobStatus, result *models.AIResult) error
	Get(id string) (models.Job, error)
}

// Memory is a lock-protected in-memory Registry.
type Memory struct {
	mu   sync.RWMutex
	jobs map[string]models.Job
	now  func() time.Time
}

// NewMemory returns an empty registry.
func NewMemory() *Memory {
	return &Memory{
		jobs: make(map[string]models.Job),
		now:  time.Now,
	}
}

// Create registers id in the processing state.
func (m *Memory) Create(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[id]; ok {
		return ErrExists
	}
	m.jobs[id] = models.Job{
		ID:        id,
		Status:    models.JobProcessing,
		Timestamp: models.UnixSeconds(m.now()),
	}
	return nil
}

// Complete moves id into a terminal status. For JobError the result's error
// text is also exposed at the top level of the entry.
func (m *Memory) Complete(id string, status models.JobStatus, result *models.AIResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status.Terminal() {
		return ErrAlreadyTerminal
	}
	job.Status = status
	job.Timestamp = models.UnixSeconds(m.now())
	job.Result = result
	if status == models.JobError && result != nil {
		job.Error = result.Error
	}
	m.jobs[id] = job
	return nil
}

// Get returns a copy of the entry for id.
func (m *Memory) Get(id string) (models.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return models.Job{}, ErrNotFound
	}
	return job, nil
}

// Len reports how many entries are held.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.jobs)
}

// Sweep drops terminal entries whose last update is older than maxAge and
// returns how many were removed. Processing entries are always kept.
func (m *Memory) Sweep(maxAge time.Duration) int {
	cutoff := models.UnixSeconds(m.now().Add(-maxAge))
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, job := range m.jobs {
		if job.Status.Terminal() && job.Timestamp < cutoff {
			delete(m.jobs, id)
			removed++
		}
	}
	return removed
}

// RunSweeper calls Sweep(maxAge) every interval until ctx is done.
func (m *Memory) RunSweeper(ctx context.Context, maxAge, interval time.Duration, onSweep func(removed int)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(maxAge); n > 0 && onSweep != nil {
				onSweep(n)
			}
		}
	}
}
