package job

import (
	"context"
	"slices"
	"sync"
)

var _ Repository = (*MemoryRepository)(nil)

// MemoryRepository keeps jobs in process memory, in submission order.
// Jobs are lost on restart; the worker only reports on runs it started.
type MemoryRepository struct {
	mu    sync.RWMutex
	jobs  map[string]*Job
	order []string
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{jobs: make(map[string]*Job)}
}

// Save stores a clone of job. A new ID is appended to the listing order.
func (r *MemoryRepository) Save(_ context.Context, job *Job) error {
	snapshot := job.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[snapshot.ID]; !ok {
		r.order = append(r.order, snapshot.ID)
	}
	r.jobs[snapshot.ID] = snapshot
	return nil
}

// FindByID returns a clone of the job with the given ID.
func (r *MemoryRepository) FindByID(_ context.Context, id string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if job, ok := r.jobs[id]; ok {
		return job.Clone(), nil
	}
	return nil, ErrJobNotFound
}

// List returns clones of all jobs in submission order.
func (r *MemoryRepository) List(_ context.Context) ([]*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Job, len(r.order))
	for i, id := range r.order {
		out[i] = r.jobs[id].Clone()
	}
	return out, nil
}

// Delete forgets the job with the given ID.
func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[id]; !ok {
		return ErrJobNotFound
	}
	delete(r.jobs, id)
	r.order = slices.DeleteFunc(r.order, func(s string) bool { return s == id })
	return nil
}
