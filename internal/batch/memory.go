package batch

import (
	"context"
	"sync"
)

// Compile-time check that MemoryRepository implements Repository.
var _ Repository = (*MemoryRepository)(nil)

// MemoryRepository is an in-memory implementation of Repository.
// It uses a map with RWMutex for thread-safe access. A batch run lives and
// dies with the process, so nothing more durable is needed.
type MemoryRepository struct {
	mu   sync.RWMutex
	jobs map[string]*FileJob
}

// NewMemoryRepository creates a new in-memory file-job repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		jobs: make(map[string]*FileJob),
	}
}

// Save persists a job to the in-memory storage.
// Creates a clone to avoid external mutations.
func (r *MemoryRepository) Save(_ context.Context, job *FileJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.InputPath] = job.Clone()
	return nil
}

// FindByInput retrieves a job by its input path.
// Returns a clone to prevent external mutations.
func (r *MemoryRepository) FindByInput(_ context.Context, inputPath string) (*FileJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[inputPath]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job.Clone(), nil
}

// List returns all jobs in the repository.
// Returns clones to prevent external mutations.
func (r *MemoryRepository) List(_ context.Context) ([]*FileJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*FileJob, 0, len(r.jobs))
	for _, job := range r.jobs {
		result = append(result, job.Clone())
	}
	return result, nil
}
