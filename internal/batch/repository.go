package batch

import (
	"context"
	"errors"
)

// ErrJobNotFound is returned when a job cannot be found by input path.
var ErrJobNotFound = errors.New("file job not found")

// Repository defines the interface for file-job persistence.
// It acts as a port in the hexagonal architecture pattern.
type Repository interface {
	// Save persists a job to the storage.
	// If the job already exists, it should be updated.
	Save(ctx context.Context, job *FileJob) error

	// FindByInput retrieves a job by its input path.
	// Returns ErrJobNotFound if the job does not exist.
	FindByInput(ctx context.Context, inputPath string) (*FileJob, error)

	// List returns all jobs.
	List(ctx context.Context) ([]*FileJob, error)
}
