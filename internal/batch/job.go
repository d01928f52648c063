// Package batch orchestrates the per-file processing pipeline over a set of
// input files. Each file is an independent unit of work; files are processed
// in parallel and only the report aggregation is shared between workers.
package batch

import (
	"errors"
	"sync"
	"time"
)

// Status represents the current state of a file job.
type Status string

const (
	// StatusPending indicates the file is waiting for a worker.
	StatusPending Status = "PENDING"
	// StatusRunning indicates the file is being processed.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates the file finished successfully.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates the file encountered an error during processing.
	StatusFailed Status = "FAILED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusPending:   {StatusRunning},
	StatusRunning:   {StatusCompleted, StatusFailed},
	StatusCompleted: {},
	StatusFailed:    {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// FileJob tracks the processing of one input file within a run.
type FileJob struct {
	mu sync.RWMutex

	// RunID identifies the batch run this job belongs to.
	RunID string
	// InputPath is the path to the input audio file.
	InputPath string
	// Status is the current job state.
	Status Status
	// Error contains any error message if processing failed.
	Error string
	// SegmentsAccepted is the number of segments that passed the quality filter.
	SegmentsAccepted int
	// SegmentsRejected is the number of segments the quality filter rejected.
	SegmentsRejected int
	// CreatedAt is when the job was created.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// StartedAt is when processing started.
	StartedAt time.Time
	// CompletedAt is when processing finished.
	CompletedAt time.Time
}

// NewFileJob creates a new FileJob in PENDING status.
func NewFileJob(runID, inputPath string) *FileJob {
	now := time.Now()
	return &FileJob{
		RunID:     runID,
		InputPath: inputPath,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *FileJob) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	switch status {
	case StatusRunning:
		j.StartedAt = j.UpdatedAt
	case StatusCompleted, StatusFailed:
		j.CompletedAt = j.UpdatedAt
	}

	return nil
}

// Start transitions the job from PENDING to RUNNING.
func (j *FileJob) Start() error {
	return j.TransitionTo(StatusRunning)
}

// Complete transitions the job to COMPLETED with the final segment counts.
func (j *FileJob) Complete(accepted, rejected int) error {
	j.mu.Lock()
	j.SegmentsAccepted = accepted
	j.SegmentsRejected = rejected
	j.mu.Unlock()
	return j.TransitionTo(StatusCompleted)
}

// Fail transitions the job to FAILED state with an error message.
func (j *FileJob) Fail(errMsg string) error {
	j.mu.Lock()
	j.Error = errMsg
	j.mu.Unlock()
	return j.TransitionTo(StatusFailed)
}

// GetStatus returns the current job status (thread-safe).
func (j *FileJob) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// IsTerminal returns true if the job is in a terminal state.
func (j *FileJob) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// Clone creates a deep copy of the job for safe reads.
func (j *FileJob) Clone() *FileJob {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return &FileJob{
		RunID:            j.RunID,
		InputPath:        j.InputPath,
		Status:           j.Status,
		Error:            j.Error,
		SegmentsAccepted: j.SegmentsAccepted,
		SegmentsRejected: j.SegmentsRejected,
		CreatedAt:        j.CreatedAt,
		UpdatedAt:        j.UpdatedAt,
		StartedAt:        j.StartedAt,
		CompletedAt:      j.CompletedAt,
	}
}
