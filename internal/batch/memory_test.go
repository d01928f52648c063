package batch

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryRepository_Save(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	job := NewFileJob("run-1", "a.wav")

	err := repo.Save(ctx, job)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Verify it was saved
	saved, err := repo.FindByInput(ctx, "a.wav")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved.InputPath != job.InputPath {
		t.Errorf("expected input %s, got %s", job.InputPath, saved.InputPath)
	}
}

func TestMemoryRepository_Save_Update(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	job := NewFileJob("run-1", "a.wav")

	if err := repo.Save(ctx, job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_ = job.Start()
	if err := repo.Save(ctx, job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	saved, err := repo.FindByInput(ctx, "a.wav")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved.Status != StatusRunning {
		t.Errorf("expected RUNNING after update, got %s", saved.Status)
	}
}

func TestMemoryRepository_FindByInput_NotFound(t *testing.T) {
	repo := NewMemoryRepository()

	_, err := repo.FindByInput(context.Background(), "missing.wav")
	if !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestMemoryRepository_FindByInput_ReturnsClone(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	job := NewFileJob("run-1", "a.wav")
	if err := repo.Save(ctx, job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	found, err := repo.FindByInput(ctx, "a.wav")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Mutating the returned job must not affect the stored one.
	found.Status = StatusFailed

	again, err := repo.FindByInput(ctx, "a.wav")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.Status != StatusPending {
		t.Errorf("stored job mutated through returned clone: %s", again.Status)
	}
}

func TestMemoryRepository_List(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	for _, input := range []string{"a.wav", "b.wav", "c.wav"} {
		if err := repo.Save(ctx, NewFileJob("run-1", input)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	jobs, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(jobs) != 3 {
		t.Errorf("expected 3 jobs, got %d", len(jobs))
	}
}
