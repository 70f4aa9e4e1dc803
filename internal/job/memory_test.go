package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// testRepository runs the behavior every Repository must share.
func testRepository(t *testing.T, newRepo func(t *testing.T) Repository) {
	ctx := context.Background()

	t.Run("save and find", func(t *testing.T) {
		repo := newRepo(t)
		job := New()
		job.Input = &ComposeInput{SourceURL: "https://youtu.be/abc", Start: 10, End: 25}
		if err := repo.Save(ctx, job); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		saved, err := repo.FindByID(ctx, job.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if saved.ID != job.ID {
			t.Errorf("expected ID %s, got %s", job.ID, saved.ID)
		}
		if saved.Input == nil || saved.Input.End != 25 {
			t.Errorf("expected input to round-trip, got %+v", saved.Input)
		}
	})

	t.Run("save updates", func(t *testing.T) {
		repo := newRepo(t)
		job := New()
		_ = repo.Save(ctx, job)

		_ = job.Start()
		job.UpdateProgress(50)
		_ = repo.Save(ctx, job)

		saved, _ := repo.FindByID(ctx, job.ID)
		if saved.Status != StatusRunning {
			t.Errorf("expected status %s, got %s", StatusRunning, saved.Status)
		}
		if saved.Progress != 50 {
			t.Errorf("expected progress 50, got %d", saved.Progress)
		}
		if saved.StartedAt.IsZero() {
			t.Error("expected StartedAt to survive a save")
		}
	})

	t.Run("not found", func(t *testing.T) {
		repo := newRepo(t)
		if _, err := repo.FindByID(ctx, "nonexistent"); !errors.Is(err, ErrJobNotFound) {
			t.Errorf("expected ErrJobNotFound, got %v", err)
		}
		if err := repo.Delete(ctx, "nonexistent"); !errors.Is(err, ErrJobNotFound) {
			t.Errorf("expected ErrJobNotFound, got %v", err)
		}
	})

	t.Run("list newest first", func(t *testing.T) {
		repo := newRepo(t)
		base := time.Now()
		for i := 0; i < 3; i++ {
			job := NewWithID(fmt.Sprintf("clip-%d", i))
			job.CreatedAt = base.Add(time.Duration(i) * time.Minute)
			_ = repo.Save(ctx, job)
		}

		jobs, err := repo.List(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(jobs) != 3 {
			t.Fatalf("expected 3 jobs, got %d", len(jobs))
		}
		for i, want := range []string{"clip-2", "clip-1", "clip-0"} {
			if jobs[i].ID != want {
				t.Errorf("jobs[%d] = %s, want %s", i, jobs[i].ID, want)
			}
		}
	})

	t.Run("delete", func(t *testing.T) {
		repo := newRepo(t)
		job := New()
		_ = repo.Save(ctx, job)

		if err := repo.Delete(ctx, job.ID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := repo.FindByID(ctx, job.ID); !errors.Is(err, ErrJobNotFound) {
			t.Errorf("expected job to be deleted, got %v", err)
		}
		jobs, _ := repo.List(ctx)
		if len(jobs) != 0 {
			t.Errorf("expected empty list, got %d", len(jobs))
		}
	})

	t.Run("returns copies", func(t *testing.T) {
		repo := newRepo(t)
		job := New()
		_ = repo.Save(ctx, job)

		found, _ := repo.FindByID(ctx, job.ID)
		found.UpdateProgress(99)
		_ = found.Start()

		original, _ := repo.FindByID(ctx, job.ID)
		if original.Progress != 0 || original.Status != StatusInQueue {
			t.Error("modifying returned job should not affect repository")
		}
	})
}

func TestMemoryRepository(t *testing.T) {
	testRepository(t, func(*testing.T) Repository { return NewMemoryRepository() })
}

func TestMemoryRepository_SaveClonesInput(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	job := New()
	job.Input = &ComposeInput{SourceURL: "https://youtu.be/abc", End: 10}
	_ = repo.Save(ctx, job)

	job.Input.SourceURL = "changed"

	saved, _ := repo.FindByID(ctx, job.ID)
	if saved.Input.SourceURL != "https://youtu.be/abc" {
		t.Errorf("repository shares input with caller: %s", saved.Input.SourceURL)
	}
}

func TestMemoryRepository_ConcurrentAccess(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job := New()
			_ = repo.Save(ctx, job)
			_, _ = repo.FindByID(ctx, job.ID)
			_, _ = repo.List(ctx)
		}()
	}
	wg.Wait()

	jobs, _ := repo.List(ctx)
	if len(jobs) == 0 {
		t.Error("expected saved jobs")
	}
}
