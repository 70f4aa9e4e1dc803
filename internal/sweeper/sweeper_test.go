package sweeper

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/clipforge-api/internal/job"
)

type fakeFiles struct {
	cutoffs []time.Time
	removed int
	err     error
	calls   atomic.Int32
}

func (f *fakeFiles) SweepOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	f.calls.Add(1)
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.removed, f.err
}

func savedJob(t *testing.T, repo job.Repository, id string, status job.Status, completed time.Time) {
	t.Helper()
	j := job.NewWithID(id)
	j.Status = status
	j.CompletedAt = completed
	require.NoError(t, repo.Save(context.Background(), j))
}

func TestRunOnce(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	files := &fakeFiles{removed: 3}
	repo := job.NewMemoryRepository()

	savedJob(t, repo, "old-done", job.StatusCompleted, now.Add(-3*time.Hour))
	savedJob(t, repo, "old-failed", job.StatusFailed, now.Add(-3*time.Hour))
	savedJob(t, repo, "recent", job.StatusCompleted, now.Add(-10*time.Minute))
	savedJob(t, repo, "running", job.StatusRunning, time.Time{})

	s := New(files, repo, time.Hour, nil, WithClock(func() time.Time { return now }))
	report, err := s.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Report{Files: 3, Jobs: 2}, report)
	assert.Equal(t, []time.Time{now.Add(-time.Hour)}, files.cutoffs)

	left, _ := repo.List(context.Background())
	ids := make([]string, 0, len(left))
	for _, j := range left {
		ids = append(ids, j.ID)
	}
	assert.ElementsMatch(t, []string{"recent", "running"}, ids)
}

func TestRunOnce_FileErrorDoesNotStopJobSweep(t *testing.T) {
	now := time.Now()
	files := &fakeFiles{err: errors.New("permission denied")}
	repo := job.NewMemoryRepository()
	savedJob(t, repo, "old", job.StatusCompleted, now.Add(-2*time.Hour))

	report, err := New(files, repo, time.Hour, nil).RunOnce(context.Background())
	assert.ErrorContains(t, err, "permission denied")
	assert.Equal(t, 1, report.Jobs)
}

func TestRunOnce_FilesOnly(t *testing.T) {
	files := &fakeFiles{removed: 1}
	report, err := New(files, nil, time.Hour, nil).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Files: 1}, report)
}

func TestStart(t *testing.T) {
	files := &fakeFiles{}
	s := New(files, nil, time.Hour, nil)
	require.NoError(t, s.Start("@every 1s"))
	defer s.Stop(context.Background())

	assert.Eventually(t, func() bool { return files.calls.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
}

func TestStart_InvalidSchedule(t *testing.T) {
	s := New(&fakeFiles{}, nil, time.Hour, nil)
	assert.Error(t, s.Start("every now and then"))
}

func TestStart_DisabledRetention(t *testing.T) {
	files := &fakeFiles{}
	s := New(files, nil, 0, nil)
	require.NoError(t, s.Start("@every 1s"))
	s.Stop(context.Background())
	assert.Zero(t, files.calls.Load())
}
