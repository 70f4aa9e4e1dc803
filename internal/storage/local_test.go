package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStorage(t *testing.T) *LocalStorage {
	t.Helper()
	root := t.TempDir()
	s, err := NewLocalStorage(filepath.Join(root, "work"), filepath.Join(root, "videos"), "http://localhost:3000/")
	require.NoError(t, err)
	return s
}

func TestNewLocalStorage(t *testing.T) {
	s := setupTestStorage(t)

	for _, dir := range []string{s.TempDir(), s.OutputDir()} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
	assert.Equal(t, "http://localhost:3000", s.baseURL)
}

func TestLocalStorage_Workdirs(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	a, err := s.NewWorkdir(ctx)
	require.NoError(t, err)
	b, err := s.NewWorkdir(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Equal(t, s.TempDir(), filepath.Dir(a))

	require.NoError(t, os.WriteFile(filepath.Join(a, "title.png"), []byte("png"), 0600))
	require.NoError(t, s.RemoveWorkdir(a))
	_, err = os.Stat(a)
	assert.True(t, os.IsNotExist(err))

	// Removing twice is fine.
	assert.NoError(t, s.RemoveWorkdir(a))

	_, err = os.Stat(b)
	assert.NoError(t, err, "other workdirs are untouched")
}

func TestLocalStorage_RemoveWorkdirOutsideRoot(t *testing.T) {
	s := setupTestStorage(t)

	err := s.RemoveWorkdir(s.OutputDir())
	assert.True(t, errors.Is(err, ErrOutsideRoot))
	_, statErr := os.Stat(s.OutputDir())
	assert.NoError(t, statErr)
}

func TestLocalStorage_NewWorkdirCancelled(t *testing.T) {
	s := setupTestStorage(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.NewWorkdir(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocalStorage_Publish(t *testing.T) {
	s := setupTestStorage(t)

	out := s.OutputPath("mp4")
	assert.Equal(t, ".mp4", filepath.Ext(out))
	require.NoError(t, os.WriteFile(out, []byte("video"), 0600))

	pub, err := s.Publish(context.Background(), out)
	require.NoError(t, err)
	assert.Equal(t, out, pub.Path)
	assert.Equal(t, "http://localhost:3000/videos/"+filepath.Base(out), pub.URL)

	resolved, err := s.ResolveOutput(filepath.Base(out))
	require.NoError(t, err)
	assert.Equal(t, out, resolved)
}

func TestLocalStorage_PublishRejectsForeignPaths(t *testing.T) {
	s := setupTestStorage(t)
	foreign := filepath.Join(t.TempDir(), "x.mp4")
	require.NoError(t, os.WriteFile(foreign, []byte("video"), 0600))

	_, err := s.Publish(context.Background(), foreign)
	assert.ErrorIs(t, err, ErrOutsideRoot)

	_, err = s.Publish(context.Background(), s.OutputPath(".mp4"))
	assert.Error(t, err, "missing output")
}

func TestLocalStorage_ResolveOutput(t *testing.T) {
	s := setupTestStorage(t)
	for _, name := range []string{"", "../etc/passwd", "a/b.mp4", ".hidden"} {
		t.Run(name, func(t *testing.T) {
			_, err := s.ResolveOutput(name)
			assert.ErrorIs(t, err, ErrInvalidName)
		})
	}
}

func TestLocalStorage_SweepOlderThan(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	stale, err := s.NewWorkdir(ctx)
	require.NoError(t, err)
	fresh, err := s.NewWorkdir(ctx)
	require.NoError(t, err)
	oldOut := s.OutputPath(".mp4")
	require.NoError(t, os.WriteFile(oldOut, []byte("video"), 0600))

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))
	require.NoError(t, os.Chtimes(oldOut, old, old))

	removed, err := s.SweepOlderThan(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(oldOut)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	assert.NoError(t, err)
}
