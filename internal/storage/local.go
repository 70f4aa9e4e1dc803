package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrOutsideRoot is returned for paths that escape the storage roots.
var ErrOutsideRoot = errors.New("path is outside the storage root")

// ErrInvalidName is returned by ResolveOutput for names that are not a
// single path element.
var ErrInvalidName = errors.New("invalid output name")

var _ Storage = (*LocalStorage)(nil)

// LocalStorage keeps workdirs under tempDir and outputs under outputDir,
// served by the API at <baseURL>/videos/<name>.
type LocalStorage struct {
	tempDir   string
	outputDir string
	baseURL   string
}

// NewLocalStorage creates both roots if needed. Empty directories default
// to subdirectories of os.TempDir().
func NewLocalStorage(tempDir, outputDir, baseURL string) (*LocalStorage, error) {
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "clipforge", "work")
	}
	if outputDir == "" {
		outputDir = filepath.Join(os.TempDir(), "clipforge", "videos")
	}
	for _, dir := range []string{tempDir, outputDir} {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}
	return &LocalStorage{
		tempDir:   tempDir,
		outputDir: outputDir,
		baseURL:   strings.TrimRight(baseURL, "/"),
	}, nil
}

// TempDir returns the workdir root.
func (s *LocalStorage) TempDir() string {
	return s.tempDir
}

// OutputDir returns the output root.
func (s *LocalStorage) OutputDir() string {
	return s.outputDir
}

// NewWorkdir creates <tempDir>/<uuid>.
func (s *LocalStorage) NewWorkdir(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context cancelled: %w", err)
	}
	dir := filepath.Join(s.tempDir, uuid.NewString())
	if err := os.Mkdir(dir, 0750); err != nil {
		return "", fmt.Errorf("create workdir: %w", err)
	}
	return dir, nil
}

// RemoveWorkdir deletes dir and everything in it. dir must be a direct
// child of the workdir root.
func (s *LocalStorage) RemoveWorkdir(dir string) error {
	if dir == "" {
		return nil
	}
	if filepath.Dir(filepath.Clean(dir)) != filepath.Clean(s.tempDir) {
		return fmt.Errorf("%w: %s", ErrOutsideRoot, dir)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove workdir: %w", err)
	}
	return nil
}

// OutputPath returns <outputDir>/<uuid><ext>.
func (s *LocalStorage) OutputPath(ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return filepath.Join(s.outputDir, uuid.NewString()+ext)
}

// Publish keeps the file in place and returns its /videos URL.
func (s *LocalStorage) Publish(ctx context.Context, path string) (Published, error) {
	if err := ctx.Err(); err != nil {
		return Published{}, fmt.Errorf("context cancelled: %w", err)
	}
	if filepath.Dir(filepath.Clean(path)) != filepath.Clean(s.outputDir) {
		return Published{}, fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	if _, err := os.Stat(path); err != nil {
		return Published{}, fmt.Errorf("stat output: %w", err)
	}
	return Published{Path: path, URL: s.baseURL + "/videos/" + filepath.Base(path)}, nil
}

// ResolveOutput maps a published name back to its file.
func (s *LocalStorage) ResolveOutput(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.outputDir, name), nil
}

// SweepOlderThan removes stale entries from both roots. It keeps going
// after individual failures and returns the first one.
func (s *LocalStorage) SweepOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	removed := 0
	var firstErr error
	for _, root := range []string{s.tempDir, s.outputDir} {
		entries, err := os.ReadDir(root)
		if err != nil {
			return removed, fmt.Errorf("read %s: %w", root, err)
		}
		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				return removed, fmt.Errorf("context cancelled: %w", err)
			}
			info, err := e.Info()
			if err != nil || !info.ModTime().Before(cutoff) {
				continue
			}
			if err := os.RemoveAll(filepath.Join(root, e.Name())); err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("remove %s: %w", e.Name(), err)
				}
				continue
			}
			removed++
		}
	}
	return removed, firstErr
}
