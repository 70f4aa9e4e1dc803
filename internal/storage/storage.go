// Package storage manages request-scoped working directories and the
// publication of rendered outputs to local disk or S3.
package storage

import (
	"context"
	"time"
)

// Published describes where an output ended up. Path is empty when the
// local copy was removed after an upload.
type Published struct {
	Path string `json:"path,omitempty"`
	URL  string `json:"url"`
}

// Storage is the file layout used by the compose pipeline.
type Storage interface {
	// NewWorkdir creates a fresh directory owned by one request.
	NewWorkdir(ctx context.Context) (string, error)

	// RemoveWorkdir deletes a directory created by NewWorkdir. Removing a
	// directory that no longer exists is not an error.
	RemoveWorkdir(dir string) error

	// OutputPath returns a new, unused path for an output with extension
	// ext, outside any workdir.
	OutputPath(ext string) string

	// Publish makes the file at path reachable and returns its URL.
	Publish(ctx context.Context, path string) (Published, error)

	// SweepOlderThan removes workdirs and outputs last modified before
	// the cutoff and returns how many entries were removed.
	SweepOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}
