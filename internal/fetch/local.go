package fetch

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// LocalFetcher copies a local file, addressed by an absolute path or a
// file:// URL.
type LocalFetcher struct{}

// NewLocalFetcher creates a LocalFetcher.
func NewLocalFetcher() *LocalFetcher {
	return &LocalFetcher{}
}

// Name implements Fetcher.
func (f *LocalFetcher) Name() string { return "local" }

// Supports implements Fetcher.
func (f *LocalFetcher) Supports(rawURL string) bool {
	return strings.HasPrefix(rawURL, "file://") || filepath.IsAbs(rawURL)
}

// Fetch copies the source into req.OutputPath.
func (f *LocalFetcher) Fetch(ctx context.Context, req Request) (Result, error) {
	src := req.URL
	if strings.HasPrefix(src, "file://") {
		u, err := url.Parse(src)
		if err != nil {
			return Result{}, fmt.Errorf("parse file url: %w", err)
		}
		src = u.Path
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if err := checkOutput(src); err != nil {
		return Result{}, err
	}

	in, err := os.Open(filepath.Clean(src))
	if err != nil {
		return Result{}, fmt.Errorf("open source: %w", err)
	}
	defer func() { _ = in.Close() }()

	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0o750); err != nil {
		return Result{}, fmt.Errorf("create output dir: %w", err)
	}
	out, err := os.Create(req.OutputPath)
	if err != nil {
		return Result{}, fmt.Errorf("create output: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(req.OutputPath)
		return Result{}, fmt.Errorf("copy source: %w", err)
	}
	if err := out.Close(); err != nil {
		return Result{}, fmt.Errorf("close output: %w", err)
	}
	return Result{Path: req.OutputPath}, nil
}
