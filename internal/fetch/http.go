package fetch

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/maauso/clipforge-api/internal/httpclient"
)

var mediaExtensions = []string{".mp4", ".mov", ".mkv", ".webm", ".m4v"}

// HTTPFetcher downloads direct media URLs.
type HTTPFetcher struct {
	client *httpclient.Client
}

// NewHTTPFetcher creates a fetcher. A nil client uses httpclient defaults.
func NewHTTPFetcher(client *httpclient.Client) *HTTPFetcher {
	if client == nil {
		client = httpclient.New()
	}
	return &HTTPFetcher{client: client}
}

// Name implements Fetcher.
func (f *HTTPFetcher) Name() string { return "http" }

// Supports accepts http(s) URLs whose path ends in a video extension.
func (f *HTTPFetcher) Supports(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	ext := strings.ToLower(path.Ext(u.Path))
	for _, e := range mediaExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Fetch downloads the file, retrying transient failures.
func (f *HTTPFetcher) Fetch(ctx context.Context, req Request) (Result, error) {
	if err := f.client.Download(ctx, req.URL, req.OutputPath); err != nil {
		return Result{}, fmt.Errorf("download %s: %w", redact(req.URL), err)
	}
	if err := checkOutput(req.OutputPath); err != nil {
		return Result{}, err
	}
	return Result{Path: req.OutputPath}, nil
}
