// Package fetch acquires the source video of a clip as a local file.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/samber/lo"
)

// MinVideoBytes is the smallest file accepted as a downloaded video.
const MinVideoBytes = 1000

// Fetch errors.
var (
	ErrUnsupportedURL = errors.New("no fetcher supports this url")
	ErrTooSmall       = errors.New("downloaded file is missing or too small")
)

// Request describes the media to fetch.
type Request struct {
	URL string
	// Start and End bound the clip in source seconds. Fetchers may ignore
	// them and return the whole video.
	Start      float64
	End        float64
	OutputPath string
}

// Result describes a fetched file.
type Result struct {
	Path string
	// StartOffset is the source time at the first frame of the file. It is
	// non-zero only when the fetcher trimmed the download.
	StartOffset float64
	Fetcher     string
}

// Fetcher downloads media for a Request.
type Fetcher interface {
	Name() string
	Supports(rawURL string) bool
	Fetch(ctx context.Context, req Request) (Result, error)
}

// Chain tries every fetcher that supports a URL in order until one
// succeeds.
type Chain struct {
	fetchers []Fetcher
	logger   *slog.Logger
}

// NewChain creates a Chain.
func NewChain(logger *slog.Logger, fetchers ...Fetcher) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{fetchers: fetchers, logger: logger}
}

// Name implements Fetcher.
func (c *Chain) Name() string { return "chain" }

// Supports implements Fetcher.
func (c *Chain) Supports(rawURL string) bool {
	return lo.ContainsBy(c.fetchers, func(f Fetcher) bool { return f.Supports(rawURL) })
}

// Fetch implements Fetcher.
func (c *Chain) Fetch(ctx context.Context, req Request) (Result, error) {
	candidates := lo.Filter(c.fetchers, func(f Fetcher, _ int) bool { return f.Supports(req.URL) })
	if len(candidates) == 0 {
		return Result{}, fmt.Errorf("%w: %s", ErrUnsupportedURL, redact(req.URL))
	}

	var errs []error
	for _, f := range candidates {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		res, err := f.Fetch(ctx, req)
		if err == nil {
			res.Fetcher = f.Name()
			c.logger.Info("video fetched",
				slog.String("fetcher", f.Name()),
				slog.String("path", res.Path),
			)
			return res, nil
		}
		c.logger.Warn("fetcher failed, trying next",
			slog.String("fetcher", f.Name()),
			slog.String("error", err.Error()),
		)
		errs = append(errs, fmt.Errorf("%s: %w", f.Name(), err))
		_ = os.Remove(req.OutputPath)
	}
	return Result{}, errors.Join(errs...)
}

// IsYouTube reports whether rawURL points at YouTube.
func IsYouTube(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")
	return host == "youtube.com" || host == "youtu.be" || host == "music.youtube.com" || host == "youtube-nocookie.com"
}

func checkOutput(path string) error {
	info, err := os.Stat(path)
	if err != nil || info.Size() <= MinVideoBytes {
		return fmt.Errorf("%w: %s", ErrTooSmall, path)
	}
	return nil
}

func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}
