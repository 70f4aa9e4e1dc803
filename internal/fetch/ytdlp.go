package fetch

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/maauso/clipforge-api/internal/timecode"
)

const ytdlpUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Strategy is one yt-dlp format selection attempt.
type Strategy struct {
	Format string
	Merge  bool
}

// DefaultStrategies are tried in order.
var DefaultStrategies = []Strategy{
	{Format: "best[height<=1080][ext=mp4]/best[ext=mp4]"},
	{Format: "bv*+ba/b", Merge: true},
	{Format: "best"},
}

// YTDLPFetcher downloads with the yt-dlp CLI.
type YTDLPFetcher struct {
	path       string
	cookies    string
	sections   bool
	strategies []Strategy
	logger     *slog.Logger
}

// YTDLPOption configures a YTDLPFetcher.
type YTDLPOption func(*YTDLPFetcher)

// WithCookiesFile passes a Netscape cookie file to yt-dlp.
func WithCookiesFile(path string) YTDLPOption {
	return func(f *YTDLPFetcher) {
		f.cookies = path
	}
}

// WithSections downloads only the requested range instead of the whole
// video.
func WithSections(enabled bool) YTDLPOption {
	return func(f *YTDLPFetcher) {
		f.sections = enabled
	}
}

// WithStrategies replaces DefaultStrategies.
func WithStrategies(s ...Strategy) YTDLPOption {
	return func(f *YTDLPFetcher) {
		if len(s) > 0 {
			f.strategies = s
		}
	}
}

// NewYTDLPFetcher creates a fetcher. An empty path uses "yt-dlp" from PATH.
func NewYTDLPFetcher(path string, logger *slog.Logger, opts ...YTDLPOption) *YTDLPFetcher {
	if path == "" {
		path = "yt-dlp"
	}
	if logger == nil {
		logger = slog.Default()
	}
	f := &YTDLPFetcher{path: path, strategies: DefaultStrategies, logger: logger}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Name implements Fetcher.
func (f *YTDLPFetcher) Name() string { return "yt-dlp" }

// Supports implements Fetcher. yt-dlp handles any http(s) page.
func (f *YTDLPFetcher) Supports(rawURL string) bool {
	return strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://")
}

// Fetch runs each strategy until one leaves a plausible video at
// req.OutputPath.
func (f *YTDLPFetcher) Fetch(ctx context.Context, req Request) (Result, error) {
	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0o750); err != nil {
		return Result{}, fmt.Errorf("create output dir: %w", err)
	}

	var lastErr error
	for i, s := range f.strategies {
		_ = os.Remove(req.OutputPath)
		args := f.args(s, req)

		// #nosec G204 - the binary is configured by the application
		cmd := exec.CommandContext(ctx, f.path, args...)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr

		err := cmd.Run()
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("yt-dlp cancelled: %w", ctx.Err())
		}
		if err == nil {
			err = checkOutput(req.OutputPath)
		}
		if err == nil {
			res := Result{Path: req.OutputPath}
			if f.sections && req.End > req.Start {
				res.StartOffset = req.Start
			}
			return res, nil
		}

		f.logger.Warn("yt-dlp strategy failed",
			slog.Int("strategy", i+1),
			slog.String("format", s.Format),
			slog.String("stderr", lastLines(stderr.String(), 5)),
		)
		lastErr = fmt.Errorf("strategy %d (%s): %w", i+1, s.Format, err)
	}
	_ = os.Remove(req.OutputPath)
	return Result{}, lastErr
}

func (f *YTDLPFetcher) args(s Strategy, req Request) []string {
	args := []string{"-f", s.Format}
	if s.Merge {
		args = append(args, "--merge-output-format", "mp4")
	}
	args = append(args,
		"--no-playlist",
		"--no-check-certificates",
		"--user-agent", ytdlpUserAgent,
	)
	if f.sections && req.End > req.Start {
		args = append(args,
			"--download-sections", fmt.Sprintf("*%s-%s", timecode.Format(req.Start), timecode.Format(req.End)),
			"--force-keyframes-at-cuts",
		)
	}
	if f.cookies != "" {
		args = append(args, "--cookies", f.cookies)
	}
	return append(args, "-o", req.OutputPath, req.URL)
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
