package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kkdai/youtube/v2"
)

// ErrNoFormat is returned when a video has no progressive format with audio.
var ErrNoFormat = errors.New("no downloadable format with audio")

// maxHeight caps the picked resolution.
const maxHeight = 1080

// YouTubeFetcher downloads progressive YouTube formats without external
// tools.
type YouTubeFetcher struct {
	client *youtube.Client
}

// NewYouTubeFetcher creates a fetcher. A nil client uses a zero Client.
func NewYouTubeFetcher(client *youtube.Client) *YouTubeFetcher {
	if client == nil {
		client = &youtube.Client{}
	}
	return &YouTubeFetcher{client: client}
}

// Name implements Fetcher.
func (f *YouTubeFetcher) Name() string { return "youtube" }

// Supports implements Fetcher.
func (f *YouTubeFetcher) Supports(rawURL string) bool {
	return IsYouTube(rawURL)
}

// Fetch downloads the whole video in the best progressive mp4 format.
func (f *YouTubeFetcher) Fetch(ctx context.Context, req Request) (Result, error) {
	video, err := f.client.GetVideoContext(ctx, req.URL)
	if err != nil {
		return Result{}, fmt.Errorf("get video metadata: %w", err)
	}
	format, err := pickFormat(video.Formats)
	if err != nil {
		return Result{}, err
	}

	stream, _, err := f.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return Result{}, fmt.Errorf("open stream: %w", err)
	}
	defer func() { _ = stream.Close() }()

	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0o750); err != nil {
		return Result{}, fmt.Errorf("create output dir: %w", err)
	}
	out, err := os.Create(req.OutputPath)
	if err != nil {
		return Result{}, fmt.Errorf("create output: %w", err)
	}
	if _, err := io.Copy(out, stream); err != nil {
		_ = out.Close()
		_ = os.Remove(req.OutputPath)
		return Result{}, fmt.Errorf("download stream: %w", err)
	}
	if err := out.Close(); err != nil {
		return Result{}, fmt.Errorf("close output: %w", err)
	}
	if err := checkOutput(req.OutputPath); err != nil {
		_ = os.Remove(req.OutputPath)
		return Result{}, err
	}
	return Result{Path: req.OutputPath}, nil
}

// pickFormat prefers mp4 formats with audio, tallest first up to
// maxHeight.
func pickFormat(formats youtube.FormatList) (*youtube.Format, error) {
	candidates := formats.WithAudioChannels()
	var usable []youtube.Format
	for _, f := range candidates {
		if f.Height > 0 && f.Height <= maxHeight {
			usable = append(usable, f)
		}
	}
	if len(usable) == 0 {
		return nil, ErrNoFormat
	}
	sort.SliceStable(usable, func(i, j int) bool {
		mi, mj := isMP4(usable[i]), isMP4(usable[j])
		if mi != mj {
			return mi
		}
		return usable[i].Height > usable[j].Height
	})
	return &usable[0], nil
}

func isMP4(f youtube.Format) bool {
	return strings.HasPrefix(f.MimeType, "video/mp4")
}
