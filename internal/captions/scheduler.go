package captions

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/maauso/clipforge-api/internal/layout"
	"github.com/maauso/clipforge-api/internal/raster"
)

// TextRenderer rasterizes one text block.
type TextRenderer interface {
	Text(ctx context.Context, s raster.Style, dst string) (raster.Result, error)
}

// Style is the caption text styling shared by every caption of a clip.
type Style struct {
	FontSize    int
	Color       string
	Font        raster.FontSpec
	StrokeWidth float64
	StrokeColor string
}

// Scheduled is a caption ready for compositing.
type Scheduled struct {
	Path   string  `json:"path"`
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
	Text   string  `json:"text"`
	Height int     `json:"height"`
}

// Scheduler rasterizes captions for a clip.
type Scheduler struct {
	renderer    TextRenderer
	logger      *slog.Logger
	concurrency int
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithConcurrency bounds the number of captions rasterized at once.
func WithConcurrency(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// NewScheduler creates a Scheduler.
func NewScheduler(renderer TextRenderer, logger *slog.Logger, opts ...SchedulerOption) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{renderer: renderer, logger: logger, concurrency: 4}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule normalizes captions against clip and renders each remaining one
// bold and centered at the width of rect into dir. The result is in input
// order.
func (s *Scheduler) Schedule(ctx context.Context, captions []Caption, clip Clip, rect layout.Rect, style Style, dir string) ([]Scheduled, error) {
	windows := Normalize(captions, clip)
	if dropped := len(captions) - len(windows); dropped > 0 {
		s.logger.Info("captions outside the clip dropped",
			slog.Int("dropped", dropped),
			slog.Int("kept", len(windows)),
		)
	}

	font := style.Font
	if font.Weight == 0 {
		font.Weight = raster.WeightBold
	}

	out := make([]Scheduled, len(windows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, w := range windows {
		g.Go(func() error {
			dst := filepath.Join(dir, fmt.Sprintf("caption_%d.png", i))
			res, err := s.renderer.Text(gctx, raster.Style{
				Text:        w.Text,
				Width:       rect.Width,
				FontSize:    style.FontSize,
				Color:       style.Color,
				Font:        font,
				StrokeWidth: style.StrokeWidth,
				StrokeColor: style.StrokeColor,
				Align:       raster.AlignCenter,
			}, dst)
			if err != nil {
				return fmt.Errorf("rasterize caption %d: %w", w.Index, err)
			}
			out[i] = Scheduled{Path: res.Path, Start: w.Start, End: w.End, Text: w.Text, Height: res.Height}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
