package job

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maauso/clipforge-api/internal/captions"
	"github.com/maauso/clipforge-api/internal/fetch"
	"github.com/maauso/clipforge-api/internal/graph"
	"github.com/maauso/clipforge-api/internal/layout"
	"github.com/maauso/clipforge-api/internal/media"
	"github.com/maauso/clipforge-api/internal/raster"
	"github.com/maauso/clipforge-api/internal/render"
	"github.com/maauso/clipforge-api/internal/storage"
	"github.com/maauso/clipforge-api/internal/template"
)

// Pipeline stages, as reported by StageError.
const (
	StageLayout    = "layout"
	StageRasterize = "rasterize"
	StageFetch     = "fetch"
	StageBuild     = "build"
	StageRender    = "render"
	StagePublish   = "publish"
	StageAudio     = "audio"
)

// Progress milestones of a compose run. Rendering fills the range between
// fetched and rendered.
const (
	progressRasterized = 10
	progressFetched    = 25
	progressRendered   = 95
)

var (
	// ErrFetchFailed is returned when no fetcher could provide the source.
	ErrFetchFailed = errors.New("failed to fetch source video")
	// ErrRenderTimeout is returned when a render exceeds the configured deadline.
	ErrRenderTimeout = errors.New("render timed out")
)

// StageError is a pipeline failure. Diagnostic carries collaborator output
// such as ffmpeg stderr, verbatim.
type StageError struct {
	Stage      string
	Diagnostic string
	Err        error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Details returns the text to show for err: the diagnostic of a
// StageError when there is one, the error message otherwise.
func Details(err error) string {
	var se *StageError
	if errors.As(err, &se) && se.Diagnostic != "" {
		return se.Diagnostic
	}
	return err.Error()
}

func stageErr(stage string, err error) error {
	return &StageError{Stage: stage, Err: err}
}

// TextRasterizer renders title, credit and watermark bitmaps.
type TextRasterizer interface {
	Text(ctx context.Context, s raster.Style, dst string) (raster.Result, error)
	Dual(ctx context.Context, s raster.DualStyle, dst string) (raster.Result, error)
}

// CaptionScheduler rasterizes the captions of a clip.
type CaptionScheduler interface {
	Schedule(ctx context.Context, caps []captions.Caption, clip captions.Clip, rect layout.Rect, style captions.Style, dir string) ([]captions.Scheduled, error)
}

// RenderDispatcher runs a compositing job to completion.
type RenderDispatcher interface {
	Dispatch(ctx context.Context, job graph.Job, workdir string, progress func(percent float64)) (render.Outcome, error)
}

// Templates resolves template names.
type Templates interface {
	Get(name string) (template.Template, bool)
}

// Deps are the collaborators of a ComposeService.
type Deps struct {
	Repo       Repository
	Rasterizer TextRasterizer
	Captions   CaptionScheduler
	Fetcher    fetch.Fetcher
	Media      media.Processor
	Dispatcher RenderDispatcher
	Storage    storage.Storage
	Templates  Templates
}

// ComposeResult describes a published clip.
type ComposeResult struct {
	OutputPath string      `json:"outputPath,omitempty"`
	VideoURL   string      `json:"videoUrl"`
	Plan       layout.Plan `json:"plan"`
	Duration   float64     `json:"duration"`
	Captions   int         `json:"captions"`
}

// ComposeService turns clip requests into published videos, either inline
// (Compose) or as tracked jobs (CreateJob + ProcessExistingJob).
type ComposeService struct {
	deps          Deps
	logger        *slog.Logger
	renderTimeout time.Duration
	preset        string
}

// ServiceOption configures a ComposeService.
type ServiceOption func(*ComposeService)

// WithRenderTimeout bounds each render. Zero disables the bound.
func WithRenderTimeout(d time.Duration) ServiceOption {
	return func(s *ComposeService) {
		s.renderTimeout = d
	}
}

// WithPreset sets the default x264 preset.
func WithPreset(preset string) ServiceOption {
	return func(s *ComposeService) {
		if preset != "" {
			s.preset = preset
		}
	}
}

// NewComposeService creates a ComposeService.
func NewComposeService(deps Deps, logger *slog.Logger, opts ...ServiceOption) *ComposeService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &ComposeService{deps: deps, logger: logger, preset: graph.DefaultPreset}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Compose runs the whole pipeline for in. progress, when set, receives the
// overall completion percentage.
func (s *ComposeService) Compose(ctx context.Context, in ComposeInput, progress func(percent float64)) (ComposeResult, error) {
	if err := s.validate(in); err != nil {
		return ComposeResult{}, err
	}
	in = in.withDefaults()
	report := func(p float64) {
		if progress != nil {
			progress(p)
		}
	}

	tpl, found := s.deps.Templates.Get(in.Template)
	if !found && in.Template != "" {
		s.logger.Warn("unknown template, using default", slog.String("template", in.Template))
	}

	workdir, err := s.deps.Storage.NewWorkdir(ctx)
	if err != nil {
		return ComposeResult{}, err
	}
	defer s.releaseWorkdir(workdir)

	logger := s.logger.With(slog.String("workdir", filepath.Base(workdir)))
	start := time.Now()

	plan, title, err := s.layoutTitle(ctx, in, tpl, workdir)
	if err != nil {
		return ComposeResult{}, err
	}

	comp := graph.Composition{
		Duration:   in.End - in.Start,
		Plan:       plan,
		Background: raster.FFmpegColor(raster.MustColor(in.Background, color.NRGBA{A: 255})),
		Title:      bitmap(title),
		Preset:     orDefault(in.Preset, s.preset),
	}
	if err := s.rasterizeOverlays(ctx, in, tpl, workdir, &comp); err != nil {
		return ComposeResult{}, err
	}
	report(progressRasterized)

	fetched, err := s.deps.Fetcher.Fetch(ctx, fetch.Request{
		URL:        in.SourceURL,
		Start:      in.Start,
		End:        in.End,
		OutputPath: filepath.Join(workdir, "source.mp4"),
	})
	if err != nil {
		return ComposeResult{}, &StageError{Stage: StageFetch, Diagnostic: err.Error(), Err: fmt.Errorf("%w: %w", ErrFetchFailed, err)}
	}
	report(progressFetched)
	s.probe(ctx, logger, fetched, in)

	comp.VideoPath = fetched.Path
	comp.ClipStart = max(0, in.Start-fetched.StartOffset)
	comp.OutputPath = s.deps.Storage.OutputPath(".mp4")

	job, err := graph.Build(comp)
	if err != nil {
		return ComposeResult{}, stageErr(StageBuild, err)
	}

	outcome, err := s.dispatch(ctx, job, workdir, func(p float64) {
		report(progressFetched + p*(progressRendered-progressFetched)/100)
	})
	if err != nil {
		_ = os.Remove(comp.OutputPath)
		return ComposeResult{}, err
	}

	if outcome.OutputPath != "" && outcome.OutputPath != comp.OutputPath {
		logger.Warn("dispatcher reported a different output path",
			slog.String("reported", outcome.OutputPath),
			slog.String("expected", comp.OutputPath),
		)
	}
	pub, err := s.deps.Storage.Publish(ctx, comp.OutputPath)
	if err != nil {
		_ = os.Remove(comp.OutputPath)
		return ComposeResult{}, stageErr(StagePublish, err)
	}
	report(100)

	logger.Info("clip composed",
		slog.String("url", pub.URL),
		slog.Int("captions", len(comp.Captions)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return ComposeResult{
		OutputPath: pub.Path,
		VideoURL:   pub.URL,
		Plan:       plan,
		Duration:   comp.Duration,
		Captions:   len(comp.Captions),
	}, nil
}

// layoutTitle runs both layout passes around the title raster. The title is
// rasterized against the tentative width; when the final plan is narrower
// it is rasterized once more at the final width.
func (s *ComposeService) layoutTitle(ctx context.Context, in ComposeInput, tpl template.Template, workdir string) (layout.Plan, raster.Result, error) {
	opts := layout.Options{
		TitleFontSize:  in.TitleFontSize,
		CreditFontSize: in.CreditFontSize,
		Title:          in.TitlePosition,
		Caption:        in.CaptionPosition,
		Credit:         in.CreditPosition,
	}
	tentative, err := layout.Tentative(in.Aspect, opts)
	if err != nil {
		return layout.Plan{}, raster.Result{}, stageErr(StageLayout, err)
	}

	dst := filepath.Join(workdir, "title.png")
	title, err := s.rasterizeTitle(ctx, in, tpl, tentative.Title.Width, dst)
	if err != nil {
		return layout.Plan{}, raster.Result{}, stageErr(StageRasterize, fmt.Errorf("title: %w", err))
	}

	plan, err := layout.Final(in.Aspect, title.Height, opts)
	if err != nil {
		return layout.Plan{}, raster.Result{}, stageErr(StageLayout, err)
	}
	if plan.Title.Width < title.Width {
		title, err = s.rasterizeTitle(ctx, in, tpl, plan.Title.Width, dst)
		if err != nil {
			return layout.Plan{}, raster.Result{}, stageErr(StageRasterize, fmt.Errorf("title: %w", err))
		}
		if plan, err = layout.Final(in.Aspect, title.Height, opts); err != nil {
			return layout.Plan{}, raster.Result{}, stageErr(StageLayout, err)
		}
	}
	if plan.TitleClipped {
		s.logger.Warn("title taller than the space above the video, clipping",
			slog.Int("title_height", title.Height),
			slog.Int("room", plan.Title.Height),
		)
	}
	return plan, title, nil
}

func (s *ComposeService) rasterizeTitle(ctx context.Context, in ComposeInput, tpl template.Template, width int, dst string) (raster.Result, error) {
	if tpl.Dual && (in.BoldTitle != "" || in.RegularTitle != "") {
		return s.deps.Rasterizer.Dual(ctx, raster.DualStyle{
			FirstText:   in.BoldTitle,
			SecondText:  in.RegularTitle,
			Width:       width,
			FontSize:    in.TitleFontSize,
			FirstColor:  tpl.BoldColor,
			SecondColor: tpl.RegularColor,
			Family:      orDefault(in.TitleFont, tpl.Title.Family),
			Swapped:     in.TitleSwapped,
		}, dst)
	}

	text := in.Title
	if strings.TrimSpace(text) == "" {
		text = strings.TrimSpace(in.BoldTitle + " " + in.RegularTitle)
	}
	font := tpl.Title.Spec(in.TitleItalic)
	if in.TitleFont != "" {
		font.Family = in.TitleFont
	}
	if in.TitleBold {
		font.Weight = raster.WeightBold
	}
	return s.deps.Rasterizer.Text(ctx, raster.Style{
		Text:     text,
		Width:    width,
		FontSize: in.TitleFontSize,
		Color:    in.TitleColor,
		Font:     font,
		Align:    raster.AlignCenter,
	}, dst)
}

// rasterizeOverlays renders the credit, watermark and captions in
// parallel into comp.
func (s *ComposeService) rasterizeOverlays(ctx context.Context, in ComposeInput, tpl template.Template, workdir string, comp *graph.Composition) error {
	plan := comp.Plan
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		text := ""
		if c := strings.TrimSpace(in.Credit); c != "" {
			text = "Credit: " + c
		}
		res, err := s.deps.Rasterizer.Text(gctx, raster.Style{
			Text:     text,
			Width:    plan.Credit.Width,
			FontSize: CreditDrawFontSize,
			Color:    in.CreditColor,
			Font:     tpl.Credit.Spec(false),
			Align:    raster.AlignLeft,
		}, filepath.Join(workdir, "credit.png"))
		if err != nil {
			return fmt.Errorf("credit: %w", err)
		}
		comp.Credit = bitmap(res)
		return nil
	})

	if handle := watermarkHandle(in, tpl); handle != "" {
		g.Go(func() error {
			res, err := s.deps.Rasterizer.Text(gctx, raster.Style{
				Text:     "@" + handle,
				Width:    plan.Watermark.Width,
				FontSize: layout.WatermarkFontSize,
				Color:    "white",
				Font:     raster.FontSpec{Family: "Ebrima"},
				Align:    raster.AlignCenter,
			}, filepath.Join(workdir, "watermark.png"))
			if err != nil {
				return fmt.Errorf("watermark: %w", err)
			}
			b := bitmap(res)
			comp.Watermark = &b
			return nil
		})
	}

	if len(in.Captions) > 0 {
		g.Go(func() error {
			font := tpl.Caption.Spec(false)
			if in.CaptionFont != "" {
				font.Family = in.CaptionFont
			}
			scheduled, err := s.deps.Captions.Schedule(gctx, in.Captions, in.Clip(), plan.Caption, captions.Style{
				FontSize:    plan.CaptionFontSize,
				Color:       in.CaptionColor,
				Font:        font,
				StrokeWidth: CaptionStrokeWidth,
				StrokeColor: in.CaptionStrokeColor,
			}, workdir)
			if err != nil {
				return err
			}
			comp.Captions = make([]graph.TimedBitmap, len(scheduled))
			for i, sc := range scheduled {
				comp.Captions[i] = graph.TimedBitmap{
					Bitmap: graph.Bitmap{Path: sc.Path, Width: plan.Caption.Width, Height: sc.Height},
					Start:  sc.Start,
					End:    sc.End,
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return stageErr(StageRasterize, err)
	}
	return nil
}

func watermarkHandle(in ComposeInput, tpl template.Template) string {
	switch in.Watermark {
	case "-":
		return ""
	case "":
		return tpl.Watermark
	default:
		return in.Watermark
	}
}

// probe logs what the fetched file looks like. It never fails the request:
// the renderer reports unusable sources itself.
func (s *ComposeService) probe(ctx context.Context, logger *slog.Logger, fetched fetch.Result, in ComposeInput) {
	if s.deps.Media == nil {
		return
	}
	info, err := s.deps.Media.Probe(ctx, fetched.Path)
	if err != nil {
		logger.Warn("probe failed", slog.String("error", err.Error()))
		return
	}
	logger.Info("source fetched",
		slog.String("fetcher", fetched.Fetcher),
		slog.Float64("duration", info.Duration),
		slog.Bool("has_audio", info.HasAudio),
		slog.Int("width", info.Width),
		slog.Int("height", info.Height),
	)
	if info.Duration > 0 && in.End-fetched.StartOffset > info.Duration+1 {
		logger.Warn("clip extends past the end of the source",
			slog.Float64("clip_end", in.End),
			slog.Float64("source_duration", info.Duration+fetched.StartOffset),
		)
	}
}

func (s *ComposeService) dispatch(ctx context.Context, job graph.Job, workdir string, progress func(float64)) (render.Outcome, error) {
	dctx := ctx
	if s.renderTimeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, s.renderTimeout)
		defer cancel()
	}
	outcome, err := s.deps.Dispatcher.Dispatch(dctx, job, workdir, progress)
	if err == nil {
		return outcome, nil
	}
	if ctx.Err() == nil && errors.Is(dctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w after %s: %w", ErrRenderTimeout, s.renderTimeout, err)
	}
	return outcome, &StageError{Stage: StageRender, Diagnostic: outcome.Diagnostic, Err: err}
}

// validate checks in and that some fetcher can reach its source.
func (s *ComposeService) validate(in ComposeInput) error {
	if err := in.Validate(); err != nil {
		return err
	}
	if !s.deps.Fetcher.Supports(in.SourceURL) {
		return fmt.Errorf("%w: unsupported source url", ErrInvalidInput)
	}
	return nil
}

func (s *ComposeService) releaseWorkdir(dir string) {
	if err := s.deps.Storage.RemoveWorkdir(dir); err != nil {
		s.logger.Warn("failed to remove workdir",
			slog.String("workdir", dir),
			slog.String("error", err.Error()),
		)
	}
}

func bitmap(r raster.Result) graph.Bitmap {
	return graph.Bitmap{Path: r.Path, Width: r.Width, Height: r.Height}
}
