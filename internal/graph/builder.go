package graph

import (
	"errors"
	"fmt"
	"slices"

	"github.com/maauso/clipforge-api/internal/layout"
)

// Stream names produced by Build.
const (
	StreamProcessedVideo = "processed_video"
	StreamBackground     = "bg"
	StreamBase           = "base"
	StreamTitleFit       = "title_fit"
	StreamWithTitle      = "with_title"
	StreamWithCredits    = "with_credits"
	StreamWithCaptions   = "with_captions"
	StreamFinal          = "final_output"
)

// Fixed input positions. Captions follow the watermark when one is present.
const (
	InputVideo     = 0
	InputTitle     = 1
	InputCredit    = 2
	InputWatermark = 3
)

// DefaultPreset is the x264 preset used when a Composition leaves it empty.
const DefaultPreset = "veryslow"

// Presets lists the x264 presets from fastest to slowest.
var Presets = []string{"ultrafast", "superfast", "veryfast", "faster", "fast", "medium", "slow", "slower", "veryslow", "placebo"}

// ValidPreset reports whether p is an x264 preset.
func ValidPreset(p string) bool {
	return slices.Contains(Presets, p)
}

// ErrInvalidComposition is returned by Build for unusable input.
var ErrInvalidComposition = errors.New("invalid composition")

// Bitmap is a rasterized image and its pixel size.
type Bitmap struct {
	Path   string
	Width  int
	Height int
}

// TimedBitmap is a caption bitmap visible during [Start, End] seconds of the
// output timeline.
type TimedBitmap struct {
	Bitmap
	Start float64
	End   float64
}

// Composition is everything needed to build a Job.
type Composition struct {
	VideoPath string
	// ClipStart and Duration trim the source video.
	ClipStart float64
	Duration  float64
	Plan      layout.Plan
	// Background is an ffmpeg color expression. Defaults to black.
	Background string
	Title      Bitmap
	Credit     Bitmap
	Watermark  *Bitmap
	Captions   []TimedBitmap
	OutputPath string
	Preset     string
}

// Builder accumulates inputs and stages. Each Then call consumes the
// stream produced by the previous one.
type Builder struct {
	inputs  []Input
	stages  []Stage
	current string
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Input registers an input and returns its video stream reference.
func (b *Builder) Input(path string, options ...string) string {
	b.inputs = append(b.inputs, Input{Path: path, Options: options})
	return fmt.Sprintf("%d:v", len(b.inputs)-1)
}

// Source adds a stage that does not consume the current stream and makes
// its output current.
func (b *Builder) Source(consumes []string, produces, op, params string, then ...Filter) *Builder {
	b.stages = append(b.stages, Stage{Consumes: consumes, Produces: produces, Op: op, Params: params, Then: then})
	b.current = produces
	return b
}

// Then adds a stage consuming the current stream followed by extra.
func (b *Builder) Then(produces, op, params string, extra ...string) *Builder {
	consumes := append([]string{b.current}, extra...)
	return b.Source(consumes, produces, op, params)
}

// Side adds a stage that leaves the current stream unchanged, for helper
// streams consumed later.
func (b *Builder) Side(consumes []string, produces, op, params string, then ...Filter) *Builder {
	cur := b.current
	b.Source(consumes, produces, op, params, then...)
	b.current = cur
	return b
}

// Current returns the name of the last produced main stream.
func (b *Builder) Current() string {
	return b.current
}

// Job finalizes the builder.
func (b *Builder) Job(outputPath string, outputOptions []string, duration float64) Job {
	return Job{
		Inputs:        b.inputs,
		Stages:        b.stages,
		OutputStream:  b.current,
		OutputOptions: outputOptions,
		OutputPath:    outputPath,
		Duration:      duration,
	}
}

// Build assembles the compositing job: scale and crop the source, paint
// the background, then overlay video, title, credit, each caption gated by
// its window, and the watermark. Inputs are registered as video, title,
// credit, watermark if any, then one per caption. The job is validated
// before it is returned.
func Build(c Composition) (Job, error) {
	if err := c.check(); err != nil {
		return Job{}, err
	}
	p := c.Plan
	v := p.Video

	b := NewBuilder()
	video := b.Input(c.VideoPath,
		"-ss", Seconds(c.ClipStart),
		"-t", Seconds(c.Duration),
		"-avoid_negative_ts", "make_zero",
	)
	title := b.Input(c.Title.Path)
	credit := b.Input(c.Credit.Path)
	var watermark string
	if c.Watermark != nil {
		watermark = b.Input(c.Watermark.Path)
	}
	captionRefs := make([]string, len(c.Captions))
	for i, cp := range c.Captions {
		captionRefs[i] = b.Input(cp.Path)
	}

	b.Side([]string{video}, StreamProcessedVideo, "scale",
		fmt.Sprintf("%d:%d:force_original_aspect_ratio=increase:flags=lanczos+accurate_rnd+full_chroma_int+full_chroma_inp:param0=1.5:param1=1.5", v.Width, v.Height),
		Filter{Name: "crop", Params: fmt.Sprintf("%d:%d", v.Width, v.Height)},
		Filter{Name: "setsar", Params: "1:1"},
	)
	b.Source(nil, StreamBackground, "color",
		fmt.Sprintf("c=%s:s=%dx%d:d=%s", orDefault(c.Background, "black"), p.Canvas.Width, p.Canvas.Height, Seconds(c.Duration)))
	b.Then(StreamBase, "overlay", fmt.Sprintf("%d:%d", v.X, v.Y), StreamProcessedVideo)

	if c.Title.Width > p.Title.Width || c.Title.Height > p.Title.Height {
		w := min(c.Title.Width, p.Title.Width)
		h := min(c.Title.Height, p.Title.Height)
		// Keep the bottom of the block: a clipped title loses its top.
		b.Side([]string{title}, StreamTitleFit, "crop", fmt.Sprintf("%d:%d:(iw-%d)/2:ih-%d", w, h, w, h))
		title = StreamTitleFit
	}
	b.Then(StreamWithTitle, "overlay", fmt.Sprintf("%d:%d", p.Title.X, p.Title.Y), title)
	b.Then(StreamWithCredits, "overlay", fmt.Sprintf("%d:%d", p.Credit.X, p.Credit.Y), credit)

	if len(c.Captions) == 0 {
		b.Then(StreamWithCaptions, "null", "")
	}
	for i, cp := range c.Captions {
		x, y := captionOrigin(p, cp.Bitmap)
		next := fmt.Sprintf("with_caption_%d", i)
		if i == len(c.Captions)-1 {
			next = StreamWithCaptions
		}
		b.Then(next, "overlay",
			fmt.Sprintf("%d:%d:enable='between(t,%s,%s)'", x, y, Seconds(cp.Start), Seconds(cp.End)),
			captionRefs[i])
	}

	if c.Watermark != nil {
		b.Then(StreamFinal, "overlay", fmt.Sprintf("%d:%d", p.Watermark.X, p.Watermark.Y), watermark)
	} else {
		b.Then(StreamFinal, "null", "")
	}

	job := b.Job(c.OutputPath, OutputOptions(StreamFinal, orDefault(c.Preset, DefaultPreset)), c.Duration)
	if err := job.Validate(); err != nil {
		return Job{}, err
	}
	return job, nil
}

// OutputOptions returns the encoding options for stream. Audio from the
// source is mapped optionally so a silent source still renders.
func OutputOptions(stream, preset string) []string {
	return []string{
		"-map", "[" + stream + "]",
		"-map", "0:a?",
		"-c:a", "aac",
		"-b:a", "192k",
		"-c:v", "libx264",
		"-b:v", "12M",
		"-crf", "16",
		"-preset", preset,
		"-maxrate", "15M",
		"-bufsize", "30M",
		"-pix_fmt", "yuv420p",
		"-profile:v", "high",
		"-level", "4.2",
		"-movflags", "+faststart",
		"-sn",
		"-shortest",
		"-y",
	}
}

// captionOrigin places a caption bitmap at the caption rectangle, moved so
// that it stays inside the video rectangle where it fits.
func captionOrigin(p layout.Plan, bm Bitmap) (int, int) {
	v := p.Video
	x := max(v.X, min(p.Caption.X, v.Right()-bm.Width))
	y := max(v.Y, min(p.Caption.Y, v.Bottom()-bm.Height))
	return x, y
}

func (c Composition) check() error {
	switch {
	case c.VideoPath == "":
		return fmt.Errorf("%w: no source video", ErrInvalidComposition)
	case c.Title.Path == "" || c.Credit.Path == "":
		return fmt.Errorf("%w: title and credit bitmaps are required", ErrInvalidComposition)
	case c.Watermark != nil && c.Watermark.Path == "":
		return fmt.Errorf("%w: watermark without a bitmap", ErrInvalidComposition)
	case c.Duration <= 0:
		return fmt.Errorf("%w: duration %s", ErrInvalidComposition, Seconds(c.Duration))
	case c.ClipStart < 0:
		return fmt.Errorf("%w: negative clip start", ErrInvalidComposition)
	case c.Plan.Video.Width <= 0 || c.Plan.Video.Height <= 0:
		return fmt.Errorf("%w: empty video rectangle", ErrInvalidComposition)
	case c.OutputPath == "":
		return ErrNoOutputPath
	}
	for i, cp := range c.Captions {
		if cp.Path == "" || cp.End <= cp.Start {
			return fmt.Errorf("%w: caption %d", ErrInvalidComposition, i)
		}
	}
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
