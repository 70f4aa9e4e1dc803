// Package raster renders text blocks to transparent PNG bitmaps, shrinking
// and wrapping the text until it fits the requested width.
package raster

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"math"
	"os"
	"sync"
	"unicode/utf8"

	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// ErrInvalidWidth is returned when a bitmap width is not positive.
var ErrInvalidWidth = errors.New("raster: width must be positive")

// maxBitmapSide bounds both bitmap dimensions.
const maxBitmapSide = 32767

// Align controls horizontal placement of each line.
type Align string

// Alignments.
const (
	AlignCenter Align = "center"
	AlignLeft   Align = "left"
	AlignRight  Align = "right"
)

// Style describes a single-color text block. It is never modified.
type Style struct {
	Text        string
	Width       int
	FontSize    int
	Color       string
	Font        FontSpec
	StrokeWidth float64
	StrokeColor string
	Align       Align
	// Padding surrounds the text on every side; see DefaultPadding.
	Padding int
}

// DualStyle describes a two-part title: the first text drawn heavy in
// FirstColor, then the second text drawn light in SecondColor. Swapped
// exchanges weights and colors together.
type DualStyle struct {
	FirstText   string
	SecondText  string
	Width       int
	FontSize    int
	FirstColor  string
	SecondColor string
	Family      string
	Swapped     bool
	Padding     int
}

// Result describes a written bitmap.
type Result struct {
	Path     string `json:"path"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	FontSize int    `json:"fontSize"`
	Lines    int    `json:"lines"`
	Overflow bool   `json:"overflow"`
}

// Rasterizer renders text bitmaps. It is safe for concurrent use.
type Rasterizer struct {
	resolver FontResolver
	logger   *slog.Logger

	mu    sync.Mutex
	fonts map[string]*opentype.Font
}

// New creates a Rasterizer using resolver to locate font files.
func New(resolver FontResolver, logger *slog.Logger) *Rasterizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Rasterizer{
		resolver: resolver,
		logger:   logger,
		fonts:    make(map[string]*opentype.Font),
	}
}

// textLine is one line to draw with its own face and colors.
type textLine struct {
	text string
	face int
	fill color.NRGBA
}

// Text renders a single-style block into dst.
func (r *Rasterizer) Text(ctx context.Context, s Style, dst string) (Result, error) {
	if s.Width <= 0 {
		return Result{}, ErrInvalidWidth
	}
	width := min(s.Width, maxBitmapSide)
	text := truncate(s.Text, MaxTextLength)
	pad := padding(s.Padding, s.StrokeWidth)
	wrap := width - 2*pad
	if s.Align == AlignLeft || s.Align == AlignRight {
		wrap -= AlignInset
	}

	f := r.loadFont(ctx, s.Font)
	m := newMeasurer(f)
	defer m.close()
	fit := FitLines([]string{text}, max(1, wrap), s.FontSize, m.measure)

	fill, err := ParseColor(orDefault(s.Color, "white"))
	if err != nil {
		return Result{}, err
	}
	lines := make([]textLine, 0, fit.LineCount())
	for _, l := range fit.Blocks[0] {
		lines = append(lines, textLine{text: l, fill: fill})
	}
	if len(lines) == 0 {
		lines = append(lines, textLine{text: "", fill: fill})
	}

	var stroke *color.NRGBA
	if s.StrokeWidth > 0 {
		c, err := ParseColor(orDefault(s.StrokeColor, "black"))
		if err != nil {
			return Result{}, err
		}
		stroke = &c
	}

	res, err := r.draw(drawing{
		dst:         dst,
		width:       width,
		padding:     pad,
		size:        fit.FontSize,
		align:       s.Align,
		fonts:       []*opentype.Font{f},
		lines:       lines,
		stroke:      stroke,
		strokeWidth: s.StrokeWidth,
	})
	if err != nil {
		return Result{}, err
	}
	res.Overflow = fit.Overflow
	return res, nil
}

// Dual renders a two-part title into dst. Both parts share one font size
// and shrink together.
func (r *Rasterizer) Dual(ctx context.Context, s DualStyle, dst string) (Result, error) {
	if s.Width <= 0 {
		return Result{}, ErrInvalidWidth
	}
	width := min(s.Width, maxBitmapSide)

	firstWeight, secondWeight := WeightBold, WeightLight
	firstColor, secondColor := orDefault(s.FirstColor, "white"), orDefault(s.SecondColor, "white")
	if s.Swapped {
		firstWeight, secondWeight = secondWeight, firstWeight
		firstColor, secondColor = secondColor, firstColor
	}

	fonts := []*opentype.Font{
		r.loadFont(ctx, FontSpec{Family: s.Family, Weight: firstWeight}),
		r.loadFont(ctx, FontSpec{Family: s.Family, Weight: secondWeight}),
	}
	pad := padding(s.Padding, 0)
	m := newMeasurer(fonts...)
	defer m.close()
	fit := FitLines([]string{s.FirstText, s.SecondText}, max(1, width-2*pad), s.FontSize, m.measure)

	fills := make([]color.NRGBA, 2)
	for i, c := range []string{firstColor, secondColor} {
		parsed, err := ParseColor(c)
		if err != nil {
			return Result{}, err
		}
		fills[i] = parsed
	}

	var lines []textLine
	for block, ls := range fit.Blocks {
		for _, l := range ls {
			lines = append(lines, textLine{text: l, face: block, fill: fills[block]})
		}
	}
	if len(lines) == 0 {
		lines = append(lines, textLine{text: ""})
	}

	res, err := r.draw(drawing{
		dst:     dst,
		width:   width,
		padding: pad,
		size:    fit.FontSize,
		align:   AlignCenter,
		fonts:   fonts,
		lines:   lines,
	})
	if err != nil {
		return Result{}, err
	}
	res.Overflow = fit.Overflow
	return res, nil
}

type drawing struct {
	dst         string
	width       int
	padding     int
	size        int
	align       Align
	fonts       []*opentype.Font
	lines       []textLine
	stroke      *color.NRGBA
	strokeWidth float64
}

// padding resolves a style padding. The result always covers the stroke
// so outlines are never cut at the bitmap edge.
func padding(p int, stroke float64) int {
	switch {
	case p == 0:
		p = DefaultPadding
	case p < 0:
		p = 0
	}
	return max(p, int(math.Ceil(stroke)))
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

// draw lays the lines out top to bottom: the first baseline sits at
// vpad + size*BaselineOffsetFactor and each line advances by
// size*LineHeightFactor, leaving room for descenders. vpad is the padding,
// raised when needed to keep accents and the stroke inside the bitmap.
func (r *Rasterizer) draw(d drawing) (Result, error) {
	lineHeight := float64(d.size) * LineHeightFactor
	vpad := max(d.padding, int(math.Ceil(float64(d.size)*headroomFactor+d.strokeWidth)))
	maxLines := int(float64(maxBitmapSide-2*vpad) / lineHeight)
	lines := d.lines
	if len(lines) > maxLines {
		r.logger.Warn("text truncated to fit bitmap height",
			slog.Int("lines", len(lines)),
			slog.Int("kept", maxLines),
		)
		lines = lines[:maxLines]
	}
	height := int(math.Ceil(float64(len(lines))*lineHeight)) + 2*vpad

	faces := make([]font.Face, len(d.fonts))
	for i, f := range d.fonts {
		face, err := newFace(f, d.size)
		if err != nil {
			return Result{}, err
		}
		defer func() { _ = face.Close() }()
		faces[i] = face
	}

	img := image.NewNRGBA(image.Rect(0, 0, d.width, height))
	offsets := strokeOffsets(d.strokeWidth)

	for i, l := range lines {
		face := faces[l.face]
		lw := font.MeasureString(face, l.text).Ceil()
		var x int
		switch d.align {
		case AlignLeft:
			x = d.padding + AlignInset
		case AlignRight:
			x = d.width - d.padding - AlignInset - lw
		default:
			x = (d.width - lw) / 2
		}
		baseline := float64(vpad) + float64(d.size)*BaselineOffsetFactor + float64(i)*lineHeight

		if d.stroke != nil {
			for _, o := range offsets {
				drawString(img, face, *d.stroke, l.text, x+o.X, baseline+float64(o.Y))
			}
		}
		drawString(img, face, l.fill, l.text, x, baseline)
	}

	if err := writePNG(d.dst, img); err != nil {
		return Result{}, err
	}
	return Result{
		Path:     d.dst,
		Width:    d.width,
		Height:   height,
		FontSize: d.size,
		Lines:    len(lines),
	}, nil
}

func drawString(dst *image.NRGBA, face font.Face, c color.NRGBA, s string, x int, baseline float64) {
	dr := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.Int26_6(baseline * 64)},
	}
	dr.DrawString(s)
}

// strokeOffsets returns the integer offsets of a disc of radius w. Drawing
// the glyphs at every offset produces an outline of line width 2*w.
func strokeOffsets(w float64) []image.Point {
	if w <= 0 {
		return nil
	}
	r := int(math.Ceil(w))
	var pts []image.Point
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			if float64(dx*dx+dy*dy) <= w*w+0.5 {
				pts = append(pts, image.Point{X: dx, Y: dy})
			}
		}
	}
	return pts
}

// measurer caches one face per (block, size) for the duration of a fit.
// It is not safe for concurrent use.
type measurer struct {
	fonts []*opentype.Font
	faces map[[2]int]font.Face
}

func newMeasurer(fonts ...*opentype.Font) *measurer {
	return &measurer{fonts: fonts, faces: make(map[[2]int]font.Face)}
}

func (m *measurer) measure(block int, s string, size int) int {
	key := [2]int{block, size}
	face, ok := m.faces[key]
	if !ok {
		var err error
		face, err = newFace(m.fonts[block], size)
		if err != nil {
			return 0
		}
		m.faces[key] = face
	}
	return font.MeasureString(face, s).Ceil()
}

func (m *measurer) close() {
	for _, f := range m.faces {
		_ = f.Close()
	}
}

func newFace(f *opentype.Font, size int) (font.Face, error) {
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    float64(size),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("raster: create face: %w", err)
	}
	return face, nil
}

// loadFont resolves and parses spec, falling back to the embedded Go font
// when the resolved file cannot be read or parsed.
func (r *Rasterizer) loadFont(ctx context.Context, spec FontSpec) *opentype.Font {
	path := ""
	if r.resolver != nil {
		path = r.resolver.Resolve(ctx, spec)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if path != "" {
		if f, ok := r.fonts[path]; ok {
			return f
		}
		data, err := os.ReadFile(path) // #nosec G304 - path comes from the font resolver
		if err == nil {
			f, perr := opentype.Parse(data)
			if perr == nil {
				r.fonts[path] = f
				return f
			}
			err = perr
		}
		r.logger.Warn("font file unusable, using embedded fallback",
			slog.String("family", spec.Family),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}

	name, data := fallbackTTF(spec)
	key := "embedded:" + name
	if f, ok := r.fonts[key]; ok {
		return f
	}
	f, err := opentype.Parse(data)
	if err != nil {
		// The embedded fonts are known-good.
		panic(fmt.Sprintf("raster: parse embedded font %s: %v", name, err))
	}
	r.fonts[key] = f
	return f
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path) // #nosec G304 - path is inside the request workdir
	if err != nil {
		return fmt.Errorf("raster: create bitmap: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return fmt.Errorf("raster: encode bitmap: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("raster: close bitmap: %w", err)
	}
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
