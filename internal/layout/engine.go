package layout

import (
	"fmt"
	"math"
)

// Band and spacing constants, as fractions of the canvas or in pixels.
const (
	TopBandFraction     = 0.37
	BottomBandFraction  = 0.16
	MinTopBandFraction  = 0.28
	MinVideoFraction    = 0.20
	VideoWidthFraction  = 0.9
	TitleWidthFraction  = 0.85
	MinGapPx            = 180
	GapFactor           = 0.7
	FixedMarginPx       = 80
	SafetyMarginPx      = 30
	CreditOffsetPx      = 5
	CreditHeightFactor  = 1.2
	CaptionVideoWidth   = 0.8
	CaptionCanvasWidth  = 0.7
	CaptionVideoHeight  = 0.2
	CaptionCanvasHeight = 0.1
	CaptionBottomPx     = 40
	CaptionInsetX       = 20
	CaptionInsetY       = 30
	MinCaptionFontSize  = 28
	CaptionFontFraction = 0.05
	WatermarkWidth      = 300
	WatermarkFontSize   = 24
	WatermarkOffset     = 0.08
)

// Source video frame ratio: width:height = 16:9.
const (
	videoRatioW = 16
	videoRatioH = 9
)

// Options tunes a layout computation.
type Options struct {
	// TitleFontSize is the title hint used for the tentative title height.
	TitleFontSize int
	// CreditFontSize sizes the credit band.
	CreditFontSize int
	// Title, Caption and Credit move the corresponding rectangle to a
	// user-chosen position. The caption override is still forced inside
	// the video rectangle.
	Title   *Point
	Caption *Point
	Credit  *Point
}

func (o Options) withDefaults() Options {
	if o.TitleFontSize <= 0 {
		o.TitleFontSize = 35
	}
	if o.CreditFontSize <= 0 {
		o.CreditFontSize = 30
	}
	return o
}

// Plan is the geometry of one render. Plans are values; a new plan is
// computed for each pass instead of mutating a previous one.
type Plan struct {
	Aspect          AspectRatio `json:"aspectRatio"`
	Canvas          Size        `json:"canvas"`
	Video           Rect        `json:"video"`
	Title           Rect        `json:"title"`
	Caption         Rect        `json:"caption"`
	Credit          Rect        `json:"credit"`
	Watermark       Rect        `json:"watermark"`
	TopBand         int         `json:"topBand"`
	Gap             int         `json:"gap"`
	CaptionFontSize int         `json:"captionFontSize"`
	// TitleClipped is set when the title block is taller than the room
	// above the video and its rectangle was cut at the canvas top.
	TitleClipped bool `json:"titleClipped"`
	Final        bool `json:"final"`
}

// Tentative computes the first-pass plan from the font size hint alone.
// Its title width is what the title must be rasterized against.
func Tentative(aspect AspectRatio, opts Options) (Plan, error) {
	opts = opts.withDefaults()
	canvas, err := aspect.Canvas()
	if err != nil {
		return Plan{}, err
	}
	titleHeight := int(math.Ceil(float64(opts.TitleFontSize) * CreditHeightFactor))
	return compute(aspect, canvas, frac(canvas.Height, TopBandFraction), titleHeight, MinGapPx, opts, false)
}

// Final computes the second-pass plan from the rasterized title height.
// The top band grows to hold the title plus a gap proportional to it.
func Final(aspect AspectRatio, titleHeight int, opts Options) (Plan, error) {
	opts = opts.withDefaults()
	canvas, err := aspect.Canvas()
	if err != nil {
		return Plan{}, err
	}
	if titleHeight < 0 {
		titleHeight = 0
	}
	gap := max(MinGapPx, int(float64(titleHeight)*GapFactor))
	top := max(frac(canvas.Height, MinTopBandFraction), titleHeight+gap+FixedMarginPx)
	return compute(aspect, canvas, top, titleHeight, gap, opts, true)
}

func compute(aspect AspectRatio, canvas Size, top, titleHeight, gap int, opts Options, final bool) (Plan, error) {
	bottom := frac(canvas.Height, BottomBandFraction)
	maxTop := canvas.Height - bottom - frac(canvas.Height, MinVideoFraction)
	if top > maxTop {
		top = maxTop
	}

	video, err := fitVideo(canvas, top, bottom)
	if err != nil {
		return Plan{}, err
	}

	p := Plan{
		Aspect:  aspect,
		Canvas:  canvas,
		Video:   video,
		TopBand: top,
		Final:   final,
	}
	p.Title, p.Gap, p.TitleClipped = placeTitle(canvas, video, titleHeight, gap)
	p.Credit = placeCredit(canvas, video, opts.CreditFontSize)
	p.Caption = placeCaption(canvas, video)
	p.Watermark = placeWatermark(canvas, video)
	p.CaptionFontSize = max(MinCaptionFontSize, int(float64(video.Height)*CaptionFontFraction))

	if opts.Title != nil {
		p.Title = moveWithin(p.Title, *opts.Title, canvas)
	}
	if opts.Credit != nil {
		p.Credit = moveWithin(p.Credit, *opts.Credit, canvas)
	}
	if opts.Caption != nil {
		c := p.Caption
		c.X, c.Y = opts.Caption.X, opts.Caption.Y
		p.Caption = ContainCaption(c, video)
	}
	return p, nil
}

// fitVideo fits a 16:9 frame into the band between top and bottom,
// centered horizontally and vertically within the band.
func fitVideo(canvas Size, top, bottom int) (Rect, error) {
	avail := canvas.Height - top - bottom
	w := frac(canvas.Width, VideoWidthFraction)
	h := w * videoRatioH / videoRatioW
	if h > avail {
		h = avail
		w = h * videoRatioW / videoRatioH
	}
	if w <= 0 || h <= 0 {
		return Rect{}, fmt.Errorf("%w: %dx%d in canvas %dx%d", ErrInvalidLayout, w, h, canvas.Width, canvas.Height)
	}
	return Rect{
		X:      (canvas.Width - w) / 2,
		Y:      top + (avail-h)/2,
		Width:  w,
		Height: h,
	}, nil
}

// placeTitle puts the title above the video, separated by gap plus the
// safety margin. When there is not enough room the gap shrinks first and
// the rectangle is clipped at the canvas top last; the safety margin is
// never given up.
func placeTitle(canvas Size, video Rect, height, gap int) (Rect, int, bool) {
	width := min(video.Width, frac(canvas.Width, TitleWidthFraction))
	y := video.Y - height - gap - SafetyMarginPx
	clipped := false
	if y < 0 {
		gap = max(0, video.Y-SafetyMarginPx-height)
		y = video.Y - height - gap - SafetyMarginPx
	}
	if y < 0 {
		y = 0
		height = max(0, video.Y-SafetyMarginPx)
		clipped = true
	}
	return Rect{
		X:      (canvas.Width - width) / 2,
		Y:      y,
		Width:  width,
		Height: height,
	}, gap, clipped
}

func placeCredit(canvas Size, video Rect, fontSize int) Rect {
	h := int(math.Ceil(float64(fontSize) * CreditHeightFactor))
	y := video.Bottom() + CreditOffsetPx
	h = min(h, max(0, canvas.Height-y))
	return Rect{X: 0, Y: y, Width: canvas.Width, Height: h}
}

func placeCaption(canvas Size, video Rect) Rect {
	w := min(frac(video.Width, CaptionVideoWidth), frac(canvas.Width, CaptionCanvasWidth))
	h := min(frac(video.Height, CaptionVideoHeight), frac(canvas.Height, CaptionCanvasHeight))
	return ContainCaption(Rect{
		X:      (canvas.Width - w) / 2,
		Y:      video.Bottom() - h - CaptionBottomPx,
		Width:  w,
		Height: h,
	}, video)
}

// ContainCaption forces c inside video with the caption insets, shrinking
// it when it does not fit. Insets are dropped for frames too small to
// hold them.
func ContainCaption(c, video Rect) Rect {
	insetX, insetY := CaptionInsetX, CaptionInsetY
	if video.Width <= 2*insetX {
		insetX = 0
	}
	if video.Height <= 2*insetY {
		insetY = 0
	}
	c.Width = clamp(c.Width, 1, video.Width-2*insetX)
	c.Height = clamp(c.Height, 1, video.Height-2*insetY)
	c.X = clamp(c.X, video.X+insetX, video.Right()-c.Width-insetX)
	c.Y = clamp(c.Y, video.Y+insetY, video.Bottom()-c.Height-insetY)
	return c
}

func placeWatermark(canvas Size, video Rect) Rect {
	w := min(WatermarkWidth, canvas.Width)
	h := int(math.Ceil(WatermarkFontSize * 1.6))
	return Rect{
		X:      (canvas.Width - w) / 2,
		Y:      video.Bottom() - int(math.Floor(float64(video.Height)*WatermarkOffset)),
		Width:  w,
		Height: h,
	}
}

func moveWithin(r Rect, to Point, canvas Size) Rect {
	r.X = clamp(to.X, 0, canvas.Width-r.Width)
	r.Y = clamp(to.Y, 0, canvas.Height-r.Height)
	return r
}
