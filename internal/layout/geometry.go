// Package layout computes canvas size, video placement and the text block
// rectangles of a composed clip.
package layout

import (
	"errors"
	"fmt"
	"strings"
)

// Static errors for layout computation.
var (
	// ErrUnsupportedAspectRatio is returned for ratios outside the canvas table.
	ErrUnsupportedAspectRatio = errors.New("unsupported aspect ratio")
	// ErrInvalidLayout is returned when the video rectangle would have a non-positive size.
	ErrInvalidLayout = errors.New("invalid layout: video rectangle has no area")
)

// Size is a canvas resolution in pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Point is an absolute canvas position.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Rect is an axis-aligned region in canvas pixel coordinates.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Right returns the exclusive right edge.
func (r Rect) Right() int { return r.X + r.Width }

// Bottom returns the exclusive bottom edge.
func (r Rect) Bottom() int { return r.Y + r.Height }

// Contains reports whether o lies entirely inside r.
func (r Rect) Contains(o Rect) bool {
	return o.X >= r.X && o.Y >= r.Y && o.Right() <= r.Right() && o.Bottom() <= r.Bottom()
}

// Within reports whether r lies inside a canvas of the given size.
func (r Rect) Within(s Size) bool {
	return r.X >= 0 && r.Y >= 0 && r.Right() <= s.Width && r.Bottom() <= s.Height
}

// AspectRatio identifies one of the supported output frame shapes.
type AspectRatio string

// Supported aspect ratios.
const (
	Ratio9x16 AspectRatio = "9:16"
	Ratio16x9 AspectRatio = "16:9"
	Ratio1x1  AspectRatio = "1:1"
	Ratio4x5  AspectRatio = "4:5"
	Ratio3x4  AspectRatio = "3:4"
)

// DefaultAspectRatio is used when a request does not name one.
const DefaultAspectRatio = Ratio9x16

// canvasTable holds the output resolution chosen for each ratio.
var canvasTable = map[AspectRatio]Size{
	Ratio9x16: {Width: 1440, Height: 2560},
	Ratio16x9: {Width: 2560, Height: 1440},
	Ratio1x1:  {Width: 1440, Height: 1440},
	Ratio4x5:  {Width: 1440, Height: 1800},
	Ratio3x4:  {Width: 1440, Height: 1920},
}

// AspectRatios lists the supported ratios in a stable order.
func AspectRatios() []AspectRatio {
	return []AspectRatio{Ratio9x16, Ratio16x9, Ratio1x1, Ratio4x5, Ratio3x4}
}

// ParseAspectRatio validates s. An empty string yields DefaultAspectRatio.
func ParseAspectRatio(s string) (AspectRatio, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultAspectRatio, nil
	}
	a := AspectRatio(s)
	if _, ok := canvasTable[a]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAspectRatio, s)
	}
	return a, nil
}

// Canvas returns the fixed output resolution for a.
func (a AspectRatio) Canvas() (Size, error) {
	s, ok := canvasTable[a]
	if !ok {
		return Size{}, fmt.Errorf("%w: %q", ErrUnsupportedAspectRatio, string(a))
	}
	return s, nil
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func frac(n int, f float64) int {
	return int(float64(n) * f)
}
