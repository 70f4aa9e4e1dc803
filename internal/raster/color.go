package raster

import (
	"errors"
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// ErrInvalidColor is returned for colors that are neither hex nor a known name.
var ErrInvalidColor = errors.New("invalid color")

var namedColors = map[string]color.NRGBA{
	"transparent": {0, 0, 0, 0},
	"white":       {255, 255, 255, 255},
	"black":       {0, 0, 0, 255},
	"red":         {255, 0, 0, 255},
	"green":       {0, 128, 0, 255},
	"blue":        {0, 0, 255, 255},
	"yellow":      {255, 255, 0, 255},
	"orange":      {255, 165, 0, 255},
	"gray":        {128, 128, 128, 255},
	"grey":        {128, 128, 128, 255},
	"navy":        {0, 0, 128, 255},
	"purple":      {128, 0, 128, 255},
}

// ParseColor accepts CSS-style colors: #RGB, #RRGGBB, #RRGGBBAA, 0xRRGGBB
// and a small set of names.
func ParseColor(s string) (color.NRGBA, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if c, ok := namedColors[v]; ok {
		return c, nil
	}

	switch {
	case strings.HasPrefix(v, "#"):
		v = v[1:]
	case strings.HasPrefix(v, "0x"):
		v = v[2:]
	default:
		return color.NRGBA{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}

	if len(v) == 3 {
		v = string([]byte{v[0], v[0], v[1], v[1], v[2], v[2]})
	}
	if len(v) == 6 {
		v += "ff"
	}
	if len(v) != 8 {
		return color.NRGBA{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}

	n, err := strconv.ParseUint(v, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	return color.NRGBA{R: uint8(n >> 24), G: uint8(n >> 16), B: uint8(n >> 8), A: uint8(n)}, nil
}

// MustColor is ParseColor with a fallback for invalid input.
func MustColor(s string, fallback color.NRGBA) color.NRGBA {
	c, err := ParseColor(s)
	if err != nil {
		return fallback
	}
	return c
}

// FFmpegColor renders c in the 0xRRGGBB[AA] form understood by lavfi sources.
func FFmpegColor(c color.NRGBA) string {
	if c.A == 255 {
		return fmt.Sprintf("0x%02X%02X%02X", c.R, c.G, c.B)
	}
	return fmt.Sprintf("0x%02X%02X%02X%02X", c.R, c.G, c.B, c.A)
}
