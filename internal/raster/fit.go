package raster

import "strings"

// Fitting constants.
const (
	DefaultFontSize      = 40
	MinFontSize          = 16
	FontStep             = 4
	LineHeightFactor     = 1.6
	BaselineOffsetFactor = 0.8
	AlignInset           = 20
	MaxTextLength        = 50000

	// DefaultPadding surrounds every bitmap when a style leaves Padding
	// at zero. NoPadding removes it.
	DefaultPadding = 25
	NoPadding      = -1

	// headroomFactor is the least vertical padding, as a share of the font
	// size, that keeps accented capitals inside the bitmap.
	headroomFactor = 0.3
)

// MeasureFunc returns the pixel width of s drawn from text block `block`
// at the given font size.
type MeasureFunc func(block int, s string, size int) int

// Fit is the outcome of the shrink-and-wrap loop.
type Fit struct {
	// Blocks holds the wrapped lines of each input text, in input order.
	Blocks     [][]string
	FontSize   int
	Iterations int
	// Overflow is set when a line is still wider than the limit at the
	// final size, e.g. an unbreakable word at the minimum font size.
	Overflow bool
}

// LineCount returns the number of lines over all blocks.
func (f Fit) LineCount() int {
	n := 0
	for _, b := range f.Blocks {
		n += len(b)
	}
	return n
}

// MaxIterations is the bound on FitLines iterations for a font size hint.
func MaxIterations(hint int) int {
	if hint <= MinFontSize {
		return 1
	}
	return (hint-MinFontSize+FontStep-1)/FontStep + 1
}

// FitLines wraps every block at a shared font size, shrinking the size by
// FontStep until all lines fit maxWidth or MinFontSize is reached. A hint
// below the minimum is used as is.
func FitLines(blocks []string, maxWidth, hint int, measure MeasureFunc) Fit {
	if hint <= 0 {
		hint = DefaultFontSize
	}
	size := hint

	for it := 1; ; it++ {
		wrapped := make([][]string, len(blocks))
		fits := true
		for i, text := range blocks {
			wrapped[i] = wrap(text, maxWidth, func(s string) int { return measure(i, s, size) })
			for _, line := range wrapped[i] {
				if measure(i, line, size) > maxWidth {
					fits = false
				}
			}
		}

		if fits || size <= MinFontSize {
			return Fit{Blocks: wrapped, FontSize: size, Iterations: it, Overflow: !fits}
		}
		size = max(MinFontSize, size-FontStep)
	}
}

// wrap greedily packs words into lines no wider than maxWidth. A word that
// is wider than maxWidth on its own gets a line of its own. Blank text
// yields no lines.
func wrap(text string, maxWidth int, width func(string) int) []string {
	var lines []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			continue
		}
		current := words[0]
		for _, w := range words[1:] {
			candidate := current + " " + w
			if width(candidate) > maxWidth {
				lines = append(lines, current)
				current = w
				continue
			}
			current = candidate
		}
		lines = append(lines, current)
	}
	return lines
}
