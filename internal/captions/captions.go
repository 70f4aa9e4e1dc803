// Package captions turns timed caption records into clip-relative,
// rasterized overlays, and provides SRT import and timing diagnostics.
package captions

import (
	"github.com/maauso/clipforge-api/internal/timecode"
)

// Caption is a timed text record with absolute source timestamps.
type Caption struct {
	Start string `json:"start" validate:"required,timestamp" jsonschema:"description=Absolute start in HH:MM:SS.mmm"`
	End   string `json:"end" validate:"required,timestamp" jsonschema:"description=Absolute end in HH:MM:SS.mmm"`
	Text  string `json:"text" validate:"required"`
}

// Clip is the selected source range in seconds.
type Clip struct {
	Start float64 `json:"startTime"`
	End   float64 `json:"endTime"`
}

// Duration returns the output length of the clip.
func (c Clip) Duration() float64 {
	return c.End - c.Start
}

// Window is a caption placed on the output timeline.
type Window struct {
	// Index is the caption's position in the input list.
	Index int     `json:"index"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Normalize converts captions to clip-relative windows. Windows are clamped
// to [0, clip duration]; captions left with no positive duration after
// clamping are dropped. Input order is preserved and overlaps are kept.
func Normalize(captions []Caption, clip Clip) []Window {
	d := clip.Duration()
	out := make([]Window, 0, len(captions))
	for i, c := range captions {
		start := max(0, timecode.Parse(c.Start)-clip.Start)
		end := min(d, timecode.Parse(c.End)-clip.Start)
		if end <= start {
			continue
		}
		out = append(out, Window{Index: i, Start: start, End: end, Text: c.Text})
	}
	return out
}
