// Package media inspects source videos and extracts audio tracks.
package media

import "context"

// Info describes a probed media file.
type Info struct {
	Duration float64 `json:"duration"`
	HasAudio bool    `json:"hasAudio"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
}

// Processor defines the media operations used around a render.
type Processor interface {
	// Probe reads container and stream metadata.
	Probe(ctx context.Context, path string) (Info, error)

	// ExtractAudio writes the audio of src between start and start+duration
	// to dst as MP3. A non-positive duration extracts to the end.
	ExtractAudio(ctx context.Context, src, dst string, start, duration float64) error
}
