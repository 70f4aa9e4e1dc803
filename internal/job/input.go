package job

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/maauso/clipforge-api/internal/captions"
	"github.com/maauso/clipforge-api/internal/graph"
	"github.com/maauso/clipforge-api/internal/layout"
)

// Defaults applied to empty ComposeInput fields.
const (
	DefaultAspect         = layout.DefaultAspectRatio
	DefaultTitleFontSize  = 35
	DefaultCreditFontSize = 30
	DefaultClipSeconds    = 30
	CreditDrawFontSize    = 24
	CaptionStrokeWidth    = 2.0
)

// ErrInvalidInput is returned for requests that cannot be rendered.
var ErrInvalidInput = errors.New("invalid compose input")

// ComposeInput is one clip request. Times are absolute source seconds.
type ComposeInput struct {
	SourceURL string             `json:"sourceUrl"`
	Start     float64            `json:"startTime"`
	End       float64            `json:"endTime"`
	Captions  []captions.Caption `json:"captions,omitempty"`
	Aspect    layout.AspectRatio `json:"aspectRatio"`
	Template  string             `json:"template,omitempty"`

	// Title is the single-style title. BoldTitle and RegularTitle replace
	// it on dual templates.
	Title         string `json:"title,omitempty"`
	BoldTitle     string `json:"boldTitle,omitempty"`
	RegularTitle  string `json:"regularTitle,omitempty"`
	TitleSwapped  bool   `json:"titleSwapped,omitempty"`
	TitleColor    string `json:"titleColor,omitempty"`
	TitleFont     string `json:"titleFont,omitempty"`
	TitleFontSize int    `json:"titleFontSize,omitempty"`
	TitleBold     bool   `json:"titleBold,omitempty"`
	TitleItalic   bool   `json:"titleItalic,omitempty"`

	Credit         string `json:"credit,omitempty"`
	CreditColor    string `json:"creditColor,omitempty"`
	CreditFontSize int    `json:"creditFontSize,omitempty"`

	CaptionColor       string `json:"captionColor,omitempty"`
	CaptionFont        string `json:"captionFont,omitempty"`
	CaptionStrokeColor string `json:"captionStrokeColor,omitempty"`

	Background string `json:"canvasBackgroundColor,omitempty"`
	// Watermark overrides the template handle. "-" disables the watermark.
	Watermark string `json:"watermark,omitempty"`

	TitlePosition   *layout.Point `json:"titlePosition,omitempty"`
	CaptionPosition *layout.Point `json:"captionPosition,omitempty"`
	CreditPosition  *layout.Point `json:"creditPosition,omitempty"`

	// Preset is the x264 preset; empty uses the service default.
	Preset string `json:"preset,omitempty"`
}

// Validate checks the fields that have no safe default.
func (in ComposeInput) Validate() error {
	if strings.TrimSpace(in.SourceURL) == "" {
		return fmt.Errorf("%w: source url is required", ErrInvalidInput)
	}
	if in.Start < 0 {
		return fmt.Errorf("%w: start %.3f is negative", ErrInvalidInput, in.Start)
	}
	if in.End <= in.Start {
		return fmt.Errorf("%w: end %.3f is not after start %.3f", ErrInvalidInput, in.End, in.Start)
	}
	if in.Preset != "" && !graph.ValidPreset(in.Preset) {
		return fmt.Errorf("%w: unknown x264 preset %q", ErrInvalidInput, in.Preset)
	}
	if in.Aspect != "" {
		if _, err := layout.ParseAspectRatio(string(in.Aspect)); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
	}
	return nil
}

// Clip returns the selected source range.
func (in ComposeInput) Clip() captions.Clip {
	return captions.Clip{Start: in.Start, End: in.End}
}

// HasTitle reports whether any title text was supplied.
func (in ComposeInput) HasTitle() bool {
	return strings.TrimSpace(in.Title+in.BoldTitle+in.RegularTitle) != ""
}

func (in ComposeInput) withDefaults() ComposeInput {
	if in.Aspect == "" {
		in.Aspect = DefaultAspect
	}
	if in.TitleFontSize <= 0 {
		in.TitleFontSize = DefaultTitleFontSize
	}
	if in.CreditFontSize <= 0 {
		in.CreditFontSize = DefaultCreditFontSize
	}
	in.TitleColor = orDefault(in.TitleColor, "white")
	in.CreditColor = orDefault(in.CreditColor, "white")
	in.CaptionColor = orDefault(in.CaptionColor, "white")
	in.CaptionStrokeColor = orDefault(in.CaptionStrokeColor, "black")
	in.Background = orDefault(in.Background, "black")
	in.Watermark = strings.TrimPrefix(strings.TrimSpace(in.Watermark), "@")
	return in
}

func (in ComposeInput) clone() ComposeInput {
	in.Captions = slices.Clone(in.Captions)
	in.TitlePosition = clonePoint(in.TitlePosition)
	in.CaptionPosition = clonePoint(in.CaptionPosition)
	in.CreditPosition = clonePoint(in.CreditPosition)
	return in
}

func clonePoint(p *layout.Point) *layout.Point {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
