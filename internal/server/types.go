package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/invopop/jsonschema"

	"github.com/maauso/clipforge-api/internal/captions"
	"github.com/maauso/clipforge-api/internal/job"
	"github.com/maauso/clipforge-api/internal/layout"
	"github.com/maauso/clipforge-api/internal/template"
	"github.com/maauso/clipforge-api/internal/timecode"
)

// Seconds is a source time given as a JSON number, a numeric string or a
// timestamp string. Set records that a non-null value was sent; Valid
// records that it could be read. Unreadable values are reported by
// CheckTimeRange rather than by the decoder so the caller can answer
// with the field name.
type Seconds struct {
	Value float64
	Valid bool
	Set   bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Seconds) UnmarshalJSON(data []byte) error {
	*s = Seconds{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	s.Set = true
	var v float64
	if data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return nil
		}
		parsed, err := timecode.ParseStrict(strings.TrimSpace(str))
		if err != nil {
			return nil
		}
		v = parsed
	} else if err := json.Unmarshal(data, &v); err != nil {
		return nil
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	s.Value, s.Valid = v, true
	return nil
}

// CheckTimeRange rejects a time that was sent but cannot be read, a
// negative start, and an end that is not after the start. Absent times
// are left to the defaults of ToInput.
func CheckTimeRange(start, end Seconds) error {
	if start.Set && !start.Valid {
		return fmt.Errorf("%w: startTime is not a number of seconds or a timestamp", ErrInvalidTimeRange)
	}
	if start.Valid && start.Value < 0 {
		return fmt.Errorf("%w: startTime %g is negative", ErrInvalidTimeRange, start.Value)
	}
	if end.Set && !end.Valid {
		return fmt.Errorf("%w: endTime is not a number of seconds or a timestamp", ErrInvalidTimeRange)
	}
	if end.Valid {
		from := 0.0
		if start.Valid {
			from = start.Value
		}
		if end.Value <= from {
			return fmt.Errorf("%w: endTime %g must be after startTime %g", ErrInvalidTimeRange, end.Value, from)
		}
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (s Seconds) MarshalJSON() ([]byte, error) {
	if !s.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(s.Value)
}

// JSONSchema describes Seconds for the request schema.
func (Seconds) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			{Type: "number", Description: "Seconds into the source video"},
			{Type: "string", Description: "Timestamp such as 00:01:05.250"},
		},
	}
}

// ErrInvalidTimeRange is returned by CheckTimeRange.
var ErrInvalidTimeRange = errors.New("invalid time range")

// GenerateVideoRequest is the body of POST /api/generate-video and
// POST /api/jobs.
type GenerateVideoRequest struct {
	YoutubeURL string             `json:"youtubeUrl" validate:"required" jsonschema:"required,description=Source video URL"`
	StartTime  Seconds            `json:"startTime,omitempty"`
	EndTime    Seconds            `json:"endTime,omitempty"`
	Captions   []captions.Caption `json:"captions,omitempty" validate:"omitempty,dive"`

	Title                   string `json:"title,omitempty"`
	Credit                  string `json:"credit,omitempty"`
	BoldTitleText           string `json:"boldTitleText,omitempty"`
	RegularTitleText        string `json:"regularTitleText,omitempty"`
	BoldText                string `json:"bold_text,omitempty" jsonschema:"description=Alias of boldTitleText"`
	ThinText                string `json:"thin_text,omitempty" jsonschema:"description=Alias of regularTitleText"`
	TitleFontWeightsSwapped bool   `json:"titleFontWeightsSwapped,omitempty"`

	Template    string `json:"template,omitempty" jsonschema:"default=default"`
	AspectRatio string `json:"aspectRatio,omitempty" validate:"omitempty,aspect" jsonschema:"enum=9:16,enum=16:9,enum=1:1,enum=4:5,enum=3:4,default=9:16"`

	TitleFontSize   int    `json:"titleFontSize,omitempty" validate:"omitempty,min=8,max=200" jsonschema:"default=35"`
	TitleColor      string `json:"titleColor,omitempty" validate:"omitempty,clipcolor" jsonschema:"default=white"`
	TitleFontFamily string `json:"titleFontFamily,omitempty"`
	TitleBold       bool   `json:"titleBold,omitempty"`
	TitleItalic     bool   `json:"titleItalic,omitempty"`

	CaptionColor       string `json:"captionColor,omitempty" validate:"omitempty,clipcolor" jsonschema:"default=white"`
	CaptionFontFamily  string `json:"captionFontFamily,omitempty"`
	CaptionStrokeColor string `json:"captionStrokeColor,omitempty" validate:"omitempty,clipcolor" jsonschema:"default=black"`

	CreditFontSize int    `json:"creditFontSize,omitempty" validate:"omitempty,min=8,max=200" jsonschema:"default=30"`
	CreditColor    string `json:"creditColor,omitempty" validate:"omitempty,clipcolor" jsonschema:"default=white"`

	CanvasBackgroundColor string `json:"canvasBackgroundColor,omitempty" validate:"omitempty,clipcolor" jsonschema:"default=black"`
	WatermarkText         string `json:"watermarkText,omitempty" jsonschema:"description=Overrides the template handle; - disables the watermark"`
	Preset                string `json:"preset,omitempty" validate:"omitempty,oneof=ultrafast superfast veryfast faster fast medium slow slower veryslow placebo" jsonschema:"description=x264 preset; empty uses the server default"`

	TitlePosition   *layout.Point `json:"titlePosition,omitempty"`
	CaptionPosition *layout.Point `json:"captionPosition,omitempty"`
	CreditPosition  *layout.Point `json:"creditPosition,omitempty"`
}

// ToInput maps the request onto a compose input. A missing startTime
// becomes 0 and a missing endTime becomes start + 30 seconds. Callers
// reject bad ranges with CheckTimeRange first.
func (r GenerateVideoRequest) ToInput() job.ComposeInput {
	start := 0.0
	if r.StartTime.Valid && r.StartTime.Value >= 0 {
		start = r.StartTime.Value
	}
	end := start + job.DefaultClipSeconds
	if r.EndTime.Valid && r.EndTime.Value > start {
		end = r.EndTime.Value
	}

	aspect := layout.AspectRatio(r.AspectRatio)
	if aspect == "" {
		aspect = job.DefaultAspect
	}
	name := r.Template
	if name == "" {
		name = template.DefaultName
	}

	return job.ComposeInput{
		SourceURL:          strings.TrimSpace(r.YoutubeURL),
		Start:              start,
		End:                end,
		Captions:           r.Captions,
		Aspect:             aspect,
		Template:           name,
		Title:              r.Title,
		BoldTitle:          firstNonEmpty(r.BoldTitleText, r.BoldText),
		RegularTitle:       firstNonEmpty(r.RegularTitleText, r.ThinText),
		TitleSwapped:       r.TitleFontWeightsSwapped,
		TitleColor:         r.TitleColor,
		TitleFont:          r.TitleFontFamily,
		TitleFontSize:      r.TitleFontSize,
		TitleBold:          r.TitleBold,
		TitleItalic:        r.TitleItalic,
		Credit:             r.Credit,
		CreditColor:        r.CreditColor,
		CreditFontSize:     r.CreditFontSize,
		CaptionColor:       r.CaptionColor,
		CaptionFont:        r.CaptionFontFamily,
		CaptionStrokeColor: r.CaptionStrokeColor,
		Background:         r.CanvasBackgroundColor,
		Watermark:          r.WatermarkText,
		TitlePosition:      r.TitlePosition,
		CaptionPosition:    r.CaptionPosition,
		CreditPosition:     r.CreditPosition,
		Preset:             r.Preset,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// GenerateVideoResponse is returned by a successful synchronous render.
type GenerateVideoResponse struct {
	Success  bool   `json:"success"`
	VideoURL string `json:"videoUrl"`
}

// CreateJobResponse is returned by POST /api/jobs.
type CreateJobResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// JobResponse is the public view of a job.
type JobResponse struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	Progress    int        `json:"progress"`
	Error       string     `json:"error,omitempty"`
	VideoURL    string     `json:"videoUrl,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

func newJobResponse(j *job.Job) JobResponse {
	c := j.Clone()
	resp := JobResponse{
		ID:        c.ID,
		Status:    string(c.Status),
		Progress:  c.Progress,
		Error:     c.Error,
		VideoURL:  c.VideoURL,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	if !c.StartedAt.IsZero() {
		resp.StartedAt = &c.StartedAt
	}
	if !c.CompletedAt.IsZero() {
		resp.CompletedAt = &c.CompletedAt
	}
	return resp
}

// ListJobsResponse is returned by GET /api/jobs.
type ListJobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// ExtractAudioRequest is the body of POST /api/extract-audio. All three
// fields are required, unlike the render request.
type ExtractAudioRequest struct {
	YoutubeURL string   `json:"youtubeUrl" jsonschema:"required"`
	StartTime  *Seconds `json:"startTime" jsonschema:"required"`
	EndTime    *Seconds `json:"endTime" jsonschema:"required"`
}

// ExtractAudioResponse is returned by a successful audio extraction.
type ExtractAudioResponse struct {
	Success  bool   `json:"success"`
	AudioURL string `json:"audioUrl"`
}

// CaptionsResponse is returned by POST /api/captions/import.
type CaptionsResponse struct {
	Captions []captions.Caption `json:"captions"`
}

// AnalyzeCaptionsRequest is the body of POST /api/captions/analyze.
type AnalyzeCaptionsRequest struct {
	Captions  []captions.Caption `json:"captions" validate:"required,min=1"`
	StartTime Seconds            `json:"startTime"`
	EndTime   Seconds            `json:"endTime"`
}

// TemplatesResponse is returned by GET /api/templates.
type TemplatesResponse struct {
	Templates []template.Template `json:"templates"`
}

// ErrorResponse is the error envelope of every endpoint.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Code    string `json:"code,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}
