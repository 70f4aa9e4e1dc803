package captions

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/maauso/clipforge-api/internal/timecode"
)

// Duration thresholds used by Analyze.
const (
	MinReadableSeconds = 0.5
	MaxReadableSeconds = 5.0
)

// TimingIssues flags the problems of one caption.
type TimingIssues struct {
	StartsBeforeClip bool `json:"startsBeforeClip"`
	EndsAfterClip    bool `json:"endsAfterClip"`
	InvalidDuration  bool `json:"invalidDuration"`
	TooShort         bool `json:"tooShort"`
	TooLong          bool `json:"tooLong"`
}

// Any reports whether at least one issue is set.
func (i TimingIssues) Any() bool {
	return i.StartsBeforeClip || i.EndsAfterClip || i.InvalidDuration || i.TooShort || i.TooLong
}

// Span is a start/end pair in seconds.
type Span struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// CaptionTiming is the analysis of one caption.
type CaptionTiming struct {
	Index    int          `json:"index"`
	Text     string       `json:"text"`
	Original Caption      `json:"originalTimestamps"`
	Absolute Span         `json:"absoluteSeconds"`
	Relative Span         `json:"relativeToClip"`
	Duration float64      `json:"duration"`
	Issues   TimingIssues `json:"issues"`
}

// TimingSummary aggregates a report.
type TimingSummary struct {
	TotalCaptions   int     `json:"totalCaptions"`
	ValidCaptions   int     `json:"validCaptions"`
	TimingIssues    int     `json:"timingIssues"`
	AverageDuration float64 `json:"averageCaptionDuration"`
	CoveragePercent float64 `json:"captionCoverage"`
}

// TimingReport is the result of Analyze.
type TimingReport struct {
	Clip            Clip            `json:"clipInfo"`
	Captions        []CaptionTiming `json:"captionAnalysis"`
	Summary         TimingSummary   `json:"summary"`
	Recommendations []string        `json:"recommendations"`
}

// Analyze reports timing problems of captions relative to clip without
// modifying anything. Coverage counts only captions without issues.
func Analyze(captions []Caption, clip Clip) TimingReport {
	d := clip.Duration()
	timings := lo.Map(captions, func(c Caption, i int) CaptionTiming {
		abs := Span{Start: timecode.Parse(c.Start), End: timecode.Parse(c.End)}
		rel := Span{Start: abs.Start - clip.Start, End: abs.End - clip.Start}
		dur := abs.End - abs.Start
		return CaptionTiming{
			Index:    i + 1,
			Text:     c.Text,
			Original: c,
			Absolute: abs,
			Relative: rel,
			Duration: dur,
			Issues: TimingIssues{
				StartsBeforeClip: rel.Start < 0,
				EndsAfterClip:    rel.End > d,
				InvalidDuration:  dur <= 0,
				TooShort:         dur < MinReadableSeconds,
				TooLong:          dur > MaxReadableSeconds,
			},
		}
	})

	valid := lo.Filter(timings, func(t CaptionTiming, _ int) bool { return !t.Issues.Any() })
	summary := TimingSummary{
		TotalCaptions: len(timings),
		ValidCaptions: len(valid),
		TimingIssues:  len(timings) - len(valid),
	}
	if len(valid) > 0 {
		summary.AverageDuration = lo.SumBy(valid, func(t CaptionTiming) float64 { return t.Duration }) / float64(len(valid))
		if d > 0 {
			covered := lo.SumBy(valid, func(t CaptionTiming) float64 {
				return max(0, min(t.Relative.End, d)-max(0, t.Relative.Start))
			})
			summary.CoveragePercent = covered / d * 100
		}
	}

	return TimingReport{
		Clip:            clip,
		Captions:        timings,
		Summary:         summary,
		Recommendations: recommend(summary),
	}
}

func recommend(s TimingSummary) []string {
	var out []string
	if s.TimingIssues > 0 {
		out = append(out, fmt.Sprintf("%d captions have timing issues that need fixing", s.TimingIssues))
	}
	if s.AverageDuration < 1 {
		out = append(out, "Captions are very short - consider longer duration for better readability")
	}
	if s.AverageDuration > 4 {
		out = append(out, "Captions are too long - consider breaking them into shorter segments")
	}
	if s.CoveragePercent < 50 {
		out = append(out, "Low caption coverage - much of the audio may be uncaptioned")
	}
	if s.CoveragePercent > 90 {
		out = append(out, "Excellent caption coverage!")
	}
	if len(out) == 0 {
		out = append(out, "Caption timing looks good!")
	}
	return out
}
