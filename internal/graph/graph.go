// Package graph builds and validates the declarative compositing job handed
// to the renderer: ordered inputs, a chain of named-stream filter stages and
// the output encoding options.
package graph

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Validation errors.
var (
	ErrNoInputs        = errors.New("job has no inputs")
	ErrNoStages        = errors.New("job has no stages")
	ErrUnknownStream   = errors.New("stage consumes an unknown stream")
	ErrInputOutOfRange = errors.New("stage references an input that is not registered")
	ErrDuplicateStream = errors.New("stream produced twice")
	ErrUnusedInput     = errors.New("registered input is never consumed")
	ErrMissingOutput   = errors.New("output stream is never produced")
	ErrNoOutputPath    = errors.New("job has no output path")
)

// Input is one registered renderer input. Its index is its position in
// Job.Inputs.
type Input struct {
	Path string `json:"path"`
	// Options are placed before -i, e.g. trimming of the source video.
	Options []string `json:"options,omitempty"`
}

// Filter is a single filter expression inside a stage.
type Filter struct {
	Name   string `json:"name"`
	Params string `json:"params,omitempty"`
}

func (f Filter) String() string {
	if f.Params == "" {
		return f.Name
	}
	return f.Name + "=" + f.Params
}

// Stage is one compositing step. Consumes lists stream names produced by
// earlier stages or input references of the form "N:v".
type Stage struct {
	Consumes []string `json:"consumes"`
	Produces string   `json:"produces"`
	Op       string   `json:"op"`
	Params   string   `json:"params,omitempty"`
	// Then holds filters applied in sequence after Op inside the same stage.
	Then []Filter `json:"then,omitempty"`
}

// String serializes the stage as a filtergraph chain.
func (s Stage) String() string {
	var b strings.Builder
	for _, c := range s.Consumes {
		b.WriteString("[" + c + "]")
	}
	b.WriteString(Filter{Name: s.Op, Params: s.Params}.String())
	for _, f := range s.Then {
		b.WriteString("," + f.String())
	}
	b.WriteString("[" + s.Produces + "]")
	return b.String()
}

// Job is a renderer-ready composition.
type Job struct {
	Inputs        []Input  `json:"inputs"`
	Stages        []Stage  `json:"stages"`
	OutputStream  string   `json:"outputStream"`
	OutputOptions []string `json:"outputOptions"`
	OutputPath    string   `json:"outputPath"`
	// Duration is the output length in seconds, used for progress.
	Duration float64 `json:"duration"`
}

var inputRef = regexp.MustCompile(`^(\d+):[va]$`)

// Validate checks that every consumed stream was produced by an earlier
// stage or is a registered input, that no stream is produced twice, that
// every input is consumed and that the output stream exists.
func (j Job) Validate() error {
	if len(j.Inputs) == 0 {
		return ErrNoInputs
	}
	if len(j.Stages) == 0 {
		return ErrNoStages
	}
	if j.OutputPath == "" {
		return ErrNoOutputPath
	}

	produced := make(map[string]bool, len(j.Stages))
	used := make([]bool, len(j.Inputs))
	for i, s := range j.Stages {
		for _, c := range s.Consumes {
			if m := inputRef.FindStringSubmatch(c); m != nil {
				idx, _ := strconv.Atoi(m[1])
				if idx >= len(j.Inputs) {
					return fmt.Errorf("%w: stage %d (%s) uses %s with %d inputs", ErrInputOutOfRange, i, s.Op, c, len(j.Inputs))
				}
				used[idx] = true
				continue
			}
			if !produced[c] {
				return fmt.Errorf("%w: stage %d (%s) consumes [%s]", ErrUnknownStream, i, s.Op, c)
			}
		}
		if s.Produces == "" || inputRef.MatchString(s.Produces) || produced[s.Produces] {
			return fmt.Errorf("%w: stage %d produces [%s]", ErrDuplicateStream, i, s.Produces)
		}
		produced[s.Produces] = true
	}
	for idx, ok := range used {
		if !ok {
			return fmt.Errorf("%w: input %d (%s)", ErrUnusedInput, idx, j.Inputs[idx].Path)
		}
	}
	if !produced[j.OutputStream] {
		return fmt.Errorf("%w: [%s]", ErrMissingOutput, j.OutputStream)
	}
	return nil
}

// FilterComplex joins the stages into a single filtergraph.
func (j Job) FilterComplex() string {
	parts := make([]string, len(j.Stages))
	for i, s := range j.Stages {
		parts[i] = s.String()
	}
	return strings.Join(parts, ";")
}

// Args returns the ffmpeg argument list for the job, without the binary.
func (j Job) Args() []string {
	args := make([]string, 0, 3*len(j.Inputs)+len(j.OutputOptions)+4)
	for _, in := range j.Inputs {
		args = append(args, in.Options...)
		args = append(args, "-i", in.Path)
	}
	args = append(args, "-filter_complex", j.FilterComplex())
	args = append(args, j.OutputOptions...)
	return append(args, j.OutputPath)
}

// InputIndex returns the input index consumed by a stage reference such as
// "3:v", or -1.
func InputIndex(ref string) int {
	m := inputRef.FindStringSubmatch(ref)
	if m == nil {
		return -1
	}
	idx, _ := strconv.Atoi(m[1])
	return idx
}

// Seconds formats a timeline value with the shortest exact decimal.
func Seconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
