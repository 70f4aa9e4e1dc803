// Package render executes composition jobs and reduces renderer lifecycle
// events to a single outcome.
package render

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"

	"github.com/maauso/clipforge-api/internal/graph"
	"github.com/maauso/clipforge-api/internal/timecode"
)

// EventKind identifies a renderer lifecycle event.
type EventKind string

// Renderer events.
const (
	EventStart    EventKind = "start"
	EventProgress EventKind = "progress"
	EventStderr   EventKind = "stderr"
	EventEnd      EventKind = "end"
	EventError    EventKind = "error"
)

// Event is emitted by a Renderer while a job runs.
type Event struct {
	Kind EventKind
	// Percent is set for progress events, in [0, 100].
	Percent float64
	// Line is set for stderr events, and carries the command line on start.
	Line string
	Err  error
}

// Renderer executes a composition job. It reports lifecycle events through
// emit and returns nil only when the output file was produced.
type Renderer interface {
	Render(ctx context.Context, job graph.Job, emit func(Event)) error
}

// FFmpegError represents a failed ffmpeg run, including its stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nstderr: %s", e.Err, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}

// FFmpegRenderer runs jobs with the ffmpeg CLI.
type FFmpegRenderer struct {
	ffmpegPath string
	logger     *slog.Logger
}

// NewFFmpegRenderer creates a renderer. An empty path uses "ffmpeg" from
// PATH.
func NewFFmpegRenderer(ffmpegPath string, logger *slog.Logger) *FFmpegRenderer {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FFmpegRenderer{ffmpegPath: ffmpegPath, logger: logger}
}

var progressTime = regexp.MustCompile(`time=\s*(-?\d+:\d{2}:\d{2}(?:\.\d+)?)`)

// Render runs ffmpeg with the job's arguments.
func (r *FFmpegRenderer) Render(ctx context.Context, job graph.Job, emit func(Event)) error {
	if emit == nil {
		emit = func(Event) {}
	}
	args := append([]string{"-hide_banner"}, job.Args()...)

	// #nosec G204 - ffmpegPath is set by the application, argv is built by graph
	cmd := exec.CommandContext(ctx, r.ffmpegPath, args...)
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		emit(Event{Kind: EventError, Err: err})
		return &FFmpegError{Args: args, Err: err}
	}
	emit(Event{Kind: EventStart, Line: r.ffmpegPath + " " + strings.Join(args, " ")})

	stderr := scanStderr(stderrPipe, job.Duration, emit)
	err = cmd.Wait()
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		ferr := &FFmpegError{Args: args, Stderr: stderr, Err: err}
		emit(Event{Kind: EventError, Err: ferr})
		return ferr
	}
	emit(Event{Kind: EventEnd})
	return nil
}

// scanStderr forwards ffmpeg's stderr as events and returns it in full.
// ffmpeg terminates progress lines with carriage returns.
func scanStderr(rd io.Reader, duration float64, emit func(Event)) string {
	var all strings.Builder
	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	sc.Split(splitLines)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		all.WriteString(line)
		all.WriteByte('\n')
		emit(Event{Kind: EventStderr, Line: line})
		if pct, ok := parseProgress(line, duration); ok {
			emit(Event{Kind: EventProgress, Percent: pct})
		}
	}
	if err := sc.Err(); err != nil {
		// Keep the pipe empty so ffmpeg never blocks writing to it.
		all.WriteString("stderr scan stopped: " + err.Error() + "\n")
		_, _ = io.Copy(io.Discard, rd)
	}
	return all.String()
}

func parseProgress(line string, duration float64) (float64, bool) {
	if duration <= 0 {
		return 0, false
	}
	m := progressTime.FindStringSubmatch(line)
	if m == nil || strings.HasPrefix(m[1], "-") {
		return 0, false
	}
	pct := timecode.Parse(m[1]) / duration * 100
	return min(100, max(0, pct)), true
}

func splitLines(data []byte, atEOF bool) (int, []byte, error) {
	for i, b := range data {
		if b == '\n' || b == '\r' {
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}
