package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/maauso/clipforge-api/internal/graph"
)

// State of a dispatch.
type State string

// Dispatch states.
const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// IsTerminal reports whether s is Completed or Failed.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// ErrRenderFailed wraps the renderer failure returned by Dispatch.
var ErrRenderFailed = errors.New("render failed")

// Outcome is the single result of a dispatch.
type Outcome struct {
	State      State
	OutputPath string
	// Diagnostic is the renderer's error text, verbatim.
	Diagnostic string
}

// Cleaner releases a request-scoped working directory.
type Cleaner interface {
	RemoveWorkdir(dir string) error
}

// CleanerFunc adapts a function to Cleaner.
type CleanerFunc func(dir string) error

// RemoveWorkdir calls f.
func (f CleanerFunc) RemoveWorkdir(dir string) error { return f(dir) }

// Dispatcher submits jobs to a Renderer.
type Dispatcher struct {
	renderer Renderer
	cleaner  Cleaner
	logger   *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithCleaner overrides how the workdir is removed. Defaults to os.RemoveAll.
func WithCleaner(c Cleaner) DispatcherOption {
	return func(d *Dispatcher) {
		d.cleaner = c
	}
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(renderer Renderer, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		renderer: renderer,
		cleaner:  CleanerFunc(os.RemoveAll),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// run tracks the state of one dispatch.
type run struct {
	mu       sync.Mutex
	state    State
	progress func(float64)
}

func (r *run) transition(to State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.state == StateIdle && to == StateRunning:
	case r.state == StateRunning && to.IsTerminal():
	default:
		return false
	}
	r.state = to
	return true
}

func (r *run) current() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *run) handle(ev Event) {
	if ev.Kind != EventProgress || r.progress == nil {
		return
	}
	if r.current() != StateRunning {
		return
	}
	r.progress(ev.Percent)
}

// Dispatch validates job, renders it and returns its outcome. progress,
// when set, receives percentages while the job is running. workdir is
// removed on every path, including validation failures. The returned
// error is non-nil exactly when the outcome is Failed.
func (d *Dispatcher) Dispatch(ctx context.Context, job graph.Job, workdir string, progress func(percent float64)) (Outcome, error) {
	r := &run{state: StateIdle, progress: progress}
	defer d.release(workdir)

	if err := job.Validate(); err != nil {
		return Outcome{State: StateFailed, Diagnostic: err.Error()}, fmt.Errorf("%w: invalid job: %w", ErrRenderFailed, err)
	}

	r.transition(StateRunning)
	d.logger.Info("render started",
		slog.Int("inputs", len(job.Inputs)),
		slog.Int("stages", len(job.Stages)),
		slog.String("output", job.OutputPath),
	)

	rerr := d.renderer.Render(ctx, job, r.handle)
	if rerr == nil {
		if _, statErr := os.Stat(job.OutputPath); statErr != nil {
			rerr = fmt.Errorf("renderer reported success but output is missing: %w", statErr)
		}
	}
	if rerr != nil {
		r.transition(StateFailed)
		diag := rerr.Error()
		var ferr *FFmpegError
		if errors.As(rerr, &ferr) && ferr.Stderr != "" {
			diag = ferr.Stderr
		}
		d.logger.Error("render failed", slog.String("error", rerr.Error()))
		return Outcome{State: StateFailed, Diagnostic: diag}, fmt.Errorf("%w: %w", ErrRenderFailed, rerr)
	}

	r.transition(StateCompleted)
	d.logger.Info("render completed", slog.String("output", job.OutputPath))
	return Outcome{State: StateCompleted, OutputPath: job.OutputPath}, nil
}

func (d *Dispatcher) release(dir string) {
	if dir == "" {
		return
	}
	if err := d.cleaner.RemoveWorkdir(dir); err != nil {
		d.logger.Warn("failed to remove workdir", slog.String("dir", dir), slog.String("error", err.Error()))
	}
}
