// Package sweeper periodically removes stale workdirs, outputs and
// finished jobs.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/maauso/clipforge-api/internal/job"
)

// DefaultSchedule runs a sweep every 15 minutes.
const DefaultSchedule = "@every 15m"

// Files removes filesystem entries older than a cutoff.
type Files interface {
	SweepOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// Report summarizes one sweep.
type Report struct {
	Files int
	Jobs  int
}

// Sweeper deletes everything older than the retention period.
type Sweeper struct {
	files     Files
	jobs      job.Repository
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
	cron      *cron.Cron
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		s.now = now
	}
}

// New creates a Sweeper. jobs may be nil to sweep files only.
func New(files Files, jobs job.Repository, retention time.Duration, logger *slog.Logger, opts ...Option) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sweeper{
		files:     files,
		jobs:      jobs,
		retention: retention,
		logger:    logger,
		now:       time.Now,
		cron:      cron.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start schedules RunOnce with a cron spec such as "@every 15m" or
// "0 * * * *". A non-positive retention disables sweeping.
func (s *Sweeper) Start(schedule string) error {
	if s.retention <= 0 {
		s.logger.Info("retention sweep disabled")
		return nil
	}
	if schedule == "" {
		schedule = DefaultSchedule
	}
	_, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Warn("retention sweep incomplete", slog.String("error", err.Error()))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule sweep %q: %w", schedule, err)
	}
	s.cron.Start()
	s.logger.Info("retention sweep scheduled",
		slog.String("schedule", schedule),
		slog.Duration("retention", s.retention),
	)
	return nil
}

// Stop stops scheduling and waits for a running sweep, or for ctx.
func (s *Sweeper) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// RunOnce performs a single sweep.
func (s *Sweeper) RunOnce(ctx context.Context) (Report, error) {
	cutoff := s.now().Add(-s.retention)
	var report Report
	var errs []error

	n, err := s.files.SweepOlderThan(ctx, cutoff)
	report.Files = n
	if err != nil {
		errs = append(errs, err)
	}

	if s.jobs != nil {
		n, err := s.sweepJobs(ctx, cutoff)
		report.Jobs = n
		if err != nil {
			errs = append(errs, err)
		}
	}

	if report.Files > 0 || report.Jobs > 0 {
		s.logger.Info("retention sweep",
			slog.Int("files", report.Files),
			slog.Int("jobs", report.Jobs),
		)
	}
	return report, errors.Join(errs...)
}

func (s *Sweeper) sweepJobs(ctx context.Context, cutoff time.Time) (int, error) {
	jobs, err := s.jobs.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list jobs: %w", err)
	}
	removed := 0
	for _, j := range jobs {
		if !j.IsTerminal() || !j.CompletedAt.Before(cutoff) {
			continue
		}
		if err := s.jobs.Delete(ctx, j.ID); err != nil && !errors.Is(err, job.ErrJobNotFound) {
			return removed, fmt.Errorf("delete job %s: %w", j.ID, err)
		}
		removed++
	}
	return removed, nil
}
