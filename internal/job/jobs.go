package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// CreateJob validates in and stores a queued job for it.
func (s *ComposeService) CreateJob(ctx context.Context, in ComposeInput) (*Job, error) {
	if err := s.validate(in); err != nil {
		return nil, err
	}
	job := New()
	job.Input = &in

	s.logger.Info("creating new job",
		slog.String("job_id", job.ID),
		slog.String("template", in.Template),
		slog.Float64("start", in.Start),
		slog.Float64("end", in.End),
		slog.Int("captions", len(in.Captions)),
	)
	if err := s.deps.Repo.Save(ctx, job); err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return job, nil
}

// ProcessExistingJob runs the compose pipeline for a queued job and records
// progress and the final state. It returns the pipeline error, if any,
// after the job has been marked failed or timed out.
func (s *ComposeService) ProcessExistingJob(ctx context.Context, jobID string) error {
	job, err := s.deps.Repo.FindByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Input == nil {
		return fmt.Errorf("job %s has no input", jobID)
	}
	if err := job.Start(); err != nil {
		return fmt.Errorf("start job %s: %w", jobID, err)
	}
	s.save(ctx, job)

	logger := s.logger.With(slog.String("job_id", jobID))
	logger.Info("job started")

	res, err := s.Compose(ctx, *job.Input, func(p float64) {
		before := job.Progress
		job.UpdateProgress(int(p))
		if job.Progress != before {
			s.save(ctx, job)
		}
	})
	if err != nil {
		details := Details(err)
		if errors.Is(err, ErrRenderTimeout) {
			_ = job.Timeout(details)
		} else {
			_ = job.Fail(details)
		}
		s.save(ctx, job)
		logger.Error("job failed",
			slog.String("status", string(job.GetStatus())),
			slog.String("error", err.Error()),
		)
		return err
	}

	job.SetOutput(res.OutputPath, res.VideoURL)
	if err := job.Complete(); err != nil {
		return fmt.Errorf("complete job %s: %w", jobID, err)
	}
	s.save(ctx, job)
	logger.Info("job completed", slog.String("video_url", res.VideoURL))
	return nil
}

// GetJob retrieves a job by ID.
func (s *ComposeService) GetJob(ctx context.Context, id string) (*Job, error) {
	return s.deps.Repo.FindByID(ctx, id)
}

// ListJobs returns all jobs, newest first.
func (s *ComposeService) ListJobs(ctx context.Context) ([]*Job, error) {
	return s.deps.Repo.List(ctx)
}

func (s *ComposeService) save(ctx context.Context, job *Job) {
	if err := s.deps.Repo.Save(ctx, job); err != nil {
		s.logger.Warn("failed to persist job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}
}
