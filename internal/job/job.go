// Package job holds the render job aggregate, its repositories and the
// ComposeService that turns a clip request into a published video.
package job

import (
	"errors"
	"sync"
	"time"

	"github.com/maauso/clipforge-api/internal/job/id"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusInQueue indicates the job is accepted but not started.
	StatusInQueue Status = "IN_QUEUE"
	// StatusRunning indicates the compose pipeline is executing.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates the video was rendered and published.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates the pipeline stopped with an error.
	StatusFailed Status = "FAILED"
	// StatusCancelled indicates the job was cancelled before it finished.
	StatusCancelled Status = "CANCELLED"
	// StatusTimedOut indicates the render exceeded its deadline.
	StatusTimedOut Status = "TIMED_OUT"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

var validTransitions = map[Status][]Status{
	StatusInQueue:   {StatusRunning, StatusCancelled, StatusTimedOut},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
	StatusTimedOut:  {},
}

func canTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s is a final state.
func (s Status) IsTerminal() bool {
	allowed, ok := validTransitions[s]
	return ok && len(allowed) == 0
}

// Job is one asynchronous clip render.
type Job struct {
	mu sync.RWMutex

	ID       string        `json:"id"`
	Status   Status        `json:"status"`
	Progress int           `json:"progress"`
	Error    string        `json:"error,omitempty"`
	Input    *ComposeInput `json:"input,omitempty"`
	// OutputPath is the rendered file on local disk, if it was kept.
	OutputPath string `json:"outputPath,omitempty"`
	// VideoURL is where the published video can be fetched.
	VideoURL    string    `json:"videoUrl,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	StartedAt   time.Time `json:"startedAt,omitzero"`
	CompletedAt time.Time `json:"completedAt,omitzero"`
}

// New creates a queued Job with a generated ID.
func New() *Job {
	return NewWithID(id.Generate())
}

// NewWithID creates a queued Job with the given ID.
func NewWithID(jobID string) *Job {
	now := time.Now()
	return &Job{
		ID:        jobID,
		Status:    StatusInQueue,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo changes the job status, stamping StartedAt when it starts
// running and CompletedAt when it reaches a final state.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()
	switch {
	case status == StatusRunning:
		j.StartedAt = j.UpdatedAt
	case status.IsTerminal():
		j.CompletedAt = j.UpdatedAt
	}
	return nil
}

// Start transitions the job from IN_QUEUE to RUNNING.
func (j *Job) Start() error {
	return j.TransitionTo(StatusRunning)
}

// Complete transitions the job to COMPLETED with full progress.
func (j *Job) Complete() error {
	if err := j.TransitionTo(StatusCompleted); err != nil {
		return err
	}
	j.UpdateProgress(100)
	return nil
}

// Fail transitions the job to FAILED with an error message.
func (j *Job) Fail(errMsg string) error {
	return j.endWithError(StatusFailed, errMsg)
}

// Cancel transitions the job to CANCELLED.
func (j *Job) Cancel() error {
	return j.TransitionTo(StatusCancelled)
}

// Timeout transitions the job to TIMED_OUT with an error message.
func (j *Job) Timeout(errMsg string) error {
	return j.endWithError(StatusTimedOut, errMsg)
}

func (j *Job) endWithError(status Status, errMsg string) error {
	if err := j.TransitionTo(status); err != nil {
		return err
	}
	j.mu.Lock()
	j.Error = errMsg
	j.mu.Unlock()
	return nil
}

// GetStatus returns the current job status.
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// UpdateProgress sets the progress percentage, clamped to 0..100. Progress
// never moves backwards.
func (j *Job) UpdateProgress(progress int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	progress = max(0, min(100, progress))
	if progress < j.Progress {
		return
	}
	j.Progress = progress
	j.UpdatedAt = time.Now()
}

// SetOutput records where the rendered video ended up.
func (j *Job) SetOutput(outputPath, videoURL string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.OutputPath = outputPath
	j.VideoURL = videoURL
	j.UpdatedAt = time.Now()
}

// ClearOutput forgets the output, once the retention sweep has removed it.
func (j *Job) ClearOutput() {
	j.SetOutput("", "")
}

// IsTerminal returns true if the job is in a final state.
func (j *Job) IsTerminal() bool {
	return j.GetStatus().IsTerminal()
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var input *ComposeInput
	if j.Input != nil {
		in := j.Input.clone()
		input = &in
	}
	return &Job{
		ID:          j.ID,
		Status:      j.Status,
		Progress:    j.Progress,
		Error:       j.Error,
		Input:       input,
		OutputPath:  j.OutputPath,
		VideoURL:    j.VideoURL,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}
