// Package job tracks asynchronous pipeline runs submitted to the worker:
// the Job entity with its state machine, the repository port and the
// service that schedules runs.
package job

import (
	"errors"
	"sync"
	"time"

	"github.com/maauso/visxp-prep/internal/job/id"
	"github.com/maauso/visxp-prep/internal/media"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusQueued indicates the job is waiting for a free run slot.
	StatusQueued Status = "QUEUED"
	// StatusRunning indicates the pipeline is processing the input.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates the run finished with state 200.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates the run finished with any other state.
	StatusFailed Status = "FAILED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

var validTransitions = map[Status][]Status{
	StatusQueued:    {StatusRunning, StatusFailed},
	StatusRunning:   {StatusCompleted, StatusFailed},
	StatusCompleted: {},
	StatusFailed:    {},
}

func canTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Job is one submitted pipeline run.
type Job struct {
	mu sync.RWMutex

	ID string
	// Input is the local path, URL or s3:// URI to process.
	Input string
	// SourceID is derived from Input and names the output directory.
	SourceID string
	Status   Status
	// State and Message hold the pipeline result once the run finished.
	State   int
	Message string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// New creates a queued job for input.
func New(input string) *Job {
	return NewWithID(id.Generate(), input)
}

// NewWithID creates a queued job with the given ID.
func NewWithID(jobID, input string) *Job {
	now := time.Now()
	return &Job{
		ID:        jobID,
		Input:     input,
		SourceID:  media.SourceID(input),
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo changes the job status.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transition(status)
}

func (j *Job) transition(status Status) error {
	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	switch status {
	case StatusRunning:
		j.StartedAt = j.UpdatedAt
	case StatusCompleted, StatusFailed:
		j.CompletedAt = j.UpdatedAt
	}
	return nil
}

// Start transitions the job from QUEUED to RUNNING.
func (j *Job) Start() error {
	return j.TransitionTo(StatusRunning)
}

// Finish records the pipeline result and moves the job to COMPLETED
// when state is 200, FAILED otherwise.
func (j *Job) Finish(state int, message string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	next := StatusFailed
	if state == 200 {
		next = StatusCompleted
	}
	if err := j.transition(next); err != nil {
		return err
	}
	j.State = state
	j.Message = message
	return nil
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// Clone creates a copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return &Job{
		ID:          j.ID,
		Input:       j.Input,
		SourceID:    j.SourceID,
		Status:      j.Status,
		State:       j.State,
		Message:     j.Message,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}
