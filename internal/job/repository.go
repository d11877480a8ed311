package job

import (
	"context"
	"errors"
)

// ErrJobNotFound is returned when no job has the requested ID.
var ErrJobNotFound = errors.New("job not found")

// Repository stores jobs. Implementations hand out copies so callers
// never share a *Job with the running service.
type Repository interface {
	// Save inserts or replaces the job with job.ID.
	Save(ctx context.Context, job *Job) error
	// FindByID returns ErrJobNotFound for an unknown ID.
	FindByID(ctx context.Context, id string) (*Job, error)
	// List returns jobs in submission order.
	List(ctx context.Context) ([]*Job, error)
	// Delete returns ErrJobNotFound for an unknown ID.
	Delete(ctx context.Context, id string) error
}
