package job

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/maauso/visxp-prep/internal/pipeline"
	"github.com/maauso/visxp-prep/internal/provenance"
)

var (
	// ErrEmptyInput is returned when a job is submitted without input.
	ErrEmptyInput = errors.New("input is required")
	// ErrSourceBusy is returned when a job for the same source id is still active.
	ErrSourceBusy = errors.New("a job for this source is already active")
)

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context, input string) (pipeline.Result, *provenance.Step)
}

// Compile-time check that the orchestrator can run jobs.
var _ Runner = (*pipeline.Orchestrator)(nil)

// Service schedules pipeline runs in the background.
// At most maxConcurrent runs execute at the same time, and at most one
// job per source id is active, since runs write to the same output directory.
type Service struct {
	repo   Repository
	runner Runner
	logger *slog.Logger

	sem chan struct{}
	wg  sync.WaitGroup

	mu     sync.Mutex
	active map[string]string // source id -> job id
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithMaxConcurrentJobs limits the number of runs executing at once.
// Values below 1 are ignored.
func WithMaxConcurrentJobs(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.sem = make(chan struct{}, n)
		}
	}
}

// NewService creates a new Service. By default one run executes at a time.
func NewService(repo Repository, runner Runner, logger *slog.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:   repo,
		runner: runner,
		logger: logger,
		sem:    make(chan struct{}, 1),
		active: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit creates a queued job for input and starts it in the background.
// The run outlives ctx cancellation but keeps its values.
func (s *Service) Submit(ctx context.Context, input string) (*Job, error) {
	if input == "" {
		return nil, ErrEmptyInput
	}
	job := New(input)

	s.mu.Lock()
	if other, ok := s.active[job.SourceID]; ok {
		s.mu.Unlock()
		s.logger.Warn("rejected job for busy source",
			slog.String("source_id", job.SourceID),
			slog.String("active_job_id", other),
		)
		return nil, ErrSourceBusy
	}
	s.active[job.SourceID] = job.ID
	s.mu.Unlock()

	if err := s.repo.Save(ctx, job); err != nil {
		s.release(job.SourceID)
		s.logger.Error("failed to save job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	s.logger.Info("job queued",
		slog.String("job_id", job.ID),
		slog.String("input", input),
		slog.String("source_id", job.SourceID),
	)

	queued := job.Clone()
	s.wg.Add(1)
	go s.process(context.WithoutCancel(ctx), job)
	return queued, nil
}

func (s *Service) process(ctx context.Context, job *Job) {
	defer s.wg.Done()
	defer s.release(job.SourceID)

	s.sem <- struct{}{}
	defer func() { <-s.sem }()

	log := s.logger.With(slog.String("job_id", job.ID))
	if err := job.Start(); err != nil {
		log.Error("could not start job", slog.String("error", err.Error()))
		return
	}
	s.save(ctx, job, log)

	res, _ := s.runner.Run(ctx, job.Input)
	if err := job.Finish(res.State, res.Message); err != nil {
		log.Error("could not finish job", slog.String("error", err.Error()))
	}
	s.save(ctx, job, log)

	log.Info("job finished",
		slog.String("status", string(job.GetStatus())),
		slog.Int("state", res.State),
	)
}

func (s *Service) save(ctx context.Context, job *Job, log *slog.Logger) {
	if err := s.repo.Save(ctx, job); err != nil {
		log.Error("failed to save job", slog.String("error", err.Error()))
	}
}

func (s *Service) release(sourceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, sourceID)
}

// Get retrieves a job by ID.
func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	return s.repo.FindByID(ctx, id)
}

// List returns all known jobs.
func (s *Service) List(ctx context.Context) ([]*Job, error) {
	return s.repo.List(ctx)
}

// Wait blocks until every submitted run has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}
