package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/dto"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
	"github.com/noah-isme/campus-timetable-api/pkg/jobs"
)

const (
	generationJobType = "timetable.generate"
	// the engine returns its partial result at the requested timeout; the job gets a hard stop later
	jobTimeoutGrace = 30 * time.Second
)

type proposalGenerator interface {
	Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.TimetableProposal, error)
}

// GenerationJobConfig sizes the asynchronous generation queue.
type GenerationJobConfig struct {
	Workers    int
	Retries    int
	RetryDelay time.Duration
	ResultTTL  time.Duration
}

// GenerationJobService runs timetable generation in the background and tracks job state.
type GenerationJobService struct {
	generator proposalGenerator
	queue     *jobs.Queue
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	ttl       time.Duration
	now       func() time.Time

	mu   sync.RWMutex
	jobs map[string]*dto.GenerationJobResponse
}

// NewGenerationJobService builds the service and its worker queue. Call Start before enqueueing.
func NewGenerationJobService(generator proposalGenerator, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg GenerationJobConfig) *GenerationJobService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = time.Hour
	}
	svc := &GenerationJobService{
		generator: generator,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		ttl:       cfg.ResultTTL,
		now:       time.Now,
		jobs:      make(map[string]*dto.GenerationJobResponse),
	}
	svc.queue = jobs.NewQueue("timetable-generation", svc.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.Retries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
		Observer:   svc.observe,
	})
	return svc
}

// Start launches the workers.
func (s *GenerationJobService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop cancels running jobs and waits for the workers.
func (s *GenerationJobService) Stop() {
	s.queue.Stop()
}

// Enqueue validates the request and schedules a generation job.
func (s *GenerationJobService) Enqueue(_ context.Context, req dto.GenerateTimetableRequest) (*dto.GenerationJobResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable generation payload")
	}
	s.sweep()

	now := s.now().UTC()
	job := &dto.GenerationJobResponse{ID: uuid.NewString(), Status: string(jobs.StateQueued), CreatedAt: now, UpdatedAt: now}
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	queued := jobs.Job{ID: job.ID, Type: generationJobType, Payload: req}
	if req.TimeoutSeconds > 0 {
		queued.Timeout = time.Duration(req.TimeoutSeconds)*time.Second + jobTimeoutGrace
	}
	if err := s.queue.Enqueue(queued); err != nil {
		s.mu.Lock()
		delete(s.jobs, job.ID)
		s.mu.Unlock()
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "generation queue unavailable")
	}
	return s.snapshot(job.ID)
}

// Status reports the state of a job.
func (s *GenerationJobService) Status(_ context.Context, id string) (*dto.GenerationJobResponse, error) {
	return s.snapshot(id)
}

func (s *GenerationJobService) snapshot(id string) (*dto.GenerationJobResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "generation job not found or expired")
	}
	copied := *job
	return &copied, nil
}

func (s *GenerationJobService) handle(ctx context.Context, job jobs.Job) error {
	req, ok := job.Payload.(dto.GenerateTimetableRequest)
	if !ok {
		return fmt.Errorf("unexpected payload %T: %w", job.Payload, jobs.ErrPermanent)
	}
	proposal, err := s.generator.Generate(ctx, req)
	if err != nil {
		if !appErrors.Retryable(err) {
			return fmt.Errorf("%s: %w", appErrors.FromError(err).Message, jobs.ErrPermanent)
		}
		return err
	}
	s.mu.Lock()
	if record, ok := s.jobs[job.ID]; ok {
		record.ProposalID = proposal.ProposalID
	}
	s.mu.Unlock()
	return nil
}

func (s *GenerationJobService) observe(job jobs.Job, state jobs.State, err error) {
	s.metrics.RecordJobState(string(state))
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.jobs[job.ID]
	if !ok {
		return
	}
	record.Status = string(state)
	record.UpdatedAt = s.now().UTC()
	if state == jobs.StateRunning {
		record.Attempts = job.Attempt + 1
	}
	switch {
	case err != nil:
		record.Error = err.Error()
	case state == jobs.StateSucceeded:
		record.Error = ""
	}
}

// sweep forgets finished jobs older than the result TTL.
func (s *GenerationJobService) sweep() {
	cutoff := s.now().Add(-s.ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, job := range s.jobs {
		finished := job.Status == string(jobs.StateSucceeded) || job.Status == string(jobs.StateFailed)
		if finished && job.UpdatedAt.Before(cutoff) {
			delete(s.jobs, id)
		}
	}
}
