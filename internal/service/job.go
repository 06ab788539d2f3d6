// Package service provides business logic services for the evalplan job system.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/planlab/evalplan-api/internal/core"
	"github.com/planlab/evalplan-api/internal/domain/model"
)

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Repo   core.JobRepository // Required: job repository
	Logger *slog.Logger       // Optional: structured logger
}

// JobService provides submission and inspection of generation jobs.
// All state transitions happen in the repository; the service layers
// validation and response shaping on top.
type JobService struct {
	repo   core.JobRepository
	logger *slog.Logger
}

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "job_service")
	}

	return &JobService{
		repo:   opts.Repo,
		logger: logger,
	}, nil
}

// Submit validates the request and enqueues a new job with status pending.
// Validation failures wrap model.ErrValidation so the transport layer can
// map them to a 400 response.
func (s *JobService) Submit(ctx context.Context, req *model.CreateJobRequest) (*model.SubmitJobResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("validate request: %w", err)
	}

	job, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "job submitted",
			"job_id", job.ID,
			"job_type", job.Type,
		)
	}

	return &model.SubmitJobResponse{
		Success:   true,
		JobID:     job.ID,
		Status:    job.Status,
		CreatedAt: job.CreatedAt,
	}, nil
}

// StatusOf returns the current state of a job, including result or error
// payloads for terminal jobs. Returns data.ErrJobNotFound when no such job
// exists (the sweeper may have deleted it).
func (s *JobService) StatusOf(ctx context.Context, id int64) (*model.JobStatusResponse, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get job by id: %w", err)
	}

	resp := model.StatusResponseFor(job)
	return &resp, nil
}

// Stats returns per-status job counts across the whole store.
func (s *JobService) Stats(ctx context.Context) (*model.JobStats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	return stats, nil
}

// Health verifies the job store is reachable.
func (s *JobService) Health(ctx context.Context) error {
	if err := s.repo.Health(ctx); err != nil {
		return fmt.Errorf("job store health: %w", err)
	}
	return nil
}
