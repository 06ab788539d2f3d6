// Package worker provides the job worker loop that drains the queue and
// drives generation jobs through the model provider.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/planlab/evalplan-api/config"
	"github.com/planlab/evalplan-api/internal/core"
	"github.com/planlab/evalplan-api/internal/domain/model"
	"github.com/planlab/evalplan-api/internal/observability/metrics"
	"github.com/planlab/evalplan-api/internal/observability/statsd"
	"github.com/planlab/evalplan-api/internal/service"
)

// RunnerOptions configures the worker runner.
type RunnerOptions struct {
	Jobs   core.JobRepository    // Required: job store
	Client core.CompletionClient // Required: model provider client
	LLM    config.LLMConfig      // Required: per-type model selection
	Config config.WorkerConfig   // Required: poll interval

	// Optional dependency injections
	Prompts *service.PromptCache // Optional: per-type system prompt templates
	Logger  *slog.Logger
	Metrics statsd.Sink
}

// Runner claims at most one pending job per tick and processes it to a
// terminal state before the next claim. A single runner therefore processes
// jobs strictly sequentially; run more instances for more throughput. Claim
// contention between instances is resolved by the store.
type Runner struct {
	jobs     core.JobRepository
	client   core.CompletionClient
	llm      config.LLMConfig
	interval time.Duration
	prompts  *service.PromptCache
	logger   *slog.Logger
	metrics  statsd.Sink
	workerID string
}

// NewRunner constructs a new worker Runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobRepository is required")
	}
	if opts.Client == nil {
		return nil, errors.New("CompletionClient is required")
	}

	interval := opts.Config.PollInterval
	if interval <= 0 {
		interval = time.Second
	}

	workerID := uuid.NewString()

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "worker", "worker_id", workerID)

	return &Runner{
		jobs:     opts.Jobs,
		client:   opts.Client,
		llm:      opts.LLM,
		interval: interval,
		prompts:  opts.Prompts,
		logger:   logger,
		metrics:  opts.Metrics,
		workerID: workerID,
	}, nil
}

// Run starts the claim loop and runs until the context is cancelled.
// Store errors are logged and retried on the next tick; they never stop the
// loop. Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting worker", "poll_interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "worker stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// tick claims at most one job and processes it to a terminal state.
func (r *Runner) tick(ctx context.Context) {
	job, err := r.jobs.ClaimNextPending(ctx)
	if err != nil {
		if errors.Is(err, model.ErrNoJobsAvailable) {
			return
		}
		if isContextErr(err) && ctx.Err() != nil {
			return
		}
		// A transient store failure must not kill the loop; the next tick retries.
		r.logger.ErrorContext(ctx, "claim next pending", "error", err)
		return
	}

	r.processJob(ctx, job)
}

func (r *Runner) processJob(ctx context.Context, job *model.Job) {
	start := time.Now()
	logger := r.logger.With("job_id", job.ID, "job_type", job.Type)
	logger.InfoContext(ctx, "job claimed")

	result, err := r.generate(ctx, job)
	if err != nil {
		r.failJob(ctx, logger, job, start, err)
		return
	}

	if err := r.jobs.Complete(ctx, job.ID, result); err != nil {
		logger.ErrorContext(ctx, "complete job", "error", err)
		r.emit(job, "completed", metrics.ResultError, start, err)
		return
	}

	logger.InfoContext(ctx, "job completed",
		"duration_ms", time.Since(start).Milliseconds(),
		"result_chars", len(result),
	)
	r.emit(job, "completed", metrics.ResultSuccess, start, nil)
}

// generate decodes the job input and runs one completion round trip. Retry,
// timeout, and truncation policy live inside the completion client; by the
// time generate returns an error the job has exhausted its attempts.
func (r *Runner) generate(ctx context.Context, job *model.Job) (string, error) {
	input, err := job.Input()
	if err != nil {
		return "", fmt.Errorf("decode job input: %w", err)
	}

	messages := input.Messages
	if r.prompts != nil {
		template, perr := r.prompts.TemplateFor(ctx, job.Type)
		if perr != nil {
			// Missing or unreadable templates degrade to raw messages.
			r.logger.WarnContext(ctx, "load prompt template", "job_type", job.Type, "error", perr)
		} else if template != "" {
			messages = append([]model.Message{{Role: "system", Content: template}}, messages...)
		}
	}

	return r.client.Complete(ctx, core.CompletionRequest{
		Model:       r.llm.ModelFor(job.Type),
		Messages:    messages,
		MaxTokens:   r.llm.MaxTokens,
		Temperature: r.llm.Temperature,
	})
}

func (r *Runner) failJob(ctx context.Context, logger *slog.Logger, job *model.Job, start time.Time, cause error) {
	logger.WarnContext(ctx, "job failed", "error", cause)

	if err := r.jobs.Fail(ctx, job.ID, cause.Error()); err != nil {
		logger.ErrorContext(ctx, "fail job", "error", err, "original_error", cause)
	}
	r.emit(job, "failed", metrics.ResultError, start, cause)
}

func (r *Runner) emit(job *model.Job, transition, result string, start time.Time, err error) {
	metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
		JobType:    string(job.Type),
		Transition: transition,
		Result:     result,
		Duration:   time.Since(start),
		Err:        err,
	})
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
