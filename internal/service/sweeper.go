package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/planlab/evalplan-api/config"
	"github.com/planlab/evalplan-api/internal/core"
	"github.com/planlab/evalplan-api/internal/data"
	"github.com/planlab/evalplan-api/internal/observability/metrics"
	"github.com/planlab/evalplan-api/internal/observability/statsd"
)

// SweeperServiceOptions groups dependencies for SweeperService.
type SweeperServiceOptions struct {
	Repo         core.SweeperRepository // Required: sweeper repository
	Config       config.SweeperConfig   // Required: sweeper configuration
	Logger       *slog.Logger           // Optional: structured logger
	Metrics      statsd.Sink            // Optional: metrics sink (StatsD-compatible)
	TimeProvider data.TimeProvider      // Optional: defaults to wall clock
}

// SweeperService deletes terminal jobs that have aged past the retention
// window. Pending and processing jobs are never touched, so a job stuck in
// processing after a worker crash remains visible for operators.
type SweeperService struct {
	repo         core.SweeperRepository
	config       config.SweeperConfig
	logger       *slog.Logger
	metrics      statsd.Sink
	timeProvider data.TimeProvider
}

// NewSweeperService constructs a new SweeperService.
func NewSweeperService(opts SweeperServiceOptions) (*SweeperService, error) {
	if opts.Repo == nil {
		return nil, errors.New("SweeperRepository is required")
	}
	if opts.TimeProvider == nil {
		opts.TimeProvider = &data.RealTimeProvider{}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "sweeper_service")
		logger.Debug("SweeperService initialized",
			"interval", opts.Config.Interval,
			"retention", opts.Config.Retention,
			"batch_size", opts.Config.BatchSize,
		)
	}

	return &SweeperService{
		repo:         opts.Repo,
		config:       opts.Config,
		logger:       logger,
		metrics:      opts.Metrics,
		timeProvider: opts.TimeProvider,
	}, nil
}

// Run starts the sweeper loop and runs until the context is cancelled.
// It performs one sweep per tick at the configured interval.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *SweeperService) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting sweeper service",
			"interval", s.config.Interval,
			"retention", s.config.Retention,
		)
	}

	// Add jitter to prevent thundering herd if multiple instances start together
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	// Run one sweep immediately after jitter
	if _, err := s.Sweep(ctx); err != nil {
		s.logSweepError(err, "initial sweep")
	}

	return s.runLoop(ctx, ticker)
}

// waitWithJitter adds a random delay up to 10% of the interval to prevent thundering herd.
func (s *SweeperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// If crypto/rand fails, skip jitter rather than failing startup
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		}
		return
	}

	// Use modulo on uint64 before converting to avoid overflow
	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
		// Graceful shutdown during jitter
	}
}

// runLoop runs the sweep loop until context is cancelled.
func (s *SweeperService) runLoop(ctx context.Context, ticker *time.Ticker) error {
	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "sweeper service stopping", "reason", ctx.Err())
			}
			// Return nil on graceful shutdown to avoid treating it as a failure
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logSweepError(err, "sweep")
				// Continue running despite errors
			}
		}
	}
}

// Sweep deletes all terminal jobs whose completed_at precedes the retention
// cutoff, looping until no more rows are affected to handle large datasets
// in batches. The operation is idempotent; a second sweep over the same data
// deletes nothing. Returns the total number of deleted jobs.
func (s *SweeperService) Sweep(ctx context.Context) (int64, error) {
	start := time.Now()
	cutoff := s.timeProvider.Now().Add(-s.config.Retention)

	var totalCount int64
	var sweepErr error
	for {
		count, err := s.repo.DeleteTerminalOlderThan(ctx, cutoff, s.config.BatchSize)
		if err != nil {
			sweepErr = err
			break
		}
		totalCount += count
		if count == 0 {
			break
		}
		// Check context between batches
		if ctx.Err() != nil {
			sweepErr = ctx.Err()
			break
		}
	}

	metrics.EmitSweep(s.metrics, totalCount, time.Since(start), suppressContextCancellation(sweepErr))

	if sweepErr != nil {
		return totalCount, fmt.Errorf("delete terminal jobs: %w", sweepErr)
	}

	if totalCount > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "deleted expired terminal jobs",
			"count", totalCount,
			"retention", s.config.Retention,
			"cutoff", cutoff,
		)
	}

	return totalCount, nil
}

func (s *SweeperService) logSweepError(err error, label string) {
	if err == nil || s.logger == nil {
		return
	}

	if isContextCancellation(err) {
		s.logger.Debug(label+" cancelled by context", "error", err)
		return
	}

	s.logger.Error(label+" failed", "error", err)
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func suppressContextCancellation(err error) error {
	if isContextCancellation(err) {
		return nil
	}
	return err
}
