// Package sweeper provides adapters for running the retention sweeper.
package sweeper

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/planlab/evalplan-api/config"
	"github.com/planlab/evalplan-api/internal/core"
	"github.com/planlab/evalplan-api/internal/data"
	"github.com/planlab/evalplan-api/internal/observability/statsd"
	"github.com/planlab/evalplan-api/internal/service"
)

// Runner provides a simple adapter to run the retention sweeper loop.
// It constructs the sweeper service and runs the sweep loop.
type Runner struct {
	sweeper *service.SweeperService
	logger  *slog.Logger
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	DB     *sql.DB
	Config config.SweeperConfig
	Logger *slog.Logger

	// Optional dependency injection for testing/decoupling
	Repo    core.SweeperRepository
	Metrics statsd.Sink
}

// NewRunner creates a new sweeper runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.DB == nil && opts.Repo == nil {
		return nil, errors.New("either DB or Repo must be provided")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	repo := opts.Repo
	if repo == nil {
		repo = data.NewJobRepo(opts.DB, data.RepoConfig{Logger: opts.Logger})
	}

	svc, err := service.NewSweeperService(service.SweeperServiceOptions{
		Repo:    repo,
		Config:  opts.Config,
		Logger:  opts.Logger,
		Metrics: opts.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("wire sweeper service: %w", err)
	}

	return &Runner{
		sweeper: svc,
		logger:  opts.Logger,
	}, nil
}

// Run starts the sweeper loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting sweeper runner")
	return r.sweeper.Run(ctx)
}
