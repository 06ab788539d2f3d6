// Package core defines the ports between the evalplan services and their adapters.
// The core owns the interfaces; the data and adapter layers provide implementations.
package core

import (
	"context"
	"time"

	"github.com/planlab/evalplan-api/internal/domain/model"
)

// JobRepository is the single authority over job state. Implementations must
// enforce the pending -> processing -> {completed, failed} state machine and
// guarantee that concurrent ClaimNextPending calls never return the same job.
type JobRepository interface {
	// Create validates and inserts a new job with status pending.
	Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error)

	// ClaimNextPending atomically selects the oldest pending job and flips it
	// to processing. Returns model.ErrNoJobsAvailable when the queue is empty.
	ClaimNextPending(ctx context.Context) (*model.Job, error)

	// Complete transitions a processing job to completed and records its result.
	Complete(ctx context.Context, id int64, result string) error

	// Fail transitions a processing job to failed and records the error text.
	Fail(ctx context.Context, id int64, errText string) error

	// GetByID returns the job or data.ErrJobNotFound.
	GetByID(ctx context.Context, id int64) (*model.Job, error)

	// DeleteTerminalOlderThan deletes terminal jobs whose completed_at precedes
	// the cutoff. Pending and processing jobs are never touched.
	DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)

	// Stats returns per-status job counts.
	Stats(ctx context.Context) (*model.JobStats, error)

	// Health runs a trivial query to verify the store is reachable.
	Health(ctx context.Context) error
}

// SweeperRepository is the subset of JobRepository the retention sweeper needs.
type SweeperRepository interface {
	DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
}

// CompletionRequest describes one round trip to the model provider.
type CompletionRequest struct {
	Model       string
	Messages    []model.Message
	MaxTokens   int
	Temperature float64
}

// CompletionClient wraps a single outbound call to the model provider with
// timeout, retry, and truncation-detection policy applied internally.
type CompletionClient interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// CacheRepository defines the interface for caching operations backing
// process-wide state such as the prompt template cache.
type CacheRepository interface {
	// Set stores a value with the given key and TTL. TTL 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get retrieves a value by key, or nil if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes a key. Returns true if the key existed.
	Delete(ctx context.Context, key string) (bool, error)

	// Health checks the cache connection.
	Health(ctx context.Context) error
}
