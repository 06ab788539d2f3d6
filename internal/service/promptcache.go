package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/planlab/evalplan-api/config"
	"github.com/planlab/evalplan-api/internal/core"
	"github.com/planlab/evalplan-api/internal/domain/model"
)

// PromptCacheOptions groups dependencies for PromptCache.
type PromptCacheOptions struct {
	Cache  core.CacheRepository // Required: backing cache
	Config config.CacheConfig   // Required: prompt dir and TTL
	Logger *slog.Logger         // Optional: structured logger
}

// PromptCache serves per-job-type system prompt templates from disk, caching
// them so the worker does not re-read template files on every job. The cache
// holds its own state; it shares no locks with job processing, so a slow
// template read never stalls the claim loop.
type PromptCache struct {
	cache  core.CacheRepository
	dir    string
	ttl    time.Duration
	logger *slog.Logger
}

// NewPromptCache constructs a new PromptCache.
func NewPromptCache(opts PromptCacheOptions) (*PromptCache, error) {
	if opts.Cache == nil {
		return nil, errors.New("CacheRepository is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "prompt_cache")
	}

	return &PromptCache{
		cache:  opts.Cache,
		dir:    opts.Config.PromptDir,
		ttl:    opts.Config.PromptTTL,
		logger: logger,
	}, nil
}

// TemplateFor returns the system prompt template for the given job type.
// Returns the empty string when no template file exists for the type; jobs
// then run with their submitted messages unchanged.
func (p *PromptCache) TemplateFor(ctx context.Context, jobType model.JobType) (string, error) {
	key := p.promptKey(jobType)

	cached, err := p.cache.Get(ctx, key)
	if err != nil {
		// A broken cache must not block job processing; fall through to disk.
		if p.logger != nil {
			p.logger.WarnContext(ctx, "prompt cache read failed, reading from disk",
				"job_type", jobType,
				"error", err,
			)
		}
	} else if cached != nil {
		return string(cached), nil
	}

	content, err := os.ReadFile(p.templatePath(jobType))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read prompt template for %s: %w", jobType, err)
	}

	if err := p.cache.Set(ctx, key, content, p.ttl); err != nil && p.logger != nil {
		// Best-effort caching
		p.logger.WarnContext(ctx, "prompt cache write failed",
			"job_type", jobType,
			"error", err,
		)
	}

	return string(content), nil
}

// Invalidate drops the cached template for a job type. Call this after
// editing a template file on disk so the next job picks up the new content.
func (p *PromptCache) Invalidate(ctx context.Context, jobType model.JobType) error {
	existed, err := p.cache.Delete(ctx, p.promptKey(jobType))
	if err != nil {
		return fmt.Errorf("invalidate prompt template for %s: %w", jobType, err)
	}

	if p.logger != nil {
		p.logger.InfoContext(ctx, "prompt template invalidated",
			"job_type", jobType,
			"was_cached", existed,
		)
	}

	return nil
}

func (p *PromptCache) templatePath(jobType model.JobType) string {
	return filepath.Join(p.dir, string(jobType)+".md")
}

// promptKey generates a cache key for a prompt template.
func (p *PromptCache) promptKey(jobType model.JobType) string {
	return "prompt:template:" + string(jobType)
}
