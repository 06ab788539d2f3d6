package worker

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planlab/evalplan-api/config"
	"github.com/planlab/evalplan-api/internal/core"
	"github.com/planlab/evalplan-api/internal/data"
	"github.com/planlab/evalplan-api/internal/data/memstore"
	"github.com/planlab/evalplan-api/internal/domain/model"
	"github.com/planlab/evalplan-api/internal/service"
)

// stubCompletionClient records requests and returns a canned response.
type stubCompletionClient struct {
	requests []core.CompletionRequest
	response string
	err      error
}

func (s *stubCompletionClient) Complete(ctx context.Context, req core.CompletionRequest) (string, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func testLLMConfig() config.LLMConfig {
	return config.LLMConfig{
		DefaultModel:    "gpt-4o",
		LogicModelModel: "gpt-4o-mini",
		MaxTokens:       4096,
		Temperature:     0.2,
	}
}

func newTestRunner(t *testing.T, client core.CompletionClient) (*Runner, *memstore.JobStore) {
	t.Helper()

	store := memstore.New(data.NewFixedTimeProvider(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))
	runner, err := NewRunner(RunnerOptions{
		Jobs:   store,
		Client: client,
		LLM:    testLLMConfig(),
		Config: config.WorkerConfig{PollInterval: 10 * time.Millisecond},
	})
	require.NoError(t, err)
	return runner, store
}

func submitJob(t *testing.T, store *memstore.JobStore, jobType model.JobType) *model.Job {
	t.Helper()

	input, err := json.Marshal(model.JobInput{Messages: []model.Message{
		{Role: "user", Content: "Draft an evaluation plan for our literacy program."},
	}})
	require.NoError(t, err)

	job, err := store.Create(context.Background(), &model.CreateJobRequest{
		Type:      jobType,
		InputData: input,
	})
	require.NoError(t, err)
	return job
}

func TestNewRunner_Validation(t *testing.T) {
	_, err := NewRunner(RunnerOptions{Client: &stubCompletionClient{}})
	require.Error(t, err)

	_, err = NewRunner(RunnerOptions{Jobs: memstore.New(nil)})
	require.Error(t, err)
}

func TestRunner_TickCompletesJob(t *testing.T) {
	client := &stubCompletionClient{response: "Generated evaluation plan covering outcomes and indicators."}
	runner, store := newTestRunner(t, client)
	ctx := context.Background()

	job := submitJob(t, store, model.JobTypeEvaluationPlan)

	runner.tick(ctx)

	got, err := store.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, got.Status)
	require.NotNil(t, got.ResultData)
	assert.Equal(t, client.response, *got.ResultData)
	assert.Nil(t, got.Error)
	assert.NotNil(t, got.CompletedAt)

	require.Len(t, client.requests, 1)
	req := client.requests[0]
	assert.Equal(t, "gpt-4o", req.Model)
	assert.Equal(t, 4096, req.MaxTokens)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "user", req.Messages[0].Role)
}

func TestRunner_TickUsesPerTypeModel(t *testing.T) {
	client := &stubCompletionClient{response: "A logic model."}
	runner, store := newTestRunner(t, client)

	submitJob(t, store, model.JobTypeLogicModel)
	runner.tick(context.Background())

	require.Len(t, client.requests, 1)
	assert.Equal(t, "gpt-4o-mini", client.requests[0].Model)
}

func TestRunner_TickFailsJobOnClientError(t *testing.T) {
	client := &stubCompletionClient{err: errors.New("upstream status 500")}
	runner, store := newTestRunner(t, client)
	ctx := context.Background()

	job := submitJob(t, store, model.JobTypeMeasurementPlan)

	runner.tick(ctx)

	got, err := store.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Contains(t, *got.Error, "upstream status 500")
	assert.Nil(t, got.ResultData)
}

func TestRunner_TickEmptyQueueIsNoop(t *testing.T) {
	client := &stubCompletionClient{response: "unused"}
	runner, _ := newTestRunner(t, client)

	runner.tick(context.Background())

	assert.Empty(t, client.requests)
}

func TestRunner_OneClaimPerTick(t *testing.T) {
	client := &stubCompletionClient{response: "Plan text long enough to be useful."}
	runner, store := newTestRunner(t, client)
	ctx := context.Background()

	submitJob(t, store, model.JobTypeEvaluationPlan)
	submitJob(t, store, model.JobTypeEvaluationPlan)

	runner.tick(ctx)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 1, stats.Completed)
}

func TestRunner_PrependsSystemPrompt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, string(model.JobTypeEvaluationPlan)+".md"),
		[]byte("You are an evaluation planner."),
		0o600,
	))

	prompts, err := service.NewPromptCache(service.PromptCacheOptions{
		Cache:  data.NewMemoryCacheRepo(nil),
		Config: config.CacheConfig{PromptDir: dir},
	})
	require.NoError(t, err)

	client := &stubCompletionClient{response: "Plan."}
	store := memstore.New(nil)
	runner, err := NewRunner(RunnerOptions{
		Jobs:    store,
		Client:  client,
		LLM:     testLLMConfig(),
		Config:  config.WorkerConfig{PollInterval: 10 * time.Millisecond},
		Prompts: prompts,
	})
	require.NoError(t, err)

	submitJob(t, store, model.JobTypeEvaluationPlan)
	runner.tick(context.Background())

	require.Len(t, client.requests, 1)
	req := client.requests[0]
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "You are an evaluation planner.", req.Messages[0].Content)
	assert.Equal(t, "user", req.Messages[1].Role)
}

// failingClaimRepo wraps the memstore but fails every claim.
type failingClaimRepo struct {
	*memstore.JobStore
}

func (f *failingClaimRepo) ClaimNextPending(ctx context.Context) (*model.Job, error) {
	return nil, errors.New("connection refused")
}

func TestRunner_StoreErrorDoesNotStopLoop(t *testing.T) {
	client := &stubCompletionClient{response: "unused"}
	runner, err := NewRunner(RunnerOptions{
		Jobs:   &failingClaimRepo{JobStore: memstore.New(nil)},
		Client: client,
		LLM:    testLLMConfig(),
		Config: config.WorkerConfig{PollInterval: 10 * time.Millisecond},
	})
	require.NoError(t, err)

	// Ticks survive repeated store failures and the client is never called.
	ctx := context.Background()
	runner.tick(ctx)
	runner.tick(ctx)

	assert.Empty(t, client.requests)
}

func TestRunner_RunStopsOnCancel(t *testing.T) {
	client := &stubCompletionClient{response: "Plan."}
	runner, store := newTestRunner(t, client)

	submitJob(t, store, model.JobTypeEvaluationPlan)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runner.Run(ctx)
	}()

	// Give the loop time to drain the queue.
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Completed)
}
