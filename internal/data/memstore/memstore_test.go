package memstore

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planlab/evalplan-api/internal/data"
	"github.com/planlab/evalplan-api/internal/domain/model"
)

func validRequest(t model.JobType) *model.CreateJobRequest {
	return &model.CreateJobRequest{
		Type:      t,
		InputData: json.RawMessage(`{"messages":[{"role":"user","content":"hello"}]}`),
	}
}

func TestJobStore_CreateAndGet(t *testing.T) {
	store := New(nil)
	ctx := context.Background()

	job, err := store.Create(ctx, validRequest(model.JobTypeEvaluationPlan))
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, job.Status)
	assert.Nil(t, job.ResultData)
	assert.Nil(t, job.Error)
	assert.Nil(t, job.CompletedAt)

	got, err := store.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, model.JobStatusPending, got.Status)

	_, err = store.GetByID(ctx, 9999)
	require.ErrorIs(t, err, data.ErrJobNotFound)
}

func TestJobStore_CreateRejectsInvalid(t *testing.T) {
	store := New(nil)

	_, err := store.Create(context.Background(), &model.CreateJobRequest{
		Type:      "bogus",
		InputData: json.RawMessage(`{"messages":[{"role":"user","content":"hi"}]}`),
	})
	require.ErrorIs(t, err, model.ErrValidation)

	// Rejected before any row exists.
	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Pending+stats.Processing+stats.Completed+stats.Failed)
}

func TestJobStore_ClaimOrder(t *testing.T) {
	tp := data.NewFixedTimeProvider(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	store := New(tp)
	ctx := context.Background()

	first, err := store.Create(ctx, validRequest(model.JobTypeEvaluationPlan))
	require.NoError(t, err)
	tp.AddTime(time.Second)
	second, err := store.Create(ctx, validRequest(model.JobTypeLogicModel))
	require.NoError(t, err)

	claimed, err := store.ClaimNextPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, claimed.ID)
	assert.Equal(t, model.JobStatusProcessing, claimed.Status)

	claimed, err = store.ClaimNextPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, claimed.ID)

	_, err = store.ClaimNextPending(ctx)
	require.ErrorIs(t, err, model.ErrNoJobsAvailable)
}

func TestJobStore_ConcurrentClaimExclusive(t *testing.T) {
	store := New(nil)
	ctx := context.Background()

	_, err := store.Create(ctx, validRequest(model.JobTypeEvaluationPlan))
	require.NoError(t, err)

	const claimers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		won     int
		misses  int
		claimed []int64
	)
	for range claimers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job, claimErr := store.ClaimNextPending(ctx)
			mu.Lock()
			defer mu.Unlock()
			if claimErr == nil {
				won++
				claimed = append(claimed, job.ID)
				return
			}
			if assert.ErrorIs(t, claimErr, model.ErrNoJobsAvailable) {
				misses++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, won, "exactly one claimer may win the single pending job")
	assert.Equal(t, claimers-1, misses)
	assert.Len(t, claimed, 1)
}

func TestJobStore_StateMachine(t *testing.T) {
	store := New(nil)
	ctx := context.Background()

	job, err := store.Create(ctx, validRequest(model.JobTypeEvaluationPlan))
	require.NoError(t, err)

	// Completing a pending job is a programming error.
	require.ErrorIs(t, store.Complete(ctx, job.ID, "out of order"), data.ErrInvalidJobState)
	require.ErrorIs(t, store.Fail(ctx, job.ID, "out of order"), data.ErrInvalidJobState)
	require.ErrorIs(t, store.Complete(ctx, 42, "missing"), data.ErrJobNotFound)

	claimed, err := store.ClaimNextPending(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Complete(ctx, claimed.ID, "the plan"))

	got, err := store.GetByID(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, got.Status)
	require.NotNil(t, got.ResultData)
	assert.Equal(t, "the plan", *got.ResultData)
	assert.Nil(t, got.Error)
	require.NotNil(t, got.CompletedAt)

	// Terminal states never regress.
	require.ErrorIs(t, store.Complete(ctx, claimed.ID, "again"), data.ErrInvalidJobState)
	require.ErrorIs(t, store.Fail(ctx, claimed.ID, "again"), data.ErrInvalidJobState)
}

func TestJobStore_FailRecordsError(t *testing.T) {
	store := New(nil)
	ctx := context.Background()

	job, err := store.Create(ctx, validRequest(model.JobTypeMeasurementPlan))
	require.NoError(t, err)
	_, err = store.ClaimNextPending(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Fail(ctx, job.ID, "upstream timed out after 3 attempts"))

	got, err := store.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, "upstream timed out after 3 attempts", *got.Error)
	assert.Nil(t, got.ResultData)
}

func TestJobStore_DeleteTerminalOlderThan(t *testing.T) {
	tp := data.NewFixedTimeProvider(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	store := New(tp)
	ctx := context.Background()

	// One terminal old job, one terminal fresh job, one stuck processing job.
	oldJob, err := store.Create(ctx, validRequest(model.JobTypeEvaluationPlan))
	require.NoError(t, err)
	_, err = store.ClaimNextPending(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Complete(ctx, oldJob.ID, "done"))

	stuck, err := store.Create(ctx, validRequest(model.JobTypeLogicModel))
	require.NoError(t, err)
	_, err = store.ClaimNextPending(ctx)
	require.NoError(t, err)

	tp.AddTime(12 * time.Hour)

	fresh, err := store.Create(ctx, validRequest(model.JobTypeEvaluationPlan))
	require.NoError(t, err)
	_, err = store.ClaimNextPending(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Fail(ctx, fresh.ID, "nope"))

	cutoff := tp.Now().Add(-6 * time.Hour)
	deleted, err := store.DeleteTerminalOlderThan(ctx, cutoff, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	// The stuck processing job outlived the cutoff but is never deleted.
	_, err = store.GetByID(ctx, stuck.ID)
	require.NoError(t, err)
	_, err = store.GetByID(ctx, fresh.ID)
	require.NoError(t, err)
	_, err = store.GetByID(ctx, oldJob.ID)
	require.ErrorIs(t, err, data.ErrJobNotFound)

	// Idempotent: a second sweep with no new terminal jobs deletes nothing.
	deleted, err = store.DeleteTerminalOlderThan(ctx, cutoff, 100)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestJobStore_Stats(t *testing.T) {
	store := New(nil)
	ctx := context.Background()

	for range 3 {
		_, err := store.Create(ctx, validRequest(model.JobTypeEvaluationPlan))
		require.NoError(t, err)
	}
	claimed, err := store.ClaimNextPending(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Complete(ctx, claimed.ID, "ok"))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Pending)
	assert.Equal(t, 0, stats.Processing)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 0, stats.Failed)
}
