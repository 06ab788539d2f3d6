package workflowtest

import (
	"context"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/planlab/evalplan-api/internal/domain/model"
	"github.com/planlab/evalplan-api/internal/testutil"
)

func TestJobLifecycleViaHTTP(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	h := NewHarness(t)
	ctx := context.Background()

	created := h.SubmitJob(testutil.NewJobRequest().Build())
	if created.Status != model.JobStatusPending {
		t.Fatalf("expected pending after submit, got %s", created.Status)
	}

	claimed := h.ProcessNextJob(ctx, "## Evaluation Plan\n\nGoals, indicators, and data collection methods.")
	if claimed.ID != created.JobID {
		t.Fatalf("expected to claim job %d, claimed %d", created.JobID, claimed.ID)
	}

	status := h.GetJobStatus(created.JobID)
	if status.Status != model.JobStatusCompleted {
		t.Fatalf("expected completed, got %s", status.Status)
	}
	if status.Result == nil || *status.Result == "" {
		t.Fatal("expected non-empty result on completed job")
	}
	if status.CompletedAt == nil {
		t.Fatal("expected completed_at on completed job")
	}
}

func TestFailedJobSurfacesErrorViaHTTP(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	h := NewHarness(t)
	ctx := context.Background()

	created := h.SubmitJob(testutil.NewJobRequest().WithType(model.JobTypeLogicModel).Build())
	h.FailNextJob(ctx, "upstream status 503")

	status := h.GetJobStatus(created.JobID)
	if status.Status != model.JobStatusFailed {
		t.Fatalf("expected failed, got %s", status.Status)
	}
	if status.Error == nil || *status.Error != "upstream status 503" {
		t.Fatalf("expected error text to surface, got %v", status.Error)
	}
	if status.Result != nil {
		t.Fatalf("expected no result on failed job, got %q", *status.Result)
	}
}

func TestStatsReflectLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	h := NewHarness(t)
	ctx := context.Background()

	h.SubmitJob(testutil.NewJobRequest().Build())
	h.SubmitJob(testutil.NewJobRequest().WithType(model.JobTypeMeasurementPlan).Build())
	h.ProcessNextJob(ctx, "measurement plan draft")

	stats := h.GetStats()
	if stats.Pending != 1 {
		t.Errorf("expected 1 pending, got %d", stats.Pending)
	}
	if stats.Completed != 1 {
		t.Errorf("expected 1 completed, got %d", stats.Completed)
	}
	if stats.Processing != 0 || stats.Failed != 0 {
		t.Errorf("expected no processing/failed jobs, got %d/%d", stats.Processing, stats.Failed)
	}
}

func TestConcurrentSubmissionsAndClaims(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	h := NewHarness(t)
	ctx := context.Background()

	const jobCount = 8
	g, gctx := errgroup.WithContext(ctx)
	for range jobCount {
		g.Go(func() error {
			resp, err := h.JobSvc.Submit(gctx, testutil.NewJobRequest().Build())
			if err != nil {
				return err
			}
			if resp.Status != model.JobStatusPending {
				t.Errorf("expected pending after submit, got %s", resp.Status)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent submission failed: %v", err)
	}

	// Claims across goroutines must never hand out the same job twice.
	claimed := make(chan int64, jobCount)
	g, gctx = errgroup.WithContext(ctx)
	for range jobCount {
		g.Go(func() error {
			job, err := h.JobRepo.ClaimNextPending(gctx)
			if err != nil {
				return err
			}
			claimed <- job.ID
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent claim failed: %v", err)
	}
	close(claimed)

	seen := make(map[int64]bool, jobCount)
	for id := range claimed {
		if seen[id] {
			t.Fatalf("job %d claimed twice", id)
		}
		seen[id] = true
	}
	if len(seen) != jobCount {
		t.Fatalf("expected %d distinct claims, got %d", jobCount, len(seen))
	}

	stats := h.GetStats()
	if stats.Processing != jobCount {
		t.Errorf("expected %d processing, got %d", jobCount, stats.Processing)
	}
}
