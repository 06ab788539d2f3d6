// Package workflowtest provides end-to-end testing utilities for the evalplan job system.
package workflowtest

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/planlab/evalplan-api/internal/core"
	"github.com/planlab/evalplan-api/internal/data"
	"github.com/planlab/evalplan-api/internal/domain/model"
	httpx "github.com/planlab/evalplan-api/internal/http"
	"github.com/planlab/evalplan-api/internal/service"
	"github.com/planlab/evalplan-api/internal/testutil"
)

// Harness wires a real database, the job repository, the job service, and an
// HTTP test server so workflow tests can drive the system through its public
// surface. Tests skip automatically when no test database is available.
type Harness struct {
	t  testutil.TestingTB
	db *sql.DB
	ts *httptest.Server

	JobRepo core.JobRepository
	JobSvc  *service.JobService
}

// NewHarness builds a harness backed by the shared (or ephemeral) test database.
func NewHarness(t testutil.TestingTB) *Harness {
	t.Helper()

	db := testutil.SetupAutoDB(t)
	repo := data.NewJobRepo(db, data.RepoConfig{})

	svc, err := service.NewJobService(service.JobServiceOptions{Repo: repo})
	if err != nil {
		t.Fatalf("Failed to build job service: %v", err)
	}

	router := httpx.NewRouter(httpx.RouterServices{
		Jobs:         svc,
		MaxBodyBytes: 1 << 20,
	})

	h := &Harness{
		t:       t,
		db:      db,
		ts:      httptest.NewServer(router),
		JobRepo: repo,
		JobSvc:  svc,
	}
	if tc, ok := any(t).(interface{ Cleanup(func()) }); ok {
		tc.Cleanup(h.Close)
	}
	return h
}

// Close shuts down the HTTP server. Database teardown is handled by SetupAutoDB.
func (h *Harness) Close() {
	if h.ts != nil {
		h.ts.Close()
	}
}

// BaseURL returns the test server's base URL.
func (h *Harness) BaseURL() string {
	return h.ts.URL
}

// DB exposes the underlying database handle for direct assertions.
func (h *Harness) DB() *sql.DB {
	return h.db
}

// SubmitJob posts a job creation request and returns the decoded response.
func (h *Harness) SubmitJob(req *model.CreateJobRequest) model.SubmitJobResponse {
	h.t.Helper()

	body, err := json.Marshal(req)
	if err != nil {
		h.t.Fatalf("Failed to marshal job request: %v", err)
	}

	resp, err := http.Post(h.ts.URL+"/api/jobs", "application/json", bytes.NewReader(body))
	if err != nil {
		h.t.Fatalf("Failed to submit job: %v", err)
	}
	defer closeBody(h.t, resp.Body)

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		h.t.Fatalf("Job submission returned %d: %s", resp.StatusCode, raw)
	}

	var out model.SubmitJobResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&out); decodeErr != nil {
		h.t.Fatalf("Failed to decode submit response: %v", decodeErr)
	}
	return out
}

// GetJobStatus fetches the polling snapshot for a job via the HTTP API.
func (h *Harness) GetJobStatus(id int64) model.JobStatusResponse {
	h.t.Helper()

	resp, err := http.Get(fmt.Sprintf("%s/api/jobs/%d", h.ts.URL, id))
	if err != nil {
		h.t.Fatalf("Failed to get job status: %v", err)
	}
	defer closeBody(h.t, resp.Body)

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		h.t.Fatalf("Job status returned %d: %s", resp.StatusCode, raw)
	}

	var out model.JobStatusResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&out); decodeErr != nil {
		h.t.Fatalf("Failed to decode status response: %v", decodeErr)
	}
	return out
}

// GetStats fetches the per-status job counts via the HTTP API.
func (h *Harness) GetStats() model.JobStats {
	h.t.Helper()

	resp, err := http.Get(h.ts.URL + "/api/jobs/stats")
	if err != nil {
		h.t.Fatalf("Failed to get job stats: %v", err)
	}
	defer closeBody(h.t, resp.Body)

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		h.t.Fatalf("Job stats returned %d: %s", resp.StatusCode, raw)
	}

	var out model.JobStats
	if decodeErr := json.NewDecoder(resp.Body).Decode(&out); decodeErr != nil {
		h.t.Fatalf("Failed to decode stats response: %v", decodeErr)
	}
	return out
}

// ProcessNextJob claims the oldest pending job and completes it with the given
// result, standing in for a worker tick.
func (h *Harness) ProcessNextJob(ctx context.Context, result string) *model.Job {
	h.t.Helper()

	job, err := h.JobRepo.ClaimNextPending(ctx)
	if err != nil {
		h.t.Fatalf("Failed to claim pending job: %v", err)
	}
	if completeErr := h.JobRepo.Complete(ctx, job.ID, result); completeErr != nil {
		h.t.Fatalf("Failed to complete job %d: %v", job.ID, completeErr)
	}
	return job
}

// FailNextJob claims the oldest pending job and fails it with the given error text.
func (h *Harness) FailNextJob(ctx context.Context, errText string) *model.Job {
	h.t.Helper()

	job, err := h.JobRepo.ClaimNextPending(ctx)
	if err != nil {
		h.t.Fatalf("Failed to claim pending job: %v", err)
	}
	if failErr := h.JobRepo.Fail(ctx, job.ID, errText); failErr != nil {
		h.t.Fatalf("Failed to fail job %d: %v", job.ID, failErr)
	}
	return job
}

// WaitForJobStatus polls the HTTP API until the job reaches the wanted status
// or the timeout expires.
func (h *Harness) WaitForJobStatus(id int64, want model.JobStatus, timeout time.Duration) model.JobStatusResponse {
	h.t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		got := h.GetJobStatus(id)
		if got.Status == want {
			return got
		}
		if time.Now().After(deadline) {
			h.t.Fatalf("Job %d did not reach status %s within %v (last: %s)", id, want, timeout, got.Status)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func closeBody(t testutil.TestingTB, body io.Closer) {
	if err := body.Close(); err != nil {
		t.Logf("warning: failed to close response body: %v", err)
	}
}
