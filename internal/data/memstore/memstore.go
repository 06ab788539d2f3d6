// Package memstore provides an in-memory JobRepository for zero-config mode.
// It enforces the same state machine and claim exclusivity as the Postgres
// store; only the durability guarantee differs.
package memstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/planlab/evalplan-api/internal/data"
	"github.com/planlab/evalplan-api/internal/domain/model"
)

// JobStore is an in-memory implementation of core.JobRepository.
// Safe for concurrent use; claim exclusivity is provided by the store mutex
// rather than row locks, which is sufficient within a single process.
type JobStore struct {
	mu           sync.Mutex
	jobs         map[int64]*model.Job
	nextID       int64
	timeProvider data.TimeProvider
}

// New creates an empty JobStore. A nil TimeProvider defaults to system time.
func New(tp data.TimeProvider) *JobStore {
	if tp == nil {
		tp = &data.RealTimeProvider{}
	}
	return &JobStore{
		jobs:         make(map[int64]*model.Job),
		nextID:       1,
		timeProvider: tp,
	}
}

// Create validates and inserts a new job with status pending.
func (s *JobStore) Create(_ context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	job := &model.Job{
		ID:        s.nextID,
		Type:      req.Type,
		Status:    model.JobStatusPending,
		InputData: append(json.RawMessage(nil), req.InputData...),
		CreatedAt: s.timeProvider.Now().UTC(),
	}
	s.nextID++
	s.jobs[job.ID] = job

	return cloneJob(job), nil
}

// ClaimNextPending flips the oldest pending job to processing.
func (s *JobStore) ClaimNextPending(_ context.Context) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var oldest *model.Job
	for _, j := range s.jobs {
		if j.Status != model.JobStatusPending {
			continue
		}
		if oldest == nil || j.CreatedAt.Before(oldest.CreatedAt) ||
			(j.CreatedAt.Equal(oldest.CreatedAt) && j.ID < oldest.ID) {
			oldest = j
		}
	}
	if oldest == nil {
		return nil, model.ErrNoJobsAvailable
	}

	oldest.Status = model.JobStatusProcessing
	return cloneJob(oldest), nil
}

// Complete transitions a processing job to completed.
func (s *JobStore) Complete(_ context.Context, id int64, result string) error {
	return s.finalize(id, model.JobStatusCompleted, result)
}

// Fail transitions a processing job to failed.
func (s *JobStore) Fail(_ context.Context, id int64, errText string) error {
	return s.finalize(id, model.JobStatusFailed, errText)
}

func (s *JobStore) finalize(id int64, status model.JobStatus, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return data.ErrJobNotFound
	}
	if job.Status != model.JobStatusProcessing {
		return data.ErrInvalidJobState
	}

	now := s.timeProvider.Now().UTC()
	job.Status = status
	job.CompletedAt = &now
	if status == model.JobStatusCompleted {
		job.ResultData = &text
	} else {
		job.Error = &text
	}
	return nil
}

// GetByID retrieves a job by its ID.
func (s *JobStore) GetByID(_ context.Context, id int64) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, data.ErrJobNotFound
	}
	return cloneJob(job), nil
}

// DeleteTerminalOlderThan deletes terminal jobs whose completed_at precedes the cutoff.
func (s *JobStore) DeleteTerminalOlderThan(
	_ context.Context,
	cutoff time.Time,
	batchSize int,
) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var eligible []*model.Job
	for _, j := range s.jobs {
		if j.Status.Terminal() && j.CompletedAt != nil && j.CompletedAt.Before(cutoff) {
			eligible = append(eligible, j)
		}
	}
	sort.Slice(eligible, func(i, k int) bool {
		return eligible[i].CompletedAt.Before(*eligible[k].CompletedAt)
	})
	if batchSize > 0 && len(eligible) > batchSize {
		eligible = eligible[:batchSize]
	}

	for _, j := range eligible {
		delete(s.jobs, j.ID)
	}
	return int64(len(eligible)), nil
}

// Stats returns counts of jobs in each state.
func (s *JobStore) Stats(_ context.Context) (*model.JobStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st model.JobStats
	for _, j := range s.jobs {
		switch j.Status {
		case model.JobStatusPending:
			st.Pending++
		case model.JobStatusProcessing:
			st.Processing++
		case model.JobStatusCompleted:
			st.Completed++
		case model.JobStatusFailed:
			st.Failed++
		}
	}
	return &st, nil
}

// Health always succeeds for the in-memory store.
func (s *JobStore) Health(_ context.Context) error {
	return nil
}

func cloneJob(j *model.Job) *model.Job {
	out := *j
	out.InputData = append(json.RawMessage(nil), j.InputData...)
	if j.ResultData != nil {
		v := *j.ResultData
		out.ResultData = &v
	}
	if j.Error != nil {
		v := *j.Error
		out.Error = &v
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}
