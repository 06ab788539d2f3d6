// Package model defines the core data types and structures used throughout the evalplan job system.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobType represents the kind of evaluation artifact a job produces.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobType string

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobTypeEvaluationPlan produces a full program evaluation plan.
	JobTypeEvaluationPlan JobType = "evaluation_plan"
	// JobTypeLogicModel produces a program logic model.
	JobTypeLogicModel JobType = "logic_model"
	// JobTypeMeasurementPlan produces an outcome measurement plan.
	JobTypeMeasurementPlan JobType = "measurement_plan"

	// JobStatusPending indicates a job is waiting to be claimed.
	JobStatusPending JobStatus = "pending"
	// JobStatusProcessing indicates a job has been claimed by a worker.
	JobStatusProcessing JobStatus = "processing"
	// JobStatusCompleted indicates a job has finished successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates a job has failed terminally.
	JobStatusFailed JobStatus = "failed"
)

// UnmarshalText implements encoding.TextUnmarshaler for JobType. It only
// normalizes; encoding/json also routes through here, so rejecting unknown
// values would surface as a decode error before CreateJobRequest.Validate
// gets to report them as validation failures. Valid remains the sole gate.
func (t *JobType) UnmarshalText(text []byte) error {
	*t = JobType(strings.ToLower(strings.TrimSpace(string(text))))
	return nil
}

// ErrNoJobsAvailable is returned when no pending job exists to claim.
var ErrNoJobsAvailable = errors.New("no jobs available")

// ErrValidation is the sentinel wrapped by all submission validation failures.
var ErrValidation = errors.New("validation failed")

// Valid returns true if the JobType is valid.
func (t JobType) Valid() bool {
	return t == JobTypeEvaluationPlan || t == JobTypeLogicModel || t == JobTypeMeasurementPlan
}

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	return s == JobStatusPending || s == JobStatusProcessing || s == JobStatusCompleted ||
		s == JobStatusFailed
}

// Terminal returns true once no further status transition is permitted.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Message is one entry in a job's ordered conversation payload.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// JobInput is the structured payload submitted with a job.
type JobInput struct {
	Messages []Message `json:"messages"`
}

// Job represents one unit of asynchronous text-generation work.
type Job struct {
	ID          int64           `json:"id"                     db:"id"`
	Type        JobType         `json:"job_type"               db:"job_type"`
	Status      JobStatus       `json:"status"                 db:"status"`
	InputData   json.RawMessage `json:"input_data"             db:"input_data"`
	ResultData  *string         `json:"result,omitempty"       db:"result_data"`
	Error       *string         `json:"error,omitempty"        db:"error"`
	CreatedAt   time.Time       `json:"created_at"             db:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
}

// Input decodes the job's stored payload.
func (j *Job) Input() (JobInput, error) {
	var in JobInput
	if err := json.Unmarshal(j.InputData, &in); err != nil {
		return JobInput{}, fmt.Errorf("decode input_data: %w", err)
	}
	return in, nil
}

// CreateJobRequest represents a request to create a new job.
type CreateJobRequest struct {
	Type      JobType         `json:"job_type"`
	InputData json.RawMessage `json:"input_data"`
}

// Validate checks the request shape. Failures wrap ErrValidation so callers
// can distinguish bad submissions from infrastructure errors.
func (r *CreateJobRequest) Validate() error {
	if !r.Type.Valid() {
		return fmt.Errorf("%w: unrecognized job_type %q", ErrValidation, string(r.Type))
	}
	if len(r.InputData) == 0 {
		return fmt.Errorf("%w: input_data is required", ErrValidation)
	}

	var in JobInput
	if err := json.Unmarshal(r.InputData, &in); err != nil {
		return fmt.Errorf("%w: input_data is not valid JSON: %v", ErrValidation, err)
	}
	if len(in.Messages) == 0 {
		return fmt.Errorf("%w: input_data.messages must be a non-empty array", ErrValidation)
	}
	for i, m := range in.Messages {
		if strings.TrimSpace(m.Role) == "" {
			return fmt.Errorf("%w: messages[%d].role is required", ErrValidation, i)
		}
		if m.Content == "" {
			return fmt.Errorf("%w: messages[%d].content is required", ErrValidation, i)
		}
	}
	return nil
}

// JobStats represents counts of jobs in each state.
type JobStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// SubmitJobResponse is returned immediately on enqueue.
type SubmitJobResponse struct {
	Success   bool      `json:"success"`
	JobID     int64     `json:"job_id"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// JobStatusResponse is the polling snapshot for a single job.
type JobStatusResponse struct {
	ID          int64      `json:"id"`
	Type        JobType    `json:"job_type"`
	Status      JobStatus  `json:"status"`
	Result      *string    `json:"result,omitempty"`
	Error       *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// StatusResponseFor builds the polling snapshot from a job record.
func StatusResponseFor(j *Job) JobStatusResponse {
	return JobStatusResponse{
		ID:          j.ID,
		Type:        j.Type,
		Status:      j.Status,
		Result:      j.ResultData,
		Error:       j.Error,
		CreatedAt:   j.CreatedAt,
		CompletedAt: j.CompletedAt,
	}
}
