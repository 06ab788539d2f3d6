package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/planlab/evalplan-api/internal/domain/model"
)

// SQL used by ClaimNextPending to atomically claim the oldest pending job.
// FOR UPDATE SKIP LOCKED guarantees concurrent claimers never select the same
// row, across any number of worker processes.
const claimNextUpdateSQL = `
  WITH cte AS (
    SELECT id FROM jobs
    WHERE status = 'pending'
    ORDER BY created_at ASC, id ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
  )
  UPDATE jobs j
  SET status = 'processing'
  FROM cte
  WHERE j.id = cte.id
  RETURNING j.id, j.job_type, j.status, j.input_data, j.result_data, j.error, j.created_at, j.completed_at`

// Create validates and inserts a new job. The job always starts pending.
func (r *JobRepo) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if req == nil {
		return nil, errors.New("create job request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	row := r.DB.QueryRowContext(ctx, `
      INSERT INTO jobs (job_type, status, input_data, created_at)
      VALUES ($1, 'pending', $2, $3)
      RETURNING `+jobColumns,
		req.Type, []byte(req.InputData), r.timeProvider.Now().UTC())

	job, err := scanJobFromRow(row)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", classifyPgError(err))
	}
	return job, nil
}

// ClaimNextPending atomically claims the oldest pending job for processing.
func (r *JobRepo) ClaimNextPending(ctx context.Context) (*model.Job, error) {
	row := r.DB.QueryRowContext(ctx, claimNextUpdateSQL)

	job, err := scanJobFromRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNoJobsAvailable
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

// Complete marks a processing job as completed and records its result text.
func (r *JobRepo) Complete(ctx context.Context, id int64, result string) error {
	return r.finalize(ctx, finalizeParams{
		id:     id,
		status: model.JobStatusCompleted,
		query: `
			UPDATE jobs
			SET status = 'completed',
			    result_data = $2,
			    completed_at = $3
			WHERE id = $1 AND status = 'processing'
		`,
		text: result,
	})
}

// Fail marks a processing job as failed and records the error text.
func (r *JobRepo) Fail(ctx context.Context, id int64, errText string) error {
	return r.finalize(ctx, finalizeParams{
		id:     id,
		status: model.JobStatusFailed,
		query: `
			UPDATE jobs
			SET status = 'failed',
			    error = $2,
			    completed_at = $3
			WHERE id = $1 AND status = 'processing'
		`,
		text: errText,
	})
}

type finalizeParams struct {
	id     int64
	status model.JobStatus
	query  string
	text   string
}

// finalize applies a terminal transition guarded on the processing state.
// Zero rows affected means either the job is gone or the caller raced the
// state machine; the second case is a bug and is logged loudly.
func (r *JobRepo) finalize(ctx context.Context, p finalizeParams) error {
	res, err := r.DB.ExecContext(ctx, p.query, p.id, p.text, r.timeProvider.Now().UTC())
	if err != nil {
		return fmt.Errorf("%s job: %w", p.status, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s job rows affected: %w", p.status, err)
	}
	if rowsAffected > 0 {
		return nil
	}

	if _, getErr := r.GetByID(ctx, p.id); getErr != nil {
		return getErr
	}

	if r.logger != nil {
		r.logger.ErrorContext(ctx, "illegal job state transition rejected",
			"job_id", p.id,
			"target_status", p.status,
		)
	}
	return ErrInvalidJobState
}

// GetByID retrieves a job by its ID.
func (r *JobRepo) GetByID(ctx context.Context, id int64) (*model.Job, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE id = $1
	`, id)

	job, err := scanJobFromRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Stats returns counts of jobs in each state.
func (r *JobRepo) Stats(ctx context.Context) (*model.JobStats, error) {
	var s model.JobStats
	err := r.DB.QueryRowContext(ctx, `
  SELECT
    count(*) FILTER (WHERE status = 'pending')    AS pending,
    count(*) FILTER (WHERE status = 'processing') AS processing,
    count(*) FILTER (WHERE status = 'completed')  AS completed,
    count(*) FILTER (WHERE status = 'failed')     AS failed
  FROM jobs
  `).Scan(
		&s.Pending,
		&s.Processing,
		&s.Completed,
		&s.Failed,
	)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	return &s, nil
}

// Health verifies the store is reachable with a trivial query.
func (r *JobRepo) Health(ctx context.Context) error {
	var one int
	if err := r.DB.QueryRowContext(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("store health: %w", err)
	}
	return nil
}

type jobRowScanner interface {
	Scan(dest ...any) error
}

type jobRowData struct {
	inputData           []byte
	resultData, errText sql.NullString
	completedAt         sql.NullTime
}

func (d *jobRowData) scanInto(scanner jobRowScanner, job *model.Job) error {
	return scanner.Scan(
		&job.ID,
		&job.Type,
		&job.Status,
		&d.inputData,
		&d.resultData,
		&d.errText,
		&job.CreatedAt,
		&d.completedAt,
	)
}

func (d *jobRowData) apply(job *model.Job) {
	job.InputData = cloneJSON(d.inputData)
	job.ResultData = cloneNullableString(d.resultData)
	job.Error = cloneNullableString(d.errText)
	job.CompletedAt = cloneNullableTime(d.completedAt)
}

func scanJobFromRow(scanner jobRowScanner) (*model.Job, error) {
	job := &model.Job{}
	var data jobRowData
	if err := data.scanInto(scanner, job); err != nil {
		return nil, err
	}

	data.apply(job)
	return job, nil
}

func cloneJSON(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	return append(json.RawMessage(nil), raw...)
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
