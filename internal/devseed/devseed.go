// Package devseed populates a development database with representative jobs
// so the HTTP API and worker have something to chew on locally.
package devseed

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/planlab/evalplan-api/internal/core"
	"github.com/planlab/evalplan-api/internal/data"
	"github.com/planlab/evalplan-api/internal/domain/model"
)

// Services bundles the dependencies needed for development seeding.
type Services struct {
	DB   *sql.DB
	jobs core.JobRepository
}

// NewServices constructs the repositories used for seeding against the provided DB.
func NewServices(db *sql.DB) Services {
	return Services{
		DB:   db,
		jobs: data.NewJobRepo(db, data.RepoConfig{}),
	}
}

type seedJob struct {
	jobType model.JobType
	prompt  string
	// outcome decides the seeded terminal state: "", "completed", or "failed".
	outcome string
	result  string
	errText string
}

func seedJobs() []seedJob {
	return []seedJob{
		{
			jobType: model.JobTypeEvaluationPlan,
			prompt:  "Draft an evaluation plan for a youth literacy program serving 200 students.",
			outcome: "completed",
			result: "## Evaluation Plan\n\n### Goals\nImprove reading proficiency by one grade level.\n\n" +
				"### Indicators\nPre/post reading assessments, attendance rates.\n\n### Methods\nQuarterly assessments with a comparison cohort.",
		},
		{
			jobType: model.JobTypeLogicModel,
			prompt:  "Build a logic model for a community food bank expansion.",
			outcome: "completed",
			result: "## Logic Model\n\nInputs: staff, warehouse, donations.\nActivities: distribution, outreach.\n" +
				"Outputs: meals served.\nOutcomes: reduced food insecurity.",
		},
		{
			jobType: model.JobTypeMeasurementPlan,
			prompt:  "Create a measurement plan for a job training program's employment outcomes.",
			outcome: "failed",
			errText: "upstream status 503",
		},
		{
			jobType: model.JobTypeEvaluationPlan,
			prompt:  "Draft an evaluation plan for a senior wellness initiative.",
		},
		{
			jobType: model.JobTypeLogicModel,
			prompt:  "Build a logic model for an after-school STEM mentorship program.",
		},
	}
}

// Run executes the full development seeding workflow against the provided DB.
func Run(ctx context.Context, svcs Services, logger *slog.Logger) error {
	seeded := 0
	for _, s := range seedJobs() {
		if err := seedOne(ctx, svcs.jobs, s); err != nil {
			if logger != nil {
				logger.WarnContext(ctx, "failed to seed job", "job_type", s.jobType, "error", err)
			}
			continue
		}
		seeded++
	}

	if logger != nil {
		logger.InfoContext(ctx, "development seed complete", "jobs_seeded", seeded)
	}
	return nil
}

func seedOne(ctx context.Context, jobs core.JobRepository, s seedJob) error {
	input, err := json.Marshal(model.JobInput{
		Messages: []model.Message{{Role: "user", Content: s.prompt}},
	})
	if err != nil {
		return fmt.Errorf("marshal input: %w", err)
	}

	job, err := jobs.Create(ctx, &model.CreateJobRequest{
		Type:      s.jobType,
		InputData: input,
	})
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}

	if s.outcome == "" {
		return nil
	}

	// Drive the job through the claim path so seeded terminal jobs took the
	// same transitions real ones do.
	claimed, err := jobs.ClaimNextPending(ctx)
	if err != nil {
		return fmt.Errorf("claim seeded job: %w", err)
	}
	if claimed.ID != job.ID {
		return fmt.Errorf("claimed job %d while seeding job %d; database not empty", claimed.ID, job.ID)
	}

	switch s.outcome {
	case "completed":
		if err := jobs.Complete(ctx, job.ID, s.result); err != nil {
			return fmt.Errorf("complete seeded job: %w", err)
		}
	case "failed":
		if err := jobs.Fail(ctx, job.ID, s.errText); err != nil {
			return fmt.Errorf("fail seeded job: %w", err)
		}
	default:
		return fmt.Errorf("unknown seed outcome %q", s.outcome)
	}
	return nil
}
