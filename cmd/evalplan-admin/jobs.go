package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/planlab/evalplan-api/internal/bootstrap"
	"github.com/planlab/evalplan-api/internal/data"
	"github.com/planlab/evalplan-api/internal/devseed"
	"github.com/planlab/evalplan-api/internal/util"
)

type migrateOptions struct {
	Timeout time.Duration
}

func parseMigrateFlags(args []string) (migrateOptions, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	opts := migrateOptions{}
	fs.DurationVar(&opts.Timeout, "timeout", 5*time.Minute, "maximum time to wait for migrations")
	if err := fs.Parse(args); err != nil {
		return opts, fmt.Errorf("parse migrate flags: %w", err)
	}
	return opts, nil
}

func runMigrateCommand(cmdCtx *commandContext, args []string) error {
	opts, err := parseMigrateFlags(args)
	if err != nil {
		return err
	}
	return withDB(cmdCtx, opts.Timeout, func(ctx context.Context, db *sql.DB) error {
		return bootstrap.RunMigrations(ctx, db, cmdCtx.Logger)
	})
}

func runDBSeed(cmdCtx *commandContext, args []string) error {
	opts, err := parseMigrateFlags(args)
	if err != nil {
		return err
	}
	return withDB(cmdCtx, opts.Timeout, func(ctx context.Context, db *sql.DB) error {
		if migrateErr := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); migrateErr != nil {
			return migrateErr
		}
		return devseed.Run(ctx, devseed.NewServices(db), cmdCtx.Logger)
	})
}

func runStats(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse stats flags: %w", err)
	}

	return withDB(cmdCtx, 0, func(ctx context.Context, db *sql.DB) error {
		repo := data.NewJobRepo(db, data.RepoConfig{Logger: cmdCtx.Logger})
		stats, err := repo.Stats(ctx)
		if err != nil {
			return fmt.Errorf("load job stats: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "STATUS\tCOUNT")
		fmt.Fprintf(w, "pending\t%d\n", stats.Pending)
		fmt.Fprintf(w, "processing\t%d\n", stats.Processing)
		fmt.Fprintf(w, "completed\t%d\n", stats.Completed)
		fmt.Fprintf(w, "failed\t%d\n", stats.Failed)
		return w.Flush()
	})
}

type listJobsOptions struct {
	Limit  int
	Status string
}

func parseListJobsFlags(args []string) (listJobsOptions, error) {
	fs := flag.NewFlagSet("jobs", flag.ContinueOnError)
	opts := listJobsOptions{}
	fs.IntVar(&opts.Limit, "limit", 20, "maximum number of jobs to list")
	fs.StringVar(&opts.Status, "status", "", "filter by status (pending, processing, completed, failed)")
	if err := fs.Parse(args); err != nil {
		return opts, fmt.Errorf("parse jobs flags: %w", err)
	}
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	return opts, nil
}

type jobRow struct {
	ID          int64
	Type        string
	Status      string
	CreatedAt   time.Time
	CompletedAt *time.Time
}

func runListJobs(cmdCtx *commandContext, args []string) error {
	opts, err := parseListJobsFlags(args)
	if err != nil {
		return err
	}

	return withDB(cmdCtx, 0, func(ctx context.Context, db *sql.DB) error {
		rows, err := queryJobRows(ctx, db, opts)
		if err != nil {
			return err
		}
		return printJobRows(rows)
	})
}

func queryJobRows(ctx context.Context, db *sql.DB, opts listJobsOptions) ([]jobRow, error) {
	query := `
		SELECT id, job_type, status, created_at, completed_at
		FROM jobs`
	queryArgs := []any{}
	if opts.Status != "" {
		query += " WHERE status = $1"
		queryArgs = append(queryArgs, opts.Status)
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d", opts.Limit)

	rows, err := db.QueryContext(ctx, query, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []jobRow
	for rows.Next() {
		var r jobRow
		if scanErr := rows.Scan(&r.ID, &r.Type, &r.Status, &r.CreatedAt, &r.CompletedAt); scanErr != nil {
			return nil, fmt.Errorf("scan job row: %w", scanErr)
		}
		out = append(out, r)
	}
	if iterErr := rows.Err(); iterErr != nil {
		return nil, fmt.Errorf("iterate job rows: %w", iterErr)
	}
	return out, nil
}

func printJobRows(jobs []jobRow) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tCREATED\tDURATION")
	for _, j := range jobs {
		duration := time.Duration(0)
		if j.CompletedAt != nil {
			duration = j.CompletedAt.Sub(j.CreatedAt)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			j.ID,
			j.Type,
			j.Status,
			j.CreatedAt.Format(time.RFC3339),
			util.FormatProcessingDuration(duration),
		)
	}
	return w.Flush()
}

type sweepOptions struct {
	Retention time.Duration
	BatchSize int
	Yes       bool
}

func parseSweepFlags(args []string) (sweepOptions, error) {
	fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
	opts := sweepOptions{}
	fs.DurationVar(&opts.Retention, "retention", 6*time.Hour, "delete terminal jobs older than this")
	fs.IntVar(&opts.BatchSize, "batch", 1000, "delete batch size")
	fs.BoolVar(&opts.Yes, "yes", false, "confirm deletion")
	if err := fs.Parse(args); err != nil {
		return opts, fmt.Errorf("parse sweep flags: %w", err)
	}
	return opts, nil
}

func runSweep(cmdCtx *commandContext, args []string) error {
	opts, err := parseSweepFlags(args)
	if err != nil {
		return err
	}
	if confirmErr := confirm(opts.Yes, "delete terminal jobs"); confirmErr != nil {
		return confirmErr
	}

	return withDB(cmdCtx, 0, func(ctx context.Context, db *sql.DB) error {
		repo := data.NewJobRepo(db, data.RepoConfig{Logger: cmdCtx.Logger})
		cutoff := time.Now().Add(-opts.Retention)

		var total int64
		for {
			deleted, err := repo.DeleteTerminalOlderThan(ctx, cutoff, opts.BatchSize)
			if err != nil {
				return fmt.Errorf("delete terminal jobs: %w", err)
			}
			total += deleted
			if deleted == 0 {
				break
			}
		}

		cmdCtx.Logger.InfoContext(ctx, "sweep complete", "jobs_deleted", total, "cutoff", cutoff)
		return nil
	})
}
