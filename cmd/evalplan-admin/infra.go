package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/planlab/evalplan-api/config"
	"github.com/planlab/evalplan-api/internal/bootstrap"
)

const defaultCommandTimeout = 2 * time.Minute

// connectDB opens the database used by every admin command.
func connectDB(logger *slog.Logger, cfg *config.AppConfig) (*sql.DB, error) {
	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{
		DBConfig: cfg.Postgres,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	return db, nil
}

func closeDB(logger *slog.Logger, db *sql.DB) {
	if db == nil {
		return
	}
	if err := db.Close(); err != nil {
		logger.Warn("db close failed", "error", err)
	}
}

// withDB runs fn against a freshly opened database with a command timeout.
func withDB(cmdCtx *commandContext, timeout time.Duration, fn func(ctx context.Context, db *sql.DB) error) error {
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, timeout)
	defer cancel()

	db, err := connectDB(cmdCtx.Logger, &cmdCtx.Config)
	if err != nil {
		return err
	}
	defer closeDB(cmdCtx.Logger, db)

	return fn(ctx, db)
}

// confirm aborts unless the yes flag was passed.
func confirm(yes bool, action string) error {
	if yes {
		return nil
	}
	return errors.New("refusing to " + action + " without --yes")
}
