package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/planlab/evalplan-api/internal/data/pgxutil"
)

// Advisory lock namespace for sweeper operations.
// Using two-arg pg_try_advisory_xact_lock(major, minor) for proper namespacing.
const (
	advisoryLockSweeperMajor  = 900
	advisoryLockSweeperDelete = 1 // minor key for DeleteTerminalOlderThan
)

// DeleteTerminalOlderThan deletes completed and failed jobs whose completed_at
// precedes the cutoff. Pending and processing jobs are never eligible.
// Processes up to batchSize jobs per call to prevent long locks and I/O spikes.
// Uses advisory locks so concurrent sweeper instances do not conflict.
// Returns the number of jobs deleted; the operation is idempotent.
func (r *JobRepo) DeleteTerminalOlderThan(
	ctx context.Context,
	cutoff time.Time,
	batchSize int,
) (int64, error) {
	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)", advisoryLockSweeperMajor, advisoryLockSweeperDelete).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				rowsAffected = 0
				return nil
			}

			res, err := tx.ExecContext(ctx, `
				DELETE FROM jobs
				WHERE id IN (
					SELECT id FROM jobs
					WHERE status IN ('completed', 'failed')
					  AND completed_at < $1
					ORDER BY completed_at
					LIMIT $2
				)
			`, cutoff.UTC(), batchSize)
			if err != nil {
				return fmt.Errorf("delete terminal jobs: %w", err)
			}

			ra, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			rowsAffected = ra
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	return rowsAffected, nil
}
