package data

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/planlab/evalplan-api/internal/domain/model"
)

var (
	// ErrJobNotFound is returned when a job id does not exist.
	ErrJobNotFound = errors.New("job not found")
	// ErrInvalidJobState is returned when a transition is attempted on a job
	// that is not in the required state. This indicates a bug in the caller,
	// not a normal operational condition.
	ErrInvalidJobState = errors.New("job is not in a valid state for this transition")
)

// classifyPgError maps Postgres integrity violations onto the validation
// sentinel so bad data surfaces as a caller error rather than a 500.
func classifyPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgerrcode.IsIntegrityConstraintViolation(pgErr.Code) {
		return errors.Join(model.ErrValidation, err)
	}
	return err
}
