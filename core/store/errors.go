package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// TransientError wraps a store failure the driver retries: connection loss,
// insufficient resources, operator intervention or query cancellation, and
// context deadlines or cancellation. The driver type-switches on this via
// errors.As.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return "store: transient: " + e.Op + ": " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// ConstraintError wraps a unique/check/foreign-key constraint violation.
// It is always fatal: the reducer or points engine violated a state
// invariant and must not be auto-healed.
type ConstraintError struct {
	Op  string
	Err error
}

func (e *ConstraintError) Error() string {
	return "store: constraint violation: " + e.Op + ": " + e.Err.Error()
}
func (e *ConstraintError) Unwrap() error { return e.Err }

// classify wraps err as a TransientError or ConstraintError based on the
// underlying pgx/Postgres error class, or returns err unchanged if it
// doesn't match a known class (callers should then treat it as fatal).
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &TransientError{Op: op, Err: err}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code[:2] {
		case "23": // integrity_constraint_violation
			return &ConstraintError{Op: op, Err: err}
		case "08", "53", "57": // connection, insufficient resources, operator intervention
			return &TransientError{Op: op, Err: err}
		}
	}
	return err
}
