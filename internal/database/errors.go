package database

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// PersistenceError is returned for any store failure. Code carries the
// SQLSTATE when the server reported one.
type PersistenceError struct {
	Op   string
	Code string
	Err  error
}

func (e *PersistenceError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("persistence %s failed (%s): %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("persistence %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func persistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *PersistenceError
	if errors.As(err, &existing) {
		return err
	}
	pe := &PersistenceError{Op: op, Err: err}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		pe.Code = pgErr.Code
	}
	return pe
}
