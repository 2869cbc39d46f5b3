package completion

import (
	"errors"
	"fmt"
)

// StoreUnavailableError reports a KV transport failure. It is retryable:
// the caller may retry the whole operation, but must never assume
// partial completion (a failed batch means the entire batch failed).
type StoreUnavailableError struct {
	// Op names the failed store operation ("exists", "batch-exists",
	// "append-log", "read-log", "commit", "revert").
	Op string

	// Err is the underlying transport error.
	Err error
}

// Error implements the error interface.
func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("store unavailable during %s: %v", e.Op, e.Err)
}

// Unwrap exposes the transport error for errors.Is/As chains.
func (e *StoreUnavailableError) Unwrap() error {
	return e.Err
}

// IsUnavailable returns true if the error is a store transport failure.
// Uses errors.As to handle wrapped errors.
func IsUnavailable(err error) bool {
	var se *StoreUnavailableError
	return errors.As(err, &se)
}

func unavailable(op string, err error) *StoreUnavailableError {
	return &StoreUnavailableError{Op: op, Err: err}
}
