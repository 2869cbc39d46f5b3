package periodkey

import (
	"errors"
	"fmt"
)

// ValidationError reports a malformed input to the codec: a bad task ID,
// an invalid date, an unknown period, or a key that fails the grammar.
//
// Validation errors are the caller's fault (4xx-equivalent) and are
// never retryable.
type ValidationError struct {
	// Code identifies the error category.
	Code ValidationErrorCode

	// Field names the offending input ("period", "taskId", "date", "key").
	Field string

	// Value is the rejected input, truncated if oversized.
	Value string

	// Message is a human-readable description.
	Message string
}

// ValidationErrorCode categorizes codec validation errors.
type ValidationErrorCode string

const (
	// CodeBadPeriod indicates an unknown period token.
	CodeBadPeriod ValidationErrorCode = "BAD_PERIOD"

	// CodeBadTaskID indicates an empty, oversized, or ill-charactered task ID.
	CodeBadTaskID ValidationErrorCode = "BAD_TASK_ID"

	// CodeBadDate indicates a zero, unrepresentable, or disallowed-future date.
	CodeBadDate ValidationErrorCode = "BAD_DATE"

	// CodeBadKey indicates a key that fails structural decomposition.
	CodeBadKey ValidationErrorCode = "BAD_KEY"

	// CodeKeyTooLong indicates a generated key exceeding MaxKeyLength.
	// This is a defensive bound, not a business rule.
	CodeKeyTooLong ValidationErrorCode = "KEY_TOO_LONG"
)

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s %q: %s", e.Code, e.Field, e.Value, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsValidation returns true if the error is a codec validation error.
// Uses errors.As to handle wrapped errors.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func newValidationError(code ValidationErrorCode, field, value, message string) *ValidationError {
	const maxValue = 64
	if len(value) > maxValue {
		value = value[:maxValue] + "..."
	}
	return &ValidationError{Code: code, Field: field, Value: value, Message: message}
}
