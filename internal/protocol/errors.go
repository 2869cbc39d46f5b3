package protocol

import (
	"errors"
	"fmt"
)

// ErrInFlight is returned when a new attempt is started while another
// attempt for a different (task, user) pair is still outstanding.
// A repeated action for the same pair is ignored instead.
var ErrInFlight = errors.New("completion attempt already in flight")

// ErrNotAllowed is returned when the caller is neither the task's
// assignee nor elevated.
var ErrNotAllowed = errors.New("user may not complete this task")

// TokenError reports a capability-token rejection. Not retryable with
// the same token; the caller must re-initiate.
type TokenError struct {
	// Code identifies the rejection category.
	Code TokenErrorCode

	// Token is the rejected token value.
	Token string
}

// TokenErrorCode categorizes token rejections.
type TokenErrorCode string

const (
	// TokenUnknown means the token was never minted or its TTL elapsed.
	TokenUnknown TokenErrorCode = "TOKEN_UNKNOWN"

	// TokenUsed means the token was already redeemed. Distinct from
	// TokenUnknown so a client can tell "already completed" from
	// "network hiccup, re-initiate".
	TokenUsed TokenErrorCode = "TOKEN_USED"

	// TokenForbidden means the token is scoped to a different user.
	TokenForbidden TokenErrorCode = "TOKEN_FORBIDDEN"
)

// Error implements the error interface.
func (e *TokenError) Error() string {
	return fmt.Sprintf("%s: token %q rejected", e.Code, e.Token)
}

// IsTokenInvalid returns true for any token rejection.
// Uses errors.As to handle wrapped errors.
func IsTokenInvalid(err error) bool {
	var te *TokenError
	return errors.As(err, &te)
}

// IsTokenUsed returns true if the token was already redeemed.
func IsTokenUsed(err error) bool {
	var te *TokenError
	if errors.As(err, &te) {
		return te.Code == TokenUsed
	}
	return false
}
