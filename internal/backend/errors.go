package backend

import (
	"errors"
	"fmt"
)

// TransientError marks a failure worth retrying with backoff: network
// trouble, timeouts, or a backend reporting temporary unavailability.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("backend: transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// ValidationError marks a permanently rejected payload: malformed keys,
// invalid references, constraint violations. Retrying cannot succeed.
type ValidationError struct {
	StatusCode int
	Message    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("backend: validation (%d): %s", e.StatusCode, e.Message)
}

// AuthError marks a missing or rejected credential. The push phase aborts
// on it rather than burning per-action retries.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("backend: auth (%d): %s", e.StatusCode, e.Message)
}

// IsTransient reports whether err is classified as retryable.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// IsValidation reports whether err is a permanent payload rejection.
func IsValidation(err error) bool {
	var validation *ValidationError
	return errors.As(err, &validation)
}

// IsAuth reports whether err is a credential failure.
func IsAuth(err error) bool {
	var auth *AuthError
	return errors.As(err, &auth)
}
