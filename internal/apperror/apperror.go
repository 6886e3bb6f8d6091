// Package apperror defines the typed failures returned by the service layer.
//
// Every failure is an *AppError wrapping one of the sentinel errors below, so
// callers branch with errors.Is and read the human message with errors.As.
// The HTTP layer is the only place that turns these into status codes.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrValidation    = errors.New("validation error")
	ErrInvalidRole   = errors.New("invalid role")
	ErrForbidden     = errors.New("forbidden")
	ErrAttemptLimit  = errors.New("attempt limit exceeded")
	ErrAlreadyExists = errors.New("already exists")
	ErrInternal      = errors.New("internal error")
)

type AppError struct {
	Err     error  // sentinel, possibly joined with an underlying cause
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

// NotFoundBy is NotFound for lookups on something other than the primary id,
// e.g. a classroom by join code or a user by email.
func NotFoundBy(resource, key, value string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with %s %s", resource, key, value),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// InvalidRole reports that a user exists but does not hold the role the
// operation requires.
func InvalidRole(userID, want string) *AppError {
	return &AppError{
		Err:     ErrInvalidRole,
		Message: fmt.Sprintf("user %s is not a %s", userID, want),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

func AttemptLimitExceeded(max int) *AppError {
	return &AppError{
		Err:     ErrAttemptLimit,
		Message: fmt.Sprintf("maximum attempts (%d) reached for this game", max),
	}
}

func AlreadyExists(resource, key, value string) *AppError {
	return &AppError{
		Err:     ErrAlreadyExists,
		Message: fmt.Sprintf("%s with %s %s already exists", resource, key, value),
	}
}

// Internal wraps a store, mapping, or invariant failure. Both ErrInternal and
// cause stay reachable through errors.Is.
func Internal(message string, cause error) *AppError {
	err := ErrInternal
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrInternal, cause)
	}
	return &AppError{
		Err:     err,
		Message: message,
	}
}
