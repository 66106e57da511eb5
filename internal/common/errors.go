// Package common defines shared constants and sentinel errors used across
// the server layers of SubKeeper. Callers should use errors.Is to match these
// values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")
	ErrorConflict = errors.New("already exists")

	// Service-level errors.
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorForbidden    = errors.New("forbidden")
	ErrorValidation   = errors.New("validation error")

	// ErrorConsistency marks an archive/delete pair that could not both complete.
	ErrorConsistency = errors.New("consistency failure")

	// Store client errors.
	ErrorPoolTimeout = errors.New("timed out waiting for a database connection")

	// Auth errors (invalid, malformed or expired token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// ValidationError describes malformed input. Message is safe to show to the user.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError builds a ValidationError for the given field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrorValidation }

// ConsistencyError is returned when an archive write and the matching live
// delete did not both complete. It carries enough identifiers for an operator
// to reconcile the stores by hand.
type ConsistencyError struct {
	Op       string
	UserID   string
	EntityID string
	Err      error
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("%s: user=%s entity=%s: %v", e.Op, e.UserID, e.EntityID, e.Err)
}

func (e *ConsistencyError) Unwrap() []error { return []error{ErrorConsistency, e.Err} }
