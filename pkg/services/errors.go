// Package services implements job submission, status and cost reporting on top of
// persistence and the event bus.
package services

import (
	"errors"
	"fmt"

	"github.com/flowforge/flowforge/pkg/persistence"
)

// Rejected submissions and lookups.
var (
	ErrInvalidSubmission = errors.New("invalid job submission")
	ErrSubmissionNil     = errors.New("job submission cannot be nil")
	ErrEmptyJobID        = errors.New("job ID cannot be empty")
)

// Requests that clash with the job's current state.
var (
	ErrJobExists       = errors.New("job already exists")
	ErrArtifactPending = errors.New("job has not produced an artifact yet")
)

var ErrJobNotFound = persistence.ErrJobNotFound

// ServiceError carries the failing operation and a machine-readable code
// (e.g. "invalid_submission") next to the sentinel it wraps.
type ServiceError struct {
	Op      string
	Code    string
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError reports whether err rejects the caller's input.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidSubmission) ||
		errors.Is(err, ErrSubmissionNil) ||
		errors.Is(err, ErrEmptyJobID)
}

// IsConflictError reports whether err conflicts with the job's current state.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrJobExists) ||
		errors.Is(err, ErrArtifactPending)
}

func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
