package task

import (
	"errors"
	"fmt"
	"strings"
)

// Validation errors (400).
var ErrValidation = errors.New("validation failed")

// Not found errors (404).
var (
	ErrTaskNotFound      = errors.New("task not found")
	ErrExecutionNotFound = errors.New("execution not found")
	ErrScheduleNotFound  = errors.New("schedule not found")
	ErrWorkerNotFound    = errors.New("worker not found")
)

// State conflicts (409).
var (
	ErrInvalidState            = errors.New("invalid state")
	ErrTaskRunning             = errors.New("task has running executions")
	ErrMaxRetriesExceeded      = errors.New("max retries exceeded")
	ErrDependenciesUnsatisfied = errors.New("dependencies not satisfied")
)

// ValidationError lists every problem found in one definition.
type ValidationError struct {
	Op       string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Op, ErrValidation, strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// StateError reports an operation attempted against an incompatible status.
type StateError struct {
	Op     string // Operation name
	ID     string // Task or execution id
	Status string // Status found, if any
	Reason string // Optional detail
	Err    error
}

func (e *StateError) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
	if e.Status != "" {
		msg += fmt.Sprintf(" (status %s)", e.Status)
	}

	if e.Reason != "" {
		msg += ": " + e.Reason
	}

	return msg
}

func (e *StateError) Unwrap() error {
	return e.Err
}

func (e *StateError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func notFound(err error, id string) error {
	return fmt.Errorf("%w: %s", err, id)
}

// IsValidationError checks if an error should map to HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound checks if an error should map to HTTP 404.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTaskNotFound) ||
		errors.Is(err, ErrExecutionNotFound) ||
		errors.Is(err, ErrScheduleNotFound) ||
		errors.Is(err, ErrWorkerNotFound)
}

// IsConflict checks if an error should map to HTTP 409.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrTaskRunning) ||
		errors.Is(err, ErrMaxRetriesExceeded) ||
		errors.Is(err, ErrDependenciesUnsatisfied)
}
