package workflow

import (
	"errors"
	"fmt"
	"strings"
)

// Validation errors (400).
var ErrValidation = errors.New("validation failed")

// Not found errors (404).
var (
	ErrWorkflowNotFound  = errors.New("workflow not found")
	ErrExecutionNotFound = errors.New("workflow execution not found")
)

// State conflicts (409).
var (
	ErrInvalidState     = errors.New("invalid state")
	ErrWorkflowRunning  = errors.New("workflow has running executions")
	ErrConcurrencyLimit = errors.New("workflow concurrency limit reached")
)

// ValidationError lists every problem found in one workflow definition.
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
	ID     string // Workflow or execution id
	Status string // Status found, if any
	Err    error
}

func (e *StateError) Error() string {
	if e.Status == "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
	}

	return fmt.Sprintf("%s %s: %v (status %s)", e.Op, e.ID, e.Err, e.Status)
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
	return errors.Is(err, ErrWorkflowNotFound) || errors.Is(err, ErrExecutionNotFound)
}

// IsConflict checks if an error should map to HTTP 409.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrWorkflowRunning) ||
		errors.Is(err, ErrConcurrencyLimit)
}
