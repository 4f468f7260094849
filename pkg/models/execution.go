package models

import (
	"slices"
	"time"
)

// ExecutionStatus is the state of a task execution record.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
	ExecutionStatusRetrying  ExecutionStatus = "retrying"
)

// IsTerminal reports whether no further transition can happen.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed || s == ExecutionStatusCancelled
}

// Error codes recorded on failed executions.
const (
	ErrorCodeExecutionFailed  = "EXECUTION_FAILED"
	ErrorCodeExecutionPanic   = "EXECUTION_PANIC"
	ErrorCodeTaskNotFound     = "TASK_NOT_FOUND"
	ErrorCodeTaskTypeNotFound = "TASK_TYPE_NOT_FOUND"
	ErrorCodeNodeFailed       = "NODE_FAILED"
	ErrorCodeNodeTypeNotFound = "NODE_TYPE_NOT_FOUND"
	ErrorCodeWorkflowTimeout  = "WORKFLOW_TIMEOUT"
	ErrorCodeWorkflowNotFound = "WORKFLOW_NOT_FOUND"
)

// ExecutionError is the structured failure attached to an execution record.
type ExecutionError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Stack     string    `json:"stack,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Retryable bool      `json:"retryable"`
}

func (e *ExecutionError) Error() string {
	return e.Code + ": " + e.Message
}

// ExecutionMetrics are measured by the processor loop.
type ExecutionMetrics struct {
	ExecutionTime Duration      `json:"executionTime"`
	ResourceUsage ResourceUsage `json:"resourceUsage"`
}

// TaskExecution is one run (or retry) of a task.
type TaskExecution struct {
	ID                  string              `json:"id"`
	TaskID              string              `json:"taskId"`
	Status              ExecutionStatus     `json:"status"`
	Input               map[string]any      `json:"input,omitempty"`
	Output              map[string]any      `json:"output,omitempty"`
	Error               *ExecutionError     `json:"error,omitempty"`
	Metrics             ExecutionMetrics    `json:"metrics"`
	Allocation          *ResourceAllocation `json:"allocation,omitempty"`
	RetryCount          int                 `json:"retryCount"`
	MaxRetries          int                 `json:"maxRetries"`
	PreviousExecutionID string              `json:"previousExecutionId,omitempty"`
	CreatedAt           time.Time           `json:"createdAt"`
	AvailableAt         time.Time           `json:"availableAt"`
	StartedAt           *time.Time          `json:"startedAt,omitempty"`
	CompletedAt         *time.Time          `json:"completedAt,omitempty"`
}

// StartedAtOrZero returns the start time, or the Unix epoch for records that never ran.
func (e *TaskExecution) StartedAtOrZero() time.Time {
	if e.StartedAt == nil {
		return time.Unix(0, 0)
	}

	return *e.StartedAt
}

// Clone returns a deep copy of the execution record.
func (e *TaskExecution) Clone() *TaskExecution {
	if e == nil {
		return nil
	}

	c := *e
	c.Input = CloneMap(e.Input)
	c.Output = CloneMap(e.Output)
	c.StartedAt = cloneTime(e.StartedAt)
	c.CompletedAt = cloneTime(e.CompletedAt)

	if e.Error != nil {
		errCopy := *e.Error
		c.Error = &errCopy
	}

	if e.Allocation != nil {
		alloc := *e.Allocation
		alloc.Resources = slices.Clone(e.Allocation.Resources)
		alloc.ReleasedAt = cloneTime(e.Allocation.ReleasedAt)
		c.Allocation = &alloc
	}

	return &c
}
