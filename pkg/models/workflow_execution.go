package models

import (
	"slices"
	"time"
)

type WorkflowExecutionStatus string

const (
	WorkflowExecutionRunning   WorkflowExecutionStatus = "running"
	WorkflowExecutionCompleted WorkflowExecutionStatus = "completed"
	WorkflowExecutionFailed    WorkflowExecutionStatus = "failed"
	WorkflowExecutionPaused    WorkflowExecutionStatus = "paused"
	WorkflowExecutionCancelled WorkflowExecutionStatus = "cancelled"
)

func (s WorkflowExecutionStatus) IsTerminal() bool {
	return s == WorkflowExecutionCompleted || s == WorkflowExecutionFailed || s == WorkflowExecutionCancelled
}

type WorkflowMetrics struct {
	TotalNodes    int           `json:"totalNodes"`
	ExecutedNodes int           `json:"executedNodes"`
	ExecutionTime Duration      `json:"executionTime"`
	ResourceUsage ResourceUsage `json:"resourceUsage"`
}

// WorkflowContext is the mutable state the graph walk carries between ticks.
type WorkflowContext struct {
	Variables     map[string]any `json:"variables"`
	CurrentNodeID string         `json:"currentNodeId,omitempty"`
	ExecutionPath []string       `json:"executionPath"`
	RetryCount    int            `json:"retryCount"`
	MaxRetries    int            `json:"maxRetries"`
}

type WorkflowExecution struct {
	ID          string                  `json:"id"`
	WorkflowID  string                  `json:"workflowId"`
	Status      WorkflowExecutionStatus `json:"status"`
	Input       map[string]any          `json:"input,omitempty"`
	Output      map[string]any          `json:"output,omitempty"`
	StartedAt   time.Time               `json:"startedAt"`
	CompletedAt *time.Time              `json:"completedAt,omitempty"`
	Error       *ExecutionError         `json:"error,omitempty"`
	Metrics     WorkflowMetrics         `json:"metrics"`
	Context     WorkflowContext         `json:"context"`
}

func (e *WorkflowExecution) Clone() *WorkflowExecution {
	if e == nil {
		return nil
	}

	c := *e
	c.Input = CloneMap(e.Input)
	c.Output = CloneMap(e.Output)
	c.CompletedAt = cloneTime(e.CompletedAt)
	c.Context.Variables = CloneMap(e.Context.Variables)
	c.Context.ExecutionPath = slices.Clone(e.Context.ExecutionPath)

	if e.Error != nil {
		errCopy := *e.Error
		c.Error = &errCopy
	}

	return &c
}
