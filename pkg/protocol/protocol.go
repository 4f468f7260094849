// Package protocol defines the contracts for pluggable task types and node types.
package protocol

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/taskflow/pkg/models"
)

// ValidationResult is what a type reports about a configuration.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// NewValidationResult builds a result whose Valid flag follows from errs.
func NewValidationResult(errs, warnings []string) ValidationResult {
	return ValidationResult{
		Valid:    len(errs) == 0,
		Errors:   errs,
		Warnings: warnings,
	}
}

// Result is the outcome of executing a task type or node type.
type Result struct {
	Success bool           `json:"success"`
	Output  map[string]any `json:"output,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Succeeded builds a successful result.
func Succeeded(output map[string]any) Result {
	return Result{Success: true, Output: output}
}

// Failed builds a failed result.
func Failed(message string) Result {
	return Result{Success: false, Error: message}
}

// ExecutionContext is handed to a type when it runs. Task executions fill TaskID and
// Input; workflow node executions fill WorkflowID, NodeID and Variables.
type ExecutionContext struct {
	ExecutionID string
	TaskID      string
	WorkflowID  string
	NodeID      string
	Input       map[string]any
	Variables   map[string]any
	Attempt     int
	Timeout     time.Duration
	StartedAt   time.Time
	Logger      *slog.Logger
}

// Log returns the context logger, falling back to the default logger.
func (c ExecutionContext) Log() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}

	return slog.Default()
}

// Data exposes the context as the activation document seen by expressions.
func (c ExecutionContext) Data() map[string]any {
	input := c.Input
	if input == nil {
		input = map[string]any{}
	}

	variables := c.Variables
	if variables == nil {
		variables = map[string]any{}
	}

	return map[string]any{
		"input":     input,
		"variables": variables,
		"execution": map[string]any{
			"id":         c.ExecutionID,
			"taskId":     c.TaskID,
			"workflowId": c.WorkflowID,
			"nodeId":     c.NodeID,
			"attempt":    c.Attempt,
		},
	}
}

// TaskType is a named, swappable unit of work a task definition refers to.
type TaskType interface {
	// Name is the identifier tasks use in their Type field.
	Name() string

	// Schema returns the JSON schema of the configuration.
	Schema() map[string]any

	Validate(config map[string]any) ValidationResult

	Execute(ctx context.Context, config map[string]any, execCtx ExecutionContext) Result

	// EstimateResources suggests requirements for tasks that declare none.
	EstimateResources(config map[string]any) []models.ResourceRequirement
}

// NodeType is a named unit a workflow node refers to.
type NodeType interface {
	Name() string
	Schema() map[string]any
	Validate(config map[string]any) ValidationResult
	Execute(ctx context.Context, config map[string]any, execCtx ExecutionContext) Result
}

// TaskTypeLookup resolves task types by name.
type TaskTypeLookup interface {
	TaskType(name string) (TaskType, bool)
}

// NodeTypeLookup resolves node types by name.
type NodeTypeLookup interface {
	NodeType(name string) (NodeType, bool)
}
