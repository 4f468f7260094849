// Package models defines the task and workflow automation data model.
package models

import (
	"math"
	"slices"
	"time"
)

// DependencyCondition is the state the latest execution of a dependency must be in.
type DependencyCondition string

const (
	DependencyCompleted DependencyCondition = "completed"
	DependencyFailed    DependencyCondition = "failed"
	DependencyAny       DependencyCondition = "any"
)

// Priority is informational; the execution queue is FIFO regardless of priority.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// BackoffStrategy controls the delay applied to retried executions.
type BackoffStrategy string

const (
	BackoffFixed       BackoffStrategy = "fixed"
	BackoffLinear      BackoffStrategy = "linear"
	BackoffExponential BackoffStrategy = "exponential"
)

// TaskDependency declares that a task may only run once the latest execution of
// another task satisfies Condition.
type TaskDependency struct {
	TaskID    string              `json:"taskId"    validate:"required"`
	Condition DependencyCondition `json:"condition" validate:"required,oneof=completed failed any"`
}

// RetryPolicy bounds how many times a failed execution may be retried.
type RetryPolicy struct {
	MaxRetries      int             `json:"maxRetries"                validate:"gte=0"`
	BackoffStrategy BackoffStrategy `json:"backoffStrategy,omitempty" validate:"omitempty,oneof=fixed linear exponential"`
	InitialDelay    Duration        `json:"initialDelay,omitempty"    validate:"gte=0"`
	MaxDelay        Duration        `json:"maxDelay,omitempty"        validate:"gte=0"`
}

// Delay returns how long the given retry attempt (1-based) should wait before it is
// picked up by the processor.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if p.InitialDelay <= 0 || attempt <= 0 {
		return 0
	}

	base := p.InitialDelay.Std()

	limit := time.Duration(math.MaxInt64)
	if p.MaxDelay > 0 {
		limit = p.MaxDelay.Std()
	}

	var delay time.Duration

	switch p.BackoffStrategy {
	case BackoffLinear:
		if base > math.MaxInt64/time.Duration(attempt) {
			return limit
		}

		delay = base * time.Duration(attempt)
	case BackoffExponential:
		shift := attempt - 1
		if shift >= 63 || base > math.MaxInt64>>shift {
			return limit
		}

		delay = base << shift
	default:
		delay = base
	}

	if delay < 0 || delay > limit {
		delay = limit
	}

	return delay
}

// TaskMetadata carries ownership information used for filtering.
type TaskMetadata struct {
	Author      string   `json:"author,omitempty"`
	Category    string   `json:"category,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// Task is a stored task definition.
type Task struct {
	ID           string                `json:"id"`
	Name         string                `json:"name"                   validate:"required"`
	Description  string                `json:"description,omitempty"`
	Type         string                `json:"type"                   validate:"required"`
	Config       map[string]any        `json:"config"                 validate:"required"`
	Dependencies []TaskDependency      `json:"dependencies,omitempty" validate:"dive"`
	Resources    []ResourceRequirement `json:"resources,omitempty"    validate:"dive"`
	RetryPolicy  RetryPolicy           `json:"retryPolicy"`
	Timeout      Duration              `json:"timeout,omitempty"      validate:"gte=0"`
	Priority     Priority              `json:"priority,omitempty"     validate:"omitempty,oneof=low normal high critical"`
	Tags         []string              `json:"tags,omitempty"`
	Metadata     TaskMetadata          `json:"metadata"`
	CreatedAt    time.Time             `json:"createdAt"`
	UpdatedAt    time.Time             `json:"updatedAt"`
}

// HasAnyTag reports whether the task carries at least one of tags.
func (t *Task) HasAnyTag(tags []string) bool {
	for _, tag := range tags {
		if slices.Contains(t.Tags, tag) {
			return true
		}
	}

	return false
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}

	c := *t
	c.Config = CloneMap(t.Config)
	c.Dependencies = slices.Clone(t.Dependencies)
	c.Resources = slices.Clone(t.Resources)
	c.Tags = slices.Clone(t.Tags)
	c.Metadata.Permissions = slices.Clone(t.Metadata.Permissions)

	return &c
}
