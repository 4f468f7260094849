// Package web provides the REST surface over the task and workflow engines.
package web

import "github.com/dukex/taskflow/pkg/task"

// ExecuteRequest is the optional body of the execute endpoints.
type ExecuteRequest struct {
	Input map[string]any `json:"input"`
}

// ScheduleTaskRequest attaches a cron schedule to a task.
type ScheduleTaskRequest struct {
	CronExpression string `json:"cronExpression"     validate:"required"`
	Timezone       string `json:"timezone,omitempty"`
	MaxRuns        *int   `json:"maxRuns,omitempty"  validate:"omitempty,gte=1"`
}

func (r ScheduleTaskRequest) options() task.ScheduleOptions {
	return task.ScheduleOptions{
		CronExpression: r.CronExpression,
		Timezone:       r.Timezone,
		MaxRuns:        r.MaxRuns,
	}
}

// RegisterWorkerRequest adds a worker to the registry.
type RegisterWorkerRequest struct {
	Name         string   `json:"name"                   validate:"required,min=1"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// Pagination echoes the window a list endpoint was asked for.
type Pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// ListResponse wraps every list endpoint.
type ListResponse[T any] struct {
	Items      []T        `json:"items"`
	Pagination Pagination `json:"pagination"`
}
