package task

import (
	"fmt"

	"github.com/dukex/taskflow/pkg/models"
)

// latestExecutionLocked returns the execution of taskID with the greatest StartedAt.
// Executions that never started count as the Unix epoch; on ties the earliest created
// wins.
func (e *Engine) latestExecutionLocked(taskID string) *models.TaskExecution {
	var latest *models.TaskExecution

	for _, id := range e.executionOrder {
		exec := e.executions[id]
		if exec.TaskID != taskID {
			continue
		}

		if latest == nil || exec.StartedAtOrZero().After(latest.StartedAtOrZero()) {
			latest = exec
		}
	}

	return latest
}

func satisfies(exec *models.TaskExecution, condition models.DependencyCondition) bool {
	if exec == nil {
		return false
	}

	switch condition {
	case models.DependencyCompleted:
		return exec.Status == models.ExecutionStatusCompleted
	case models.DependencyFailed:
		return exec.Status == models.ExecutionStatusFailed
	case models.DependencyAny:
		return exec.Status != models.ExecutionStatusRunning
	}

	return false
}

// unmetDependenciesLocked describes every dependency of task that is not satisfied.
func (e *Engine) unmetDependenciesLocked(task *models.Task) []string {
	var unmet []string

	for _, dep := range task.Dependencies {
		latest := e.latestExecutionLocked(dep.TaskID)

		if satisfies(latest, dep.Condition) {
			continue
		}

		if latest == nil {
			unmet = append(unmet, fmt.Sprintf("%s has never been executed", dep.TaskID))

			continue
		}

		unmet = append(unmet, fmt.Sprintf("%s latest execution is %s, want %s", dep.TaskID, latest.Status, dep.Condition))
	}

	return unmet
}
