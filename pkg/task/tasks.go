package task

import (
	"context"
	"fmt"
	"slices"

	"dario.cat/mergo"
	"github.com/dukex/taskflow/pkg/events"
	"github.com/dukex/taskflow/pkg/models"
	"github.com/dukex/taskflow/pkg/validation"
)

// TaskFilter selects tasks in ListTasks. Tags match when the task has any of them.
type TaskFilter struct {
	Type     string
	Category string
	Author   string
	Tags     []string
	Offset   int
	Limit    int
}

func (f TaskFilter) matches(t *models.Task) bool {
	if f.Type != "" && t.Type != f.Type {
		return false
	}

	if f.Category != "" && t.Metadata.Category != f.Category {
		return false
	}

	if f.Author != "" && t.Metadata.Author != f.Author {
		return false
	}

	if len(f.Tags) > 0 && !t.HasAnyTag(f.Tags) {
		return false
	}

	return true
}

// CreateTask validates and stores a new task. The stored copy is returned.
func (e *Engine) CreateTask(ctx context.Context, def *models.Task) (*models.Task, error) {
	if def == nil {
		return nil, &ValidationError{Op: "CreateTask", Problems: []string{"task is required"}}
	}

	task := def.Clone()
	now := e.clock.Now()
	task.ID = newID()
	task.CreatedAt = now
	task.UpdatedAt = now

	if task.Priority == "" {
		task.Priority = models.PriorityNormal
	}

	problems := e.validateTask(task)

	e.mu.Lock()
	if problems = append(problems, e.dependencyProblemsLocked(task)...); len(problems) > 0 {
		e.mu.Unlock()

		return nil, &ValidationError{Op: "CreateTask", Problems: problems}
	}

	e.tasks[task.ID] = task
	e.taskOrder = append(e.taskOrder, task.ID)
	stored := task.Clone()
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "Task created", "task_id", task.ID, "task_type", task.Type)
	e.emit(ctx, events.TaskCreated, task.ID, stored.Clone())

	return stored, nil
}

// UpdateTask merges the non-zero fields of patch over the stored task and re-validates
// the result. Config maps are merged key by key.
func (e *Engine) UpdateTask(ctx context.Context, id string, patch *models.Task) (*models.Task, error) {
	e.mu.Lock()
	existing, ok := e.tasks[id]
	if !ok {
		e.mu.Unlock()

		return nil, notFound(ErrTaskNotFound, id)
	}

	merged := existing.Clone()
	e.mu.Unlock()

	if patch != nil {
		if err := mergo.Merge(merged, patch.Clone(), mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge task %s: %w", id, err)
		}
	}

	merged.ID = existing.ID
	merged.CreatedAt = existing.CreatedAt
	merged.UpdatedAt = e.clock.Now()

	problems := e.validateTask(merged)

	for _, dep := range merged.Dependencies {
		if dep.TaskID == id {
			problems = append(problems, "task cannot depend on itself")
		}
	}

	e.mu.Lock()
	if _, ok := e.tasks[id]; !ok {
		e.mu.Unlock()

		return nil, notFound(ErrTaskNotFound, id)
	}

	problems = append(problems, e.dependencyProblemsLocked(merged)...)
	if len(problems) > 0 {
		e.mu.Unlock()

		return nil, &ValidationError{Op: "UpdateTask", Problems: problems}
	}

	e.tasks[id] = merged
	stored := merged.Clone()
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "Task updated", "task_id", id)
	e.emit(ctx, events.TaskUpdated, id, stored.Clone())

	return stored, nil
}

// DeleteTask removes a task and its schedules. It fails while an execution of the task
// is running.
func (e *Engine) DeleteTask(ctx context.Context, id string) error {
	e.mu.Lock()

	task, ok := e.tasks[id]
	if !ok {
		e.mu.Unlock()

		return notFound(ErrTaskNotFound, id)
	}

	for _, execID := range e.executionOrder {
		exec := e.executions[execID]
		if exec.TaskID == id && exec.Status == models.ExecutionStatusRunning {
			e.mu.Unlock()

			return &StateError{Op: "DeleteTask", ID: id, Status: string(exec.Status), Err: ErrTaskRunning}
		}
	}

	var removed []*models.TaskSchedule

	e.scheduleOrder = slices.DeleteFunc(e.scheduleOrder, func(scheduleID string) bool {
		s := e.schedules[scheduleID]
		if s.TaskID != id {
			return false
		}

		s.Active = false
		removed = append(removed, s.Clone())
		delete(e.schedules, scheduleID)
		delete(e.scheduleSpecs, scheduleID)

		return true
	})

	delete(e.tasks, id)
	e.taskOrder = slices.DeleteFunc(e.taskOrder, func(taskID string) bool { return taskID == id })
	e.mu.Unlock()

	for _, s := range removed {
		e.emit(ctx, events.TaskUnscheduled, s.ID, s)
	}

	e.logger.InfoContext(ctx, "Task deleted", "task_id", id, "schedules_removed", len(removed))
	e.emit(ctx, events.TaskDeleted, id, task.Clone())

	return nil
}

func (e *Engine) GetTask(_ context.Context, id string) (*models.Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	task, ok := e.tasks[id]
	if !ok {
		return nil, notFound(ErrTaskNotFound, id)
	}

	return task.Clone(), nil
}

// ListTasks returns matching tasks in creation order.
func (e *Engine) ListTasks(_ context.Context, filter TaskFilter) ([]*models.Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var matched []*models.Task

	for _, id := range e.taskOrder {
		if task := e.tasks[id]; filter.matches(task) {
			matched = append(matched, task)
		}
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = e.listLimit
	}

	page := paginate(matched, filter.Offset, limit)

	out := make([]*models.Task, len(page))
	for i, task := range page {
		out[i] = task.Clone()
	}

	return out, nil
}

// validateTask collects struct rule failures, the task type check and the type's own
// config validation.
func (e *Engine) validateTask(task *models.Task) []string {
	problems := validation.Struct(task)

	if task.Type == "" {
		return problems
	}

	taskType, ok := e.types.TaskType(task.Type)
	if !ok {
		return append(problems, fmt.Sprintf("unknown task type %q", task.Type))
	}

	result := taskType.Validate(task.Config)
	if !result.Valid {
		problems = append(problems, result.Errors...)
	}

	return problems
}

func (e *Engine) dependencyProblemsLocked(task *models.Task) []string {
	var problems []string

	for _, dep := range task.Dependencies {
		if dep.TaskID == "" || dep.TaskID == task.ID {
			continue
		}

		if _, ok := e.tasks[dep.TaskID]; !ok {
			problems = append(problems, fmt.Sprintf("dependency task %s does not exist", dep.TaskID))
		}
	}

	return problems
}
