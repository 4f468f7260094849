package task

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/dukex/taskflow/pkg/events"
	"github.com/dukex/taskflow/pkg/metrics"
	"github.com/dukex/taskflow/pkg/models"
)

// ExecutionFilter selects executions in ListExecutions.
type ExecutionFilter struct {
	TaskID string
	Status models.ExecutionStatus
	Offset int
	Limit  int
}

// ExecuteTask checks the task's dependencies, snapshots its resource allocation and
// queues a pending execution. Nothing is recorded when a dependency is unsatisfied.
func (e *Engine) ExecuteTask(ctx context.Context, id string, input map[string]any) (*models.TaskExecution, error) {
	e.mu.Lock()

	task, ok := e.tasks[id]
	if !ok {
		e.mu.Unlock()

		return nil, notFound(ErrTaskNotFound, id)
	}

	if unmet := e.unmetDependenciesLocked(task); len(unmet) > 0 {
		e.mu.Unlock()

		return nil, &StateError{
			Op:     "ExecuteTask",
			ID:     id,
			Reason: strings.Join(unmet, "; "),
			Err:    ErrDependenciesUnsatisfied,
		}
	}

	task = task.Clone()
	e.mu.Unlock()

	resources := e.resourcesFor(task)
	now := e.clock.Now()
	execID := newID()

	exec := &models.TaskExecution{
		ID:          execID,
		TaskID:      task.ID,
		Status:      models.ExecutionStatusPending,
		Input:       models.CloneMap(input),
		MaxRetries:  task.RetryPolicy.MaxRetries,
		CreatedAt:   now,
		AvailableAt: now,
		Allocation: &models.ResourceAllocation{
			ID:          newID(),
			ExecutionID: execID,
			Resources:   resources,
			AllocatedAt: now,
		},
	}

	e.mu.Lock()
	stored := e.enqueueLocked(exec)
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "Task execution queued", "task_id", id, "execution_id", execID)
	e.emit(ctx, events.TaskExecutionStarted, execID, stored.Clone())

	return stored, nil
}

// CancelExecution stops a pending, retrying or running execution and releases its
// allocation. A running execution keeps going but its result is discarded.
func (e *Engine) CancelExecution(ctx context.Context, id string) (*models.TaskExecution, error) {
	e.mu.Lock()

	exec, ok := e.executions[id]
	if !ok {
		e.mu.Unlock()

		return nil, notFound(ErrExecutionNotFound, id)
	}

	if exec.Status.IsTerminal() {
		e.mu.Unlock()

		return nil, &StateError{Op: "CancelExecution", ID: id, Status: string(exec.Status), Err: ErrInvalidState}
	}

	e.cancelLocked(exec)
	stored := exec.Clone()
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "Task execution cancelled", "execution_id", id)
	e.emit(ctx, events.TaskExecutionCancelled, id, stored.Clone())

	return stored, nil
}

// RetryExecution queues a new execution cloned from a failed one. The failed record is
// left untouched.
func (e *Engine) RetryExecution(ctx context.Context, id string) (*models.TaskExecution, error) {
	e.mu.Lock()

	original, ok := e.executions[id]
	if !ok {
		e.mu.Unlock()

		return nil, notFound(ErrExecutionNotFound, id)
	}

	if original.Status != models.ExecutionStatusFailed {
		e.mu.Unlock()

		return nil, &StateError{Op: "RetryExecution", ID: id, Status: string(original.Status), Err: ErrInvalidState}
	}

	task, ok := e.tasks[original.TaskID]
	if !ok {
		e.mu.Unlock()

		return nil, notFound(ErrTaskNotFound, original.TaskID)
	}

	policy := task.RetryPolicy
	if original.RetryCount >= policy.MaxRetries {
		e.mu.Unlock()

		return nil, &StateError{
			Op:     "RetryExecution",
			ID:     id,
			Status: string(original.Status),
			Reason: fmt.Sprintf("%d of %d retries used", original.RetryCount, policy.MaxRetries),
			Err:    ErrMaxRetriesExceeded,
		}
	}

	now := e.clock.Now()
	retry := original.Clone()
	retry.ID = newID()
	retry.Status = models.ExecutionStatusRetrying
	retry.RetryCount = original.RetryCount + 1
	retry.MaxRetries = policy.MaxRetries
	retry.PreviousExecutionID = original.ID
	retry.Output = nil
	retry.Error = nil
	retry.Metrics = models.ExecutionMetrics{}
	retry.StartedAt = nil
	retry.CompletedAt = nil
	retry.CreatedAt = now
	retry.AvailableAt = now.Add(policy.Delay(retry.RetryCount))

	var resources []models.ResourceRequirement
	if original.Allocation != nil {
		resources = slices.Clone(original.Allocation.Resources)
	}

	retry.Allocation = &models.ResourceAllocation{
		ID:          newID(),
		ExecutionID: retry.ID,
		Resources:   resources,
		AllocatedAt: now,
	}

	stored := e.enqueueLocked(retry)
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "Task execution retrying",
		"execution_id", retry.ID,
		"previous_execution_id", id,
		"retry_count", retry.RetryCount,
		"available_at", retry.AvailableAt)
	e.emit(ctx, events.TaskExecutionRetrying, retry.ID, stored.Clone())

	return stored, nil
}

func (e *Engine) GetExecution(_ context.Context, id string) (*models.TaskExecution, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	exec, ok := e.executions[id]
	if !ok {
		return nil, notFound(ErrExecutionNotFound, id)
	}

	return exec.Clone(), nil
}

// ListExecutions returns matching executions in creation order.
func (e *Engine) ListExecutions(_ context.Context, filter ExecutionFilter) ([]*models.TaskExecution, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var matched []*models.TaskExecution

	for _, id := range e.executionOrder {
		exec := e.executions[id]
		if filter.TaskID != "" && exec.TaskID != filter.TaskID {
			continue
		}

		if filter.Status != "" && exec.Status != filter.Status {
			continue
		}

		matched = append(matched, exec)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = e.listLimit
	}

	page := paginate(matched, filter.Offset, limit)

	out := make([]*models.TaskExecution, len(page))
	for i, exec := range page {
		out[i] = exec.Clone()
	}

	return out, nil
}

// QueueDepth is the number of executions waiting to be processed.
func (e *Engine) QueueDepth() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.queue)
}

func (e *Engine) enqueueLocked(exec *models.TaskExecution) *models.TaskExecution {
	e.executions[exec.ID] = exec
	e.executionOrder = append(e.executionOrder, exec.ID)
	e.queue = append(e.queue, exec.ID)
	e.metrics.SetQueueDepth(metrics.EngineTask, len(e.queue))

	return exec.Clone()
}

func (e *Engine) cancelLocked(exec *models.TaskExecution) {
	now := e.clock.Now()
	exec.Status = models.ExecutionStatusCancelled
	exec.CompletedAt = &now
	e.releaseLocked(exec)
}

func (e *Engine) releaseLocked(exec *models.TaskExecution) {
	if exec.Allocation == nil || exec.Allocation.Released() {
		return
	}

	now := e.clock.Now()
	exec.Allocation.ReleasedAt = &now
}

// resourcesFor uses the declared requirements, or the task type's estimate when none
// are declared.
func (e *Engine) resourcesFor(task *models.Task) []models.ResourceRequirement {
	if len(task.Resources) > 0 {
		return slices.Clone(task.Resources)
	}

	taskType, ok := e.types.TaskType(task.Type)
	if !ok {
		return nil
	}

	return taskType.EstimateResources(task.Config)
}
