package workflow

import (
	"context"
	"slices"

	"github.com/dukex/taskflow/pkg/events"
	"github.com/dukex/taskflow/pkg/metrics"
	"github.com/dukex/taskflow/pkg/models"
)

// ExecutionFilter selects executions in ListExecutions.
type ExecutionFilter struct {
	WorkflowID string
	Status     models.WorkflowExecutionStatus
	Offset     int
	Limit      int
}

// ExecuteWorkflow starts a running execution of the workflow and queues it for the
// processor. Declared variables are seeded first and input keys override them.
func (e *Engine) ExecuteWorkflow(ctx context.Context, workflowID string, input map[string]any) (*models.WorkflowExecution, error) {
	e.mu.Lock()

	wf, ok := e.workflows[workflowID]
	if !ok {
		e.mu.Unlock()

		return nil, notFound(ErrWorkflowNotFound, workflowID)
	}

	if limit := wf.Settings.Concurrency; limit > 0 && e.activeCountLocked(workflowID) >= limit {
		e.mu.Unlock()

		return nil, &StateError{Op: "ExecuteWorkflow", ID: workflowID, Err: ErrConcurrencyLimit}
	}

	variables := wf.InitialVariables()
	for k, v := range input {
		variables[k] = v
	}

	exec := &models.WorkflowExecution{
		ID:         newID(),
		WorkflowID: workflowID,
		Status:     models.WorkflowExecutionRunning,
		Input:      models.CloneMap(input),
		StartedAt:  e.clock.Now(),
		Metrics: models.WorkflowMetrics{
			TotalNodes: len(wf.Nodes),
		},
		Context: models.WorkflowContext{
			Variables:     variables,
			ExecutionPath: []string{},
			MaxRetries:    wf.Settings.RetryPolicy.MaxRetries,
		},
	}

	e.executions[exec.ID] = exec
	e.executionOrder = append(e.executionOrder, exec.ID)
	e.enqueueLocked(exec.ID)
	stored := exec.Clone()
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "Workflow execution started", "execution_id", stored.ID, "workflow_id", workflowID)
	e.emit(ctx, events.WorkflowExecutionStarted, stored.ID, stored.Clone())

	return stored, nil
}

// PauseExecution takes a running execution off the queue.
func (e *Engine) PauseExecution(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	return e.transition(ctx, "PauseExecution", id, events.WorkflowExecutionPaused, func(exec *models.WorkflowExecution) bool {
		if exec.Status != models.WorkflowExecutionRunning {
			return false
		}

		exec.Status = models.WorkflowExecutionPaused
		e.dequeueLocked(exec.ID)

		return true
	})
}

// ResumeExecution puts a paused execution back at the tail of the queue.
func (e *Engine) ResumeExecution(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	return e.transition(ctx, "ResumeExecution", id, events.WorkflowExecutionResumed, func(exec *models.WorkflowExecution) bool {
		if exec.Status != models.WorkflowExecutionPaused {
			return false
		}

		exec.Status = models.WorkflowExecutionRunning
		e.enqueueLocked(exec.ID)

		return true
	})
}

// CancelExecution cancels a running or paused execution. A node already in flight
// finishes but its result is discarded.
func (e *Engine) CancelExecution(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	return e.transition(ctx, "CancelExecution", id, events.WorkflowExecutionCancelled, func(exec *models.WorkflowExecution) bool {
		if exec.Status.IsTerminal() {
			return false
		}

		completed := e.clock.Now()
		exec.Status = models.WorkflowExecutionCancelled
		exec.CompletedAt = &completed
		e.dequeueLocked(exec.ID)

		return true
	})
}

// transition applies apply under the lock and emits eventType when it reports success.
func (e *Engine) transition(
	ctx context.Context,
	op, id string,
	eventType events.EventType,
	apply func(exec *models.WorkflowExecution) bool,
) (*models.WorkflowExecution, error) {
	e.mu.Lock()

	exec, ok := e.executions[id]
	if !ok {
		e.mu.Unlock()

		return nil, notFound(ErrExecutionNotFound, id)
	}

	if !apply(exec) {
		status := exec.Status
		e.mu.Unlock()

		return nil, &StateError{Op: op, ID: id, Status: string(status), Err: ErrInvalidState}
	}

	stored := exec.Clone()
	e.mu.Unlock()

	if eventType == events.WorkflowExecutionCancelled {
		e.metrics.ObserveExecution(metrics.EngineWorkflow, string(stored.Status), stored.CompletedAt.Sub(stored.StartedAt))
	}

	e.logger.InfoContext(ctx, "Workflow execution "+string(stored.Status), "execution_id", id, "workflow_id", stored.WorkflowID)
	e.emit(ctx, eventType, id, stored.Clone())

	return stored, nil
}

func (e *Engine) GetExecution(_ context.Context, id string) (*models.WorkflowExecution, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	exec, ok := e.executions[id]
	if !ok {
		return nil, notFound(ErrExecutionNotFound, id)
	}

	return exec.Clone(), nil
}

// ListExecutions returns matching executions in start order.
func (e *Engine) ListExecutions(_ context.Context, filter ExecutionFilter) ([]*models.WorkflowExecution, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var matched []*models.WorkflowExecution

	for _, id := range e.executionOrder {
		exec := e.executions[id]

		if filter.WorkflowID != "" && exec.WorkflowID != filter.WorkflowID {
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

	out := make([]*models.WorkflowExecution, len(page))
	for i, exec := range page {
		out[i] = exec.Clone()
	}

	return out, nil
}

// QueueDepth is the number of executions waiting for a processor tick.
func (e *Engine) QueueDepth() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.queue)
}

func (e *Engine) enqueueLocked(id string) {
	e.queue = append(e.queue, id)
	e.metrics.SetQueueDepth(metrics.EngineWorkflow, len(e.queue))
}

func (e *Engine) dequeueLocked(id string) {
	e.queue = slices.DeleteFunc(e.queue, func(queued string) bool { return queued == id })
	e.metrics.SetQueueDepth(metrics.EngineWorkflow, len(e.queue))
}

// activeCountLocked counts the running and paused executions of a workflow.
func (e *Engine) activeCountLocked(workflowID string) int {
	count := 0

	for _, exec := range e.executions {
		if exec.WorkflowID == workflowID && !exec.Status.IsTerminal() {
			count++
		}
	}

	return count
}
