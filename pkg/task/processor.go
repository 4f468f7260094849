package task

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/dukex/taskflow/pkg/events"
	"github.com/dukex/taskflow/pkg/metrics"
	"github.com/dukex/taskflow/pkg/models"
	"github.com/dukex/taskflow/pkg/otelhelper"
	"github.com/dukex/taskflow/pkg/protocol"
	"go.opentelemetry.io/otel/attribute"
)

// ProcessNext runs one processor tick: it takes the first available execution off the
// queue and drives it to a terminal state. It reports whether an execution was
// processed. Overlapping calls return false immediately.
func (e *Engine) ProcessNext(ctx context.Context) bool {
	if !e.processing.CompareAndSwap(false, true) {
		return false
	}
	defer e.processing.Store(false)

	e.mu.Lock()

	exec := e.dequeueLocked()
	if exec == nil {
		e.mu.Unlock()

		return false
	}

	started := e.clock.Now()
	exec.Status = models.ExecutionStatusRunning
	exec.StartedAt = &started

	task, taskFound := e.tasks[exec.TaskID]
	if taskFound {
		task = task.Clone()
	}

	running := exec.Clone()
	e.mu.Unlock()

	logger := e.logger.With("execution_id", running.ID, "task_id", running.TaskID, "attempt", running.RetryCount+1)
	logger.DebugContext(ctx, "Processing task execution")

	var (
		result  protocol.Result
		failure *models.ExecutionError
	)

	switch {
	case !taskFound:
		failure = e.executionError(models.ErrorCodeTaskNotFound, fmt.Sprintf("task %s no longer exists", running.TaskID), false)
	default:
		taskType, ok := e.types.TaskType(task.Type)
		if !ok {
			failure = e.executionError(models.ErrorCodeTaskTypeNotFound, fmt.Sprintf("task type %q is not registered", task.Type), false)

			break
		}

		result, failure = e.run(ctx, taskType, task, running, logger)
	}

	e.finish(ctx, running.ID, started, result, failure)

	return true
}

// dequeueLocked pops the first queued execution that is due. Cancelled records are
// dropped; retries whose AvailableAt is in the future stay queued in order.
func (e *Engine) dequeueLocked() *models.TaskExecution {
	now := e.clock.Now()

	var picked *models.TaskExecution

	remaining := e.queue[:0]

	for _, id := range e.queue {
		exec, ok := e.executions[id]
		if !ok || exec.Status == models.ExecutionStatusCancelled {
			continue
		}

		if picked == nil && !exec.AvailableAt.After(now) {
			picked = exec

			continue
		}

		remaining = append(remaining, id)
	}

	e.queue = remaining
	e.metrics.SetQueueDepth(metrics.EngineTask, len(e.queue))

	return picked
}

// run invokes the task type under the task timeout. Panics are converted into a
// retryable failure.
func (e *Engine) run(
	ctx context.Context,
	taskType protocol.TaskType,
	task *models.Task,
	exec *models.TaskExecution,
	logger *slog.Logger,
) (result protocol.Result, failure *models.ExecutionError) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "task.execute",
		attribute.String(otelhelper.TaskIDKey, task.ID),
		attribute.String(otelhelper.TaskTypeKey, task.Type),
		attribute.String(otelhelper.ExecutionIDKey, exec.ID),
		attribute.Int(otelhelper.AttemptKey, exec.RetryCount+1),
	)
	defer span.End()

	timeout := task.Timeout.Std()
	if timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "Task type panicked", "panic", r)
			failure = e.executionError(models.ErrorCodeExecutionPanic, fmt.Sprintf("panic: %v", r), true)
			failure.Stack = string(debug.Stack())
			otelhelper.SetError(span, failure)
		}
	}()

	result = taskType.Execute(ctx, task.Config, protocol.ExecutionContext{
		ExecutionID: exec.ID,
		TaskID:      task.ID,
		Input:       models.CloneMap(exec.Input),
		Attempt:     exec.RetryCount + 1,
		Timeout:     timeout,
		StartedAt:   *exec.StartedAt,
		Logger:      logger,
	})

	if !result.Success {
		failure = e.executionError(models.ErrorCodeExecutionFailed, result.Error, true)
	}

	otelhelper.SetOutcome(span, result.Success, result.Error)

	return result, failure
}

// finish records the outcome unless the execution was cancelled while it ran.
func (e *Engine) finish(ctx context.Context, id string, started time.Time, result protocol.Result, failure *models.ExecutionError) {
	e.mu.Lock()

	exec, ok := e.executions[id]
	if !ok || exec.Status == models.ExecutionStatusCancelled {
		e.mu.Unlock()
		e.logger.InfoContext(ctx, "Discarding result of cancelled execution", "execution_id", id)

		return
	}

	completed := e.clock.Now()
	elapsed := completed.Sub(started)

	exec.CompletedAt = &completed
	exec.Metrics.ExecutionTime = models.Duration(elapsed)

	if exec.Allocation != nil {
		exec.Metrics.ResourceUsage = models.UsageFrom(exec.Allocation.Resources)
	}

	eventType := events.TaskExecutionCompleted

	if failure != nil {
		exec.Status = models.ExecutionStatusFailed
		exec.Error = failure
		exec.Output = nil
		eventType = events.TaskExecutionFailed
	} else {
		exec.Status = models.ExecutionStatusCompleted
		exec.Output = models.CloneMap(result.Output)
	}

	e.releaseLocked(exec)
	stored := exec.Clone()
	e.mu.Unlock()

	e.metrics.ObserveExecution(metrics.EngineTask, string(stored.Status), elapsed)

	if failure != nil {
		e.logger.WarnContext(ctx, "Task execution failed",
			"execution_id", id, "task_id", stored.TaskID, "code", failure.Code, "error", failure.Message)
	} else {
		e.logger.InfoContext(ctx, "Task execution completed",
			"execution_id", id, "task_id", stored.TaskID, "duration", elapsed)
	}

	e.emit(ctx, eventType, id, stored)
}

func (e *Engine) executionError(code, message string, retryable bool) *models.ExecutionError {
	return &models.ExecutionError{
		Code:      code,
		Message:   message,
		Timestamp: e.clock.Now(),
		Retryable: retryable,
	}
}
