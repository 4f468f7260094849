package workflow

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

// errorsVariable collects node failures when a workflow uses continue error handling.
const errorsVariable = "errors"

// ProcessNext advances the first queued execution by one node. It reports whether an
// execution was advanced. Overlapping calls return false immediately.
func (e *Engine) ProcessNext(ctx context.Context) bool {
	if !e.processing.CompareAndSwap(false, true) {
		return false
	}
	defer e.processing.Store(false)

	e.mu.Lock()

	exec := e.popLocked()
	if exec == nil {
		e.mu.Unlock()

		return false
	}

	wf, found := e.workflows[exec.WorkflowID]
	if found {
		wf = wf.Clone()
	}

	running := exec.Clone()
	e.mu.Unlock()

	logger := e.logger.With("execution_id", running.ID, "workflow_id", running.WorkflowID)

	if !found {
		e.fail(ctx, running.ID, e.executionError(models.ErrorCodeWorkflowNotFound,
			fmt.Sprintf("workflow %s no longer exists", running.WorkflowID), false))

		return true
	}

	if timeout := wf.Settings.Timeout.Std(); timeout > 0 && e.clock.Since(running.StartedAt) > timeout {
		e.fail(ctx, running.ID, e.executionError(models.ErrorCodeWorkflowTimeout,
			fmt.Sprintf("workflow exceeded its timeout of %s", timeout), false))

		return true
	}

	node := e.nextNode(ctx, wf, running, logger)
	if node == nil {
		e.complete(ctx, running.ID)

		return true
	}

	logger = logger.With("node_id", node.ID, "node_type", node.Type)
	logger.DebugContext(ctx, "Executing workflow node")

	nodeType, ok := e.types.NodeType(node.Type)
	if !ok {
		e.fail(ctx, running.ID, e.executionError(models.ErrorCodeNodeTypeNotFound,
			fmt.Sprintf("node type %q is not registered", node.Type), false))

		return true
	}

	started := e.clock.Now()
	result, failure := e.run(ctx, nodeType, wf, node, running, logger)
	elapsed := e.clock.Since(started)

	e.metrics.ObserveNode(node.Type, outcome(failure))

	if advanced := e.record(ctx, wf, node, running.ID, result, failure, elapsed); advanced != nil {
		e.advance(ctx, wf, advanced, logger)
	}

	return true
}

// advance completes the execution when the node just recorded has no successor, and
// queues it for the next tick otherwise. A paused execution is left for ResumeExecution.
func (e *Engine) advance(ctx context.Context, wf *models.Workflow, exec *models.WorkflowExecution, logger *slog.Logger) {
	if exec.Status != models.WorkflowExecutionRunning {
		return
	}

	if e.nextNode(ctx, wf, exec, logger) == nil {
		e.complete(ctx, exec.ID)

		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if current, ok := e.executions[exec.ID]; ok {
		e.requeueLocked(current)
	}
}

// popLocked removes and returns the first queued execution that is still running.
func (e *Engine) popLocked() *models.WorkflowExecution {
	defer func() { e.metrics.SetQueueDepth(metrics.EngineWorkflow, len(e.queue)) }()

	for len(e.queue) > 0 {
		id := e.queue[0]
		e.queue = e.queue[1:]

		if exec, ok := e.executions[id]; ok && exec.Status == models.WorkflowExecutionRunning {
			return exec
		}
	}

	return nil
}

// nextNode picks the first trigger when the walk has not started, otherwise the target
// of the first outgoing connection whose condition is empty or true. A condition that
// fails to evaluate does not match.
func (e *Engine) nextNode(ctx context.Context, wf *models.Workflow, exec *models.WorkflowExecution, logger *slog.Logger) *models.WorkflowNode {
	if exec.Context.CurrentNodeID == "" {
		trigger, _ := wf.FirstTrigger()

		return trigger
	}

	data := e.executionContext(wf, exec, exec.Context.CurrentNodeID, logger).Data()

	for _, conn := range wf.OutgoingConnections(exec.Context.CurrentNodeID) {
		if conn.Condition != "" {
			matched, err := e.evaluator.EvaluateBool(ctx, conn.Condition, data)
			if err != nil {
				logger.WarnContext(ctx, "Connection condition failed to evaluate",
					"connection_id", conn.ID, "condition", conn.Condition, "error", err)

				continue
			}

			if !matched {
				continue
			}
		}

		if target, ok := wf.FindNode(conn.Target); ok {
			return target
		}
	}

	return nil
}

func (e *Engine) executionContext(wf *models.Workflow, exec *models.WorkflowExecution, nodeID string, logger *slog.Logger) protocol.ExecutionContext {
	return protocol.ExecutionContext{
		ExecutionID: exec.ID,
		WorkflowID:  wf.ID,
		NodeID:      nodeID,
		Input:       models.CloneMap(exec.Input),
		Variables:   models.CloneMap(exec.Context.Variables),
		Attempt:     exec.Context.RetryCount + 1,
		Timeout:     wf.Settings.Timeout.Std(),
		StartedAt:   exec.StartedAt,
		Logger:      logger,
	}
}

// run invokes the node type. Panics are converted into a node failure.
func (e *Engine) run(
	ctx context.Context,
	nodeType protocol.NodeType,
	wf *models.Workflow,
	node *models.WorkflowNode,
	exec *models.WorkflowExecution,
	logger *slog.Logger,
) (result protocol.Result, failure *models.ExecutionError) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.node",
		attribute.String(otelhelper.WorkflowIDKey, exec.WorkflowID),
		attribute.String(otelhelper.ExecutionIDKey, exec.ID),
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeTypeKey, node.Type),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "Node type panicked", "panic", r)
			failure = e.executionError(models.ErrorCodeNodeFailed, fmt.Sprintf("node %s panicked: %v", node.ID, r), true)
			failure.Stack = string(debug.Stack())
			otelhelper.SetError(span, failure)
		}
	}()

	result = nodeType.Execute(ctx, models.CloneMap(node.Config), e.executionContext(wf, exec, node.ID, logger))

	if !result.Success {
		failure = e.executionError(models.ErrorCodeNodeFailed, fmt.Sprintf("node %s failed: %s", node.ID, result.Error), true)
	}

	otelhelper.SetOutcome(span, result.Success, result.Error)

	return result, failure
}

// record applies a node outcome according to the workflow error handling. It returns the
// updated execution when the walk moved past the node. Results that arrive after the
// execution was cancelled are discarded.
func (e *Engine) record(
	ctx context.Context,
	wf *models.Workflow,
	node *models.WorkflowNode,
	id string,
	result protocol.Result,
	failure *models.ExecutionError,
	elapsed time.Duration,
) *models.WorkflowExecution {
	e.mu.Lock()

	exec, ok := e.executions[id]
	if !ok || exec.Status.IsTerminal() {
		e.mu.Unlock()
		e.logger.InfoContext(ctx, "Discarding node result of finished execution", "execution_id", id, "node_id", node.ID)

		return nil
	}

	if exec.Context.Variables == nil {
		exec.Context.Variables = make(map[string]any)
	}

	if failure != nil {
		switch wf.Settings.ErrorHandling {
		case models.ErrorHandlingRetry:
			if exec.Context.RetryCount >= exec.Context.MaxRetries {
				e.mu.Unlock()
				e.fail(ctx, id, failure)

				return nil
			}

			exec.Context.RetryCount++
			retry := exec.Context.RetryCount
			e.requeueLocked(exec)
			e.mu.Unlock()

			e.logger.WarnContext(ctx, "Retrying workflow node",
				"execution_id", id, "node_id", node.ID, "retry", retry, "error", failure.Message)

			return nil
		case models.ErrorHandlingContinue:
			recorded, _ := exec.Context.Variables[errorsVariable].([]any)
			exec.Context.Variables[errorsVariable] = append(recorded, map[string]any{
				"nodeId":  node.ID,
				"message": failure.Message,
			})
		default:
			e.mu.Unlock()
			e.fail(ctx, id, failure)

			return nil
		}
	} else {
		for k, v := range result.Output {
			exec.Context.Variables[k] = v
		}
	}

	exec.Context.CurrentNodeID = node.ID
	exec.Context.ExecutionPath = append(exec.Context.ExecutionPath, node.ID)
	exec.Metrics.ExecutedNodes++
	exec.Metrics.ExecutionTime += models.Duration(elapsed)
	stored := exec.Clone()
	e.mu.Unlock()

	if failure != nil {
		e.logger.WarnContext(ctx, "Workflow node failed, continuing",
			"execution_id", id, "node_id", node.ID, "error", failure.Message)
	} else {
		e.logger.DebugContext(ctx, "Workflow node completed", "execution_id", id, "node_id", node.ID)
	}

	e.emit(ctx, events.WorkflowExecutionNodeCompleted, id, stored.Clone())

	return stored
}

// requeueLocked queues the execution again unless it was paused meanwhile.
func (e *Engine) requeueLocked(exec *models.WorkflowExecution) {
	if exec.Status == models.WorkflowExecutionRunning {
		e.enqueueLocked(exec.ID)
	}
}

// complete finishes a walk that has no next node.
func (e *Engine) complete(ctx context.Context, id string) {
	e.finalize(ctx, id, nil)
}

func (e *Engine) fail(ctx context.Context, id string, failure *models.ExecutionError) {
	e.finalize(ctx, id, failure)
}

func (e *Engine) finalize(ctx context.Context, id string, failure *models.ExecutionError) {
	e.mu.Lock()

	exec, ok := e.executions[id]
	if !ok || exec.Status.IsTerminal() {
		e.mu.Unlock()

		return
	}

	completed := e.clock.Now()
	elapsed := completed.Sub(exec.StartedAt)

	exec.CompletedAt = &completed
	exec.Metrics.ExecutionTime = models.Duration(elapsed)

	eventType := events.WorkflowExecutionCompleted

	if failure != nil {
		exec.Status = models.WorkflowExecutionFailed
		exec.Error = failure
		eventType = events.WorkflowExecutionFailed
	} else {
		exec.Status = models.WorkflowExecutionCompleted
		exec.Output = models.CloneMap(exec.Context.Variables)
	}

	e.dequeueLocked(id)
	stored := exec.Clone()
	e.mu.Unlock()

	e.metrics.ObserveExecution(metrics.EngineWorkflow, string(stored.Status), elapsed)

	if failure != nil {
		e.logger.WarnContext(ctx, "Workflow execution failed",
			"execution_id", id, "workflow_id", stored.WorkflowID, "code", failure.Code, "error", failure.Message)
	} else {
		e.logger.InfoContext(ctx, "Workflow execution completed",
			"execution_id", id, "workflow_id", stored.WorkflowID, "nodes", stored.Metrics.ExecutedNodes, "duration", elapsed)
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

func outcome(failure *models.ExecutionError) string {
	if failure != nil {
		return "failed"
	}

	return "completed"
}
