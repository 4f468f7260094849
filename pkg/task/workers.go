package task

import (
	"context"
	"slices"

	"github.com/dukex/taskflow/pkg/events"
	"github.com/dukex/taskflow/pkg/models"
	"github.com/dukex/taskflow/pkg/validation"
)

// RegisterWorker adds a worker to the registry as idle. Workers are bookkeeping only;
// executions are not dispatched to them.
func (e *Engine) RegisterWorker(ctx context.Context, def *models.Worker) (*models.Worker, error) {
	if def == nil {
		return nil, &ValidationError{Op: "RegisterWorker", Problems: []string{"worker is required"}}
	}

	worker := def.Clone()
	if problems := validation.Struct(worker); len(problems) > 0 {
		return nil, &ValidationError{Op: "RegisterWorker", Problems: problems}
	}

	now := e.clock.Now()
	worker.ID = newID()
	worker.Status = models.WorkerStatusIdle
	worker.CurrentTaskID = ""
	worker.LastHeartbeat = now
	worker.RegisteredAt = now
	worker.Metrics = models.WorkerMetrics{}

	e.mu.Lock()
	e.workers[worker.ID] = worker
	e.workerOrder = append(e.workerOrder, worker.ID)
	stored := worker.Clone()
	online := e.onlineWorkersLocked()
	e.mu.Unlock()

	e.metrics.SetWorkersOnline(online)
	e.logger.InfoContext(ctx, "Worker registered", "worker_id", worker.ID, "name", worker.Name)
	e.emit(ctx, events.WorkerRegistered, worker.ID, stored.Clone())

	return stored, nil
}

// UnregisterWorker removes a worker. Because executions are not bound to workers, every
// running execution in the engine is cancelled first.
func (e *Engine) UnregisterWorker(ctx context.Context, id string) error {
	e.mu.Lock()

	worker, ok := e.workers[id]
	if !ok {
		e.mu.Unlock()

		return notFound(ErrWorkerNotFound, id)
	}

	var cancelled []*models.TaskExecution

	for _, execID := range e.executionOrder {
		exec := e.executions[execID]
		if exec.Status == models.ExecutionStatusRunning {
			e.cancelLocked(exec)
			cancelled = append(cancelled, exec.Clone())
		}
	}

	delete(e.workers, id)
	e.workerOrder = slices.DeleteFunc(e.workerOrder, func(workerID string) bool { return workerID == id })
	removed := worker.Clone()
	online := e.onlineWorkersLocked()
	e.mu.Unlock()

	for _, exec := range cancelled {
		e.emit(ctx, events.TaskExecutionCancelled, exec.ID, exec)
	}

	e.metrics.SetWorkersOnline(online)
	e.logger.InfoContext(ctx, "Worker unregistered", "worker_id", id, "cancelled_executions", len(cancelled))
	e.emit(ctx, events.WorkerUnregistered, id, removed)

	return nil
}

// Heartbeat refreshes a worker's liveness. An offline worker comes back as idle.
func (e *Engine) Heartbeat(_ context.Context, id string) (*models.Worker, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	worker, ok := e.workers[id]
	if !ok {
		return nil, notFound(ErrWorkerNotFound, id)
	}

	worker.LastHeartbeat = e.clock.Now()
	if worker.Status == models.WorkerStatusOffline {
		worker.Status = models.WorkerStatusIdle
		e.metrics.SetWorkersOnline(e.onlineWorkersLocked())
	}

	return e.workerSnapshotLocked(worker), nil
}

func (e *Engine) GetWorkerStatus(_ context.Context, id string) (*models.Worker, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	worker, ok := e.workers[id]
	if !ok {
		return nil, notFound(ErrWorkerNotFound, id)
	}

	return e.workerSnapshotLocked(worker), nil
}

func (e *Engine) ListWorkers(_ context.Context) ([]*models.Worker, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*models.Worker, 0, len(e.workerOrder))
	for _, id := range e.workerOrder {
		out = append(out, e.workerSnapshotLocked(e.workers[id]))
	}

	return out, nil
}

// SweepWorkers runs one heartbeat sweep and returns how many workers went offline.
func (e *Engine) SweepWorkers(ctx context.Context) int {
	now := e.clock.Now()

	e.mu.Lock()

	var offline []*models.Worker

	for _, id := range e.workerOrder {
		worker := e.workers[id]
		if worker.Status == models.WorkerStatusOffline {
			continue
		}

		if now.Sub(worker.LastHeartbeat) > e.cfg.HeartbeatTimeout {
			worker.Status = models.WorkerStatusOffline
			offline = append(offline, worker.Clone())
		}
	}

	online := e.onlineWorkersLocked()
	e.mu.Unlock()

	e.metrics.SetWorkersOnline(online)

	for _, worker := range offline {
		e.logger.WarnContext(ctx, "Worker missed heartbeat", "worker_id", worker.ID, "last_heartbeat", worker.LastHeartbeat)
		e.emit(ctx, events.WorkerOffline, worker.ID, worker)
	}

	return len(offline)
}

func (e *Engine) workerSnapshotLocked(worker *models.Worker) *models.Worker {
	snapshot := worker.Clone()
	snapshot.Metrics.Uptime = models.Duration(e.clock.Since(worker.RegisteredAt))

	return snapshot
}

func (e *Engine) onlineWorkersLocked() int {
	online := 0

	for _, worker := range e.workers {
		if worker.Status != models.WorkerStatusOffline {
			online++
		}
	}

	return online
}
