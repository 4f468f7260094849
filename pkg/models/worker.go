package models

import (
	"slices"
	"time"
)

type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusBusy    WorkerStatus = "busy"
	WorkerStatusOffline WorkerStatus = "offline"
)

type WorkerMetrics struct {
	TasksCompleted       int      `json:"tasksCompleted"`
	TasksFailed          int      `json:"tasksFailed"`
	AverageExecutionTime Duration `json:"averageExecutionTime"`
	Uptime               Duration `json:"uptime"`
}

// Worker is a registry entry. Executions are never bound to a specific worker.
type Worker struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"                    validate:"required"`
	Capabilities  []string      `json:"capabilities,omitempty"`
	Status        WorkerStatus  `json:"status"`
	CurrentTaskID string        `json:"currentTaskId,omitempty"`
	LastHeartbeat time.Time     `json:"lastHeartbeat"`
	Metrics       WorkerMetrics `json:"metrics"`
	RegisteredAt  time.Time     `json:"registeredAt"`
}

func (w *Worker) Clone() *Worker {
	if w == nil {
		return nil
	}

	c := *w
	c.Capabilities = slices.Clone(w.Capabilities)

	return &c
}
