package task_test

import (
	"context"
	"testing"
	"time"

	"github.com/dukex/taskflow/pkg/events"
	"github.com/dukex/taskflow/pkg/models"
	"github.com/dukex/taskflow/pkg/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterWorker(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.RegisterWorker(ctx, &models.Worker{})
	assert.True(t, task.IsValidationError(err))

	worker, err := f.engine.RegisterWorker(ctx, &models.Worker{Name: "alpha", Capabilities: []string{"http_request"}})
	require.NoError(t, err)
	assert.Equal(t, models.WorkerStatusIdle, worker.Status)
	assert.Equal(t, epoch, worker.LastHeartbeat)
	assert.Contains(t, f.events.types(), events.WorkerRegistered)

	f.clock.Advance(time.Minute)

	status, err := f.engine.GetWorkerStatus(ctx, worker.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Duration(time.Minute), status.Metrics.Uptime)

	workers, err := f.engine.ListWorkers(ctx)
	require.NoError(t, err)
	assert.Len(t, workers, 1)

	_, err = f.engine.GetWorkerStatus(ctx, "missing")
	assert.ErrorIs(t, err, task.ErrWorkerNotFound)
}

func TestSweepWorkers_MarksStaleWorkersOffline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stale, _ := f.engine.RegisterWorker(ctx, &models.Worker{Name: "stale"})

	f.clock.Advance(20 * time.Second)
	fresh, _ := f.engine.RegisterWorker(ctx, &models.Worker{Name: "fresh"})

	f.clock.Advance(11 * time.Second)
	assert.Equal(t, 1, f.engine.SweepWorkers(ctx))
	assert.Zero(t, f.engine.SweepWorkers(ctx), "offline workers are not reported twice")

	got, _ := f.engine.GetWorkerStatus(ctx, stale.ID)
	assert.Equal(t, models.WorkerStatusOffline, got.Status)

	got, _ = f.engine.GetWorkerStatus(ctx, fresh.ID)
	assert.Equal(t, models.WorkerStatusIdle, got.Status)
	assert.Contains(t, f.events.types(), events.WorkerOffline)

	revived, err := f.engine.Heartbeat(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkerStatusIdle, revived.Status)
	assert.Equal(t, f.clock.Now(), revived.LastHeartbeat)
}

func TestUnregisterWorker_CancelsRunningExecutions(t *testing.T) {
	block := newBlocker()
	f := newFixture(t, &stubType{name: "blocking", execute: block.execute})
	ctx := context.Background()

	worker, _ := f.engine.RegisterWorker(ctx, &models.Worker{Name: "alpha"})
	created := f.createTask(t, &models.Task{Name: "slow", Type: "blocking"})

	running, _ := f.engine.ExecuteTask(ctx, created.ID, nil)
	pending, _ := f.engine.ExecuteTask(ctx, created.ID, nil)

	done := make(chan bool)
	go func() { done <- f.engine.ProcessNext(ctx) }()
	<-block.entered

	require.NoError(t, f.engine.UnregisterWorker(ctx, worker.ID))

	close(block.release)
	<-done

	cancelled, _ := f.engine.GetExecution(ctx, running.ID)
	assert.Equal(t, models.ExecutionStatusCancelled, cancelled.Status)

	untouched, _ := f.engine.GetExecution(ctx, pending.ID)
	assert.Equal(t, models.ExecutionStatusPending, untouched.Status)

	_, err := f.engine.GetWorkerStatus(ctx, worker.ID)
	assert.ErrorIs(t, err, task.ErrWorkerNotFound)
	assert.ErrorIs(t, f.engine.UnregisterWorker(ctx, worker.ID), task.ErrWorkerNotFound)
	assert.Contains(t, f.events.types(), events.WorkerUnregistered)
}
