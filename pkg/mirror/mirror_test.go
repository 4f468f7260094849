package mirror_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dukex/taskflow/pkg/eventbus"
	"github.com/dukex/taskflow/pkg/events"
	"github.com/dukex/taskflow/pkg/log"
	"github.com/dukex/taskflow/pkg/mirror"
	"github.com/dukex/taskflow/pkg/mocks"
	"github.com/dukex/taskflow/pkg/models"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestMirror_UpsertsAndDeletes(t *testing.T) {
	ctx := context.Background()
	store := mirror.NewMemoryStore()
	m := mirror.New(store, log.Discard())
	emitter := events.NewEmitter(log.Discard())
	detach := m.Attach(emitter)
	defer detach()

	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	task := &models.Task{
		ID:        "task-1",
		Name:      "ping",
		Type:      "http_request",
		Config:    map[string]any{"url": "https://example.test"},
		Metadata:  models.TaskMetadata{Author: "ops"},
		CreatedAt: created,
	}

	emitter.Emit(ctx, events.New(events.TaskCreated, events.SourceTaskEngine, task.ID, created, task))

	doc, err := store.Get(ctx, mirror.CollectionTasks, "task-1")
	require.NoError(t, err)
	assert.Equal(t, "http_request", doc.Type)
	assert.Equal(t, "ops", doc.CreatedBy)
	assert.True(t, created.Equal(doc.CreatedAt))

	var decoded models.Task
	require.NoError(t, json.Unmarshal(doc.Data, &decoded))
	assert.Equal(t, "ping", decoded.Name)

	emitter.Emit(ctx, events.New(events.TaskDeleted, events.SourceTaskEngine, task.ID, time.Now(), task))

	_, err = store.Get(ctx, mirror.CollectionTasks, "task-1")
	assert.ErrorIs(t, err, mirror.ErrNotFound)
}

func TestMirror_ExecutionStatusFollowsEvents(t *testing.T) {
	ctx := context.Background()
	store := mirror.NewMemoryStore()
	m := mirror.New(store, log.Discard())
	emitter := events.NewEmitter(log.Discard())
	defer m.Attach(emitter)()

	execution := &models.TaskExecution{ID: "exec-1", TaskID: "task-1", Status: models.ExecutionStatusPending}
	emitter.Emit(ctx, events.New(events.TaskExecutionStarted, events.SourceTaskEngine, execution.ID, time.Now(), execution))

	execution.Status = models.ExecutionStatusCompleted
	emitter.Emit(ctx, events.New(events.TaskExecutionCompleted, events.SourceTaskEngine, execution.ID, time.Now(), execution))

	docs, err := store.List(ctx, mirror.CollectionTaskExecutions, mirror.ListQuery{Type: "task-1"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "completed", docs[0].Status)
}

func TestMirror_ScheduleStatus(t *testing.T) {
	ctx := context.Background()
	store := mirror.NewMemoryStore()
	m := mirror.New(store, log.Discard())

	data, err := json.Marshal(&models.TaskSchedule{ID: "sched-1", TaskID: "task-1", Active: true})
	require.NoError(t, err)
	require.NoError(t, m.Apply(ctx, events.TaskScheduled, "sched-1", time.Now(), data))

	doc, err := store.Get(ctx, mirror.CollectionTaskSchedules, "sched-1")
	require.NoError(t, err)
	assert.Equal(t, "active", doc.Status)
	assert.Equal(t, "task-1", doc.Type)
}

func TestMirror_Watch(t *testing.T) {
	ctx := context.Background()
	m := mirror.New(mirror.NewMemoryStore(), log.Discard())

	var changes []mirror.Change

	stop := m.Watch(mirror.CollectionWorkers, func(c mirror.Change) { changes = append(changes, c) })

	worker := &models.Worker{ID: "w-1", Name: "alpha", Status: models.WorkerStatusIdle}
	data, _ := json.Marshal(worker)

	require.NoError(t, m.HandleEnvelope(ctx, eventbus.Envelope{Type: events.WorkerRegistered, Key: "w-1", Payload: data}))
	require.NoError(t, m.HandleEnvelope(ctx, eventbus.Envelope{Type: events.WorkerUnregistered, Key: "w-1", Payload: data}))

	stop()
	require.NoError(t, m.HandleEnvelope(ctx, eventbus.Envelope{Type: events.WorkerRegistered, Key: "w-1", Payload: data}))

	require.Len(t, changes, 2)
	assert.False(t, changes[0].Deleted)
	assert.Equal(t, "idle", changes[0].Document.Status)
	assert.True(t, changes[1].Deleted)
}

func TestMirror_UnknownEvent(t *testing.T) {
	m := mirror.New(mirror.NewMemoryStore(), log.Discard())

	err := m.Apply(context.Background(), events.EventType("nope"), "x", time.Now(), nil)
	assert.ErrorIs(t, err, mirror.ErrUnknownCollection)
}

func TestApplyQuery(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	docs := []mirror.Document{
		{ID: "c", Status: "active", CreatedAt: base.Add(2 * time.Hour)},
		{ID: "a", Status: "active", CreatedAt: base},
		{ID: "b", Status: "draft", CreatedAt: base.Add(time.Hour)},
	}

	active := mirror.ApplyQuery(docs, mirror.ListQuery{Status: "active"})
	require.Len(t, active, 2)
	assert.Equal(t, "a", active[0].ID)
	assert.Equal(t, "c", active[1].ID)

	paged := mirror.ApplyQuery(docs, mirror.ListQuery{Offset: 1, Limit: 1})
	require.Len(t, paged, 1)
	assert.Equal(t, "b", paged[0].ID)

	assert.Empty(t, mirror.ApplyQuery(docs, mirror.ListQuery{Offset: 5}))
}

func TestMirror_StoreFailure(t *testing.T) {
	store := &mocks.MockStore{}
	store.On("Save", mock.Anything, mock.MatchedBy(func(doc mirror.Document) bool {
		return doc.Collection == mirror.CollectionTasks && doc.ID == "task-1"
	})).Return(errors.New("disk full")).Once()
	store.On("Delete", mock.Anything, mirror.CollectionTasks, "task-2").Return(mirror.ErrNotFound).Once()

	m := mirror.New(store, log.Discard())

	var changes int
	stop := m.Watch(mirror.CollectionTasks, func(mirror.Change) { changes++ })
	defer stop()

	err := m.Apply(context.Background(), events.TaskCreated, "task-1", time.Now(), json.RawMessage(`{"id":"task-1","name":"ping"}`))
	assert.ErrorContains(t, err, "disk full")

	require.NoError(t, m.Apply(context.Background(), events.TaskDeleted, "task-2", time.Now(), nil))

	assert.Equal(t, 1, changes)
	store.AssertExpectations(t)
}
