package task_test

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/dukex/taskflow/pkg/config"
	"github.com/dukex/taskflow/pkg/events"
	"github.com/dukex/taskflow/pkg/log"
	"github.com/dukex/taskflow/pkg/models"
	"github.com/dukex/taskflow/pkg/protocol"
	"github.com/dukex/taskflow/pkg/registry"
	"github.com/dukex/taskflow/pkg/task"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

// stubType is a task type whose behavior each test controls.
type stubType struct {
	name    string
	execute func(ctx context.Context, config map[string]any, execCtx protocol.ExecutionContext) protocol.Result
}

func (s *stubType) Name() string { return s.name }

func (s *stubType) Schema() map[string]any { return map[string]any{"type": "object"} }

func (s *stubType) Validate(config map[string]any) protocol.ValidationResult {
	if _, ok := config["invalid"]; ok {
		return protocol.NewValidationResult([]string{"config: invalid is not allowed"}, nil)
	}

	return protocol.NewValidationResult(nil, nil)
}

func (s *stubType) Execute(ctx context.Context, config map[string]any, execCtx protocol.ExecutionContext) protocol.Result {
	if s.execute != nil {
		return s.execute(ctx, config, execCtx)
	}

	if fail, _ := config["fail"].(bool); fail {
		return protocol.Failed("stub failure")
	}

	return protocol.Succeeded(map[string]any{"echo": execCtx.Input})
}

func (s *stubType) EstimateResources(map[string]any) []models.ResourceRequirement {
	return []models.ResourceRequirement{{Type: models.ResourceTypeCPU, Amount: 0.1, Unit: "cores"}}
}

// blocker lets a test hold a task type inside Execute.
type blocker struct {
	entered chan struct{}
	release chan struct{}
}

func newBlocker() *blocker {
	return &blocker{entered: make(chan struct{}, 8), release: make(chan struct{})}
}

func (b *blocker) execute(context.Context, map[string]any, protocol.ExecutionContext) protocol.Result {
	b.entered <- struct{}{}
	<-b.release

	return protocol.Succeeded(map[string]any{"done": true})
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) handle(_ context.Context, event events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, event)
}

func (r *recorder) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]events.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}

	return out
}

func (r *recorder) all() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.events)
}

type fixture struct {
	engine   *task.Engine
	clock    *clockwork.FakeClock
	registry *registry.Registry
	events   *recorder
}

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func newFixture(t *testing.T, types ...protocol.TaskType) *fixture {
	t.Helper()

	reg := registry.New(log.Discard())
	reg.RegisterTaskType(&stubType{name: "stub"})

	for _, taskType := range types {
		reg.RegisterTaskType(taskType)
	}

	clock := clockwork.NewFakeClockAt(epoch)
	rec := &recorder{}
	emitter := events.NewEmitter(log.Discard())
	emitter.OnAny(rec.handle)

	engine := task.New(reg,
		task.WithClock(clock),
		task.WithLogger(log.Discard()),
		task.WithEmitter(emitter),
		task.WithConfig(config.Default()),
	)

	return &fixture{engine: engine, clock: clock, registry: reg, events: rec}
}

func (f *fixture) createTask(t *testing.T, def *models.Task) *models.Task {
	t.Helper()

	if def.Type == "" {
		def.Type = "stub"
	}

	if def.Config == nil {
		def.Config = map[string]any{}
	}

	created, err := f.engine.CreateTask(context.Background(), def)
	require.NoError(t, err)

	return created
}

// runToEnd executes the task and processes the queue once.
func (f *fixture) runToEnd(t *testing.T, taskID string) *models.TaskExecution {
	t.Helper()

	ctx := context.Background()

	exec, err := f.engine.ExecuteTask(ctx, taskID, nil)
	require.NoError(t, err)
	require.True(t, f.engine.ProcessNext(ctx))

	done, err := f.engine.GetExecution(ctx, exec.ID)
	require.NoError(t, err)

	return done
}
