package workflow_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dukex/taskflow/pkg/config"
	"github.com/dukex/taskflow/pkg/events"
	"github.com/dukex/taskflow/pkg/log"
	"github.com/dukex/taskflow/pkg/models"
	"github.com/dukex/taskflow/pkg/nodetypes/trigger"
	"github.com/dukex/taskflow/pkg/protocol"
	"github.com/dukex/taskflow/pkg/registry"
	"github.com/dukex/taskflow/pkg/testutil"
	"github.com/dukex/taskflow/pkg/workflow"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

// stepNode is a node type driven by its config: "fail" makes it fail, "panic" makes it
// panic and "output" is returned as its output.
type stepNode struct {
	mu    sync.Mutex
	calls []string
	hook  func(execCtx protocol.ExecutionContext)
}

func (s *stepNode) Name() string { return "step" }

func (s *stepNode) Schema() map[string]any { return map[string]any{"type": "object"} }

func (s *stepNode) Validate(config map[string]any) protocol.ValidationResult {
	if _, ok := config["invalid"]; ok {
		return protocol.NewValidationResult([]string{"config: invalid is not allowed"}, nil)
	}

	return protocol.NewValidationResult(nil, nil)
}

func (s *stepNode) Execute(_ context.Context, config map[string]any, execCtx protocol.ExecutionContext) protocol.Result {
	s.mu.Lock()
	s.calls = append(s.calls, execCtx.NodeID)
	hook := s.hook
	s.mu.Unlock()

	if hook != nil {
		hook(execCtx)
	}

	if fail, _ := config["fail"].(bool); fail {
		return protocol.Failed("step failure")
	}

	if p, _ := config["panic"].(bool); p {
		panic("step exploded")
	}

	output, _ := config["output"].(map[string]any)

	return protocol.Succeeded(output)
}

func (s *stepNode) called() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.calls))
	copy(out, s.calls)

	return out
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

type fixture struct {
	engine *workflow.Engine
	clock  *clockwork.FakeClock
	step   *stepNode
	events *recorder
}

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	step := &stepNode{}

	reg := registry.New(log.Discard())
	reg.RegisterNodeType(trigger.New())
	reg.RegisterNodeType(step)

	clock := clockwork.NewFakeClockAt(epoch)
	rec := &recorder{}
	emitter := events.NewEmitter(log.Discard())
	emitter.OnAny(rec.handle)

	engine, err := workflow.New(reg,
		workflow.WithClock(clock),
		workflow.WithLogger(log.Discard()),
		workflow.WithEmitter(emitter),
		workflow.WithConfig(config.Default()),
	)
	require.NoError(t, err)

	return &fixture{engine: engine, clock: clock, step: step, events: rec}
}

// linear builds trigger A followed by step nodes B and C.
func linear(settings models.WorkflowSettings) *models.Workflow {
	wf := testutil.CreateTestWorkflow("linear",
		testutil.CreateTestNode(models.NodeTypeTrigger, testutil.WithID("A")),
		testutil.CreateTestNode("step", testutil.WithID("B"), testutil.WithConfig(map[string]any{"output": map[string]any{"b": "done"}})),
		testutil.CreateTestNode("step", testutil.WithID("C"), testutil.WithConfig(map[string]any{"output": map[string]any{"c": "done"}})),
	)
	wf.Settings = settings

	return wf
}

func (f *fixture) create(t *testing.T, def *models.Workflow) *models.Workflow {
	t.Helper()

	created, err := f.engine.CreateWorkflow(context.Background(), def)
	require.NoError(t, err)

	return created
}

func (f *fixture) execute(t *testing.T, workflowID string, input map[string]any) *models.WorkflowExecution {
	t.Helper()

	exec, err := f.engine.ExecuteWorkflow(context.Background(), workflowID, input)
	require.NoError(t, err)

	return exec
}

func (f *fixture) get(t *testing.T, id string) *models.WorkflowExecution {
	t.Helper()

	exec, err := f.engine.GetExecution(context.Background(), id)
	require.NoError(t, err)

	return exec
}

// drain processes ticks until the queue is empty, failing after limit ticks.
func (f *fixture) drain(t *testing.T, limit int) int {
	t.Helper()

	ticks := 0
	for f.engine.ProcessNext(context.Background()) {
		ticks++
		require.LessOrEqual(t, ticks, limit, "queue did not drain")
	}

	return ticks
}
