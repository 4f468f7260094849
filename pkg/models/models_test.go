package models

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuration_JSON(t *testing.T) {
	var payload struct {
		Timeout Duration `json:"timeout"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"timeout":"1m30s"}`), &payload))
	assert.Equal(t, 90*time.Second, payload.Timeout.Std())

	require.NoError(t, json.Unmarshal([]byte(`{"timeout":250}`), &payload))
	assert.Equal(t, 250*time.Millisecond, payload.Timeout.Std())

	assert.Error(t, json.Unmarshal([]byte(`{"timeout":"soon"}`), &payload))

	out, err := json.Marshal(Duration(2 * time.Second))
	require.NoError(t, err)
	assert.JSONEq(t, `"2s"`, string(out))
}

func TestRetryPolicy_Delay(t *testing.T) {
	tests := []struct {
		name    string
		policy  RetryPolicy
		attempt int
		want    time.Duration
	}{
		{"no delay", RetryPolicy{}, 3, 0},
		{"fixed", RetryPolicy{InitialDelay: Duration(time.Second)}, 3, time.Second},
		{"linear", RetryPolicy{BackoffStrategy: BackoffLinear, InitialDelay: Duration(time.Second)}, 3, 3 * time.Second},
		{"exponential", RetryPolicy{BackoffStrategy: BackoffExponential, InitialDelay: Duration(time.Second)}, 4, 8 * time.Second},
		{
			"capped",
			RetryPolicy{BackoffStrategy: BackoffExponential, InitialDelay: Duration(time.Second), MaxDelay: Duration(5 * time.Second)},
			4,
			5 * time.Second,
		},
		{
			"exponential past duration range is capped",
			RetryPolicy{BackoffStrategy: BackoffExponential, InitialDelay: Duration(time.Second), MaxDelay: Duration(time.Minute)},
			35,
			time.Minute,
		},
		{
			"exponential at shift width is capped",
			RetryPolicy{BackoffStrategy: BackoffExponential, InitialDelay: Duration(time.Second), MaxDelay: Duration(time.Minute)},
			64,
			time.Minute,
		},
		{
			"exponential overflow without cap saturates",
			RetryPolicy{BackoffStrategy: BackoffExponential, InitialDelay: Duration(time.Second)},
			64,
			time.Duration(math.MaxInt64),
		},
		{
			"linear overflow saturates",
			RetryPolicy{BackoffStrategy: BackoffLinear, InitialDelay: Duration(time.Hour), MaxDelay: Duration(time.Minute)},
			math.MaxInt32,
			time.Minute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.Delay(tt.attempt))
		})
	}
}

func TestTask_CloneDoesNotAlias(t *testing.T) {
	original := &Task{
		ID:     "task-1",
		Config: map[string]any{"headers": map[string]any{"a": "1"}},
		Tags:   []string{"ops"},
	}

	clone := original.Clone()
	clone.Config["headers"].(map[string]any)["a"] = "2"
	clone.Tags[0] = "dev"

	assert.Equal(t, "1", original.Config["headers"].(map[string]any)["a"])
	assert.Equal(t, "ops", original.Tags[0])
}

func TestTask_HasAnyTag(t *testing.T) {
	task := &Task{Tags: []string{"ops", "nightly"}}

	assert.True(t, task.HasAnyTag([]string{"nightly", "x"}))
	assert.False(t, task.HasAnyTag([]string{"x"}))
	assert.False(t, task.HasAnyTag(nil))
}

func TestTaskExecution_StartedAtOrZero(t *testing.T) {
	exec := &TaskExecution{}
	assert.Equal(t, time.Unix(0, 0), exec.StartedAtOrZero())

	now := time.Now()
	exec.StartedAt = &now
	assert.Equal(t, now, exec.StartedAtOrZero())
}

func TestExecutionStatus_IsTerminal(t *testing.T) {
	assert.True(t, ExecutionStatusCompleted.IsTerminal())
	assert.True(t, ExecutionStatusFailed.IsTerminal())
	assert.True(t, ExecutionStatusCancelled.IsTerminal())
	assert.False(t, ExecutionStatusPending.IsTerminal())
	assert.False(t, ExecutionStatusRunning.IsTerminal())
	assert.False(t, ExecutionStatusRetrying.IsTerminal())
}

func TestTaskSchedule_Due(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	maxRuns := 2

	schedule := &TaskSchedule{Active: true, NextRunAt: now.Add(-time.Minute), MaxRuns: &maxRuns}
	assert.True(t, schedule.Due(now))

	schedule.RunCount = 2
	assert.False(t, schedule.Due(now))

	schedule.RunCount = 0
	schedule.NextRunAt = now.Add(time.Minute)
	assert.False(t, schedule.Due(now))

	schedule.NextRunAt = now
	schedule.Active = false
	assert.False(t, schedule.Due(now))
}

func TestWorkflow_GraphHelpers(t *testing.T) {
	wf := &Workflow{
		Nodes: []WorkflowNode{
			{ID: "a", Type: "action"},
			{ID: "t1", Type: NodeTypeTrigger},
			{ID: "t2", Type: NodeTypeTrigger},
		},
		Connections: []Connection{
			{ID: "c1", Source: "t1", Target: "a"},
			{ID: "c2", Source: "a", Target: "t2"},
			{ID: "c3", Source: "t1", Target: "t2"},
		},
		Variables: []Variable{{Name: "env", Type: "string", Value: "prod"}},
	}

	trigger, ok := wf.FirstTrigger()
	require.True(t, ok)
	assert.Equal(t, "t1", trigger.ID)

	out := wf.OutgoingConnections("t1")
	require.Len(t, out, 2)
	assert.Equal(t, "c1", out[0].ID)
	assert.Equal(t, "c3", out[1].ID)

	_, ok = wf.FindNode("missing")
	assert.False(t, ok)

	assert.Equal(t, map[string]any{"env": "prod"}, wf.InitialVariables())
}

func TestWorkflowExecution_Clone(t *testing.T) {
	exec := &WorkflowExecution{
		Context: WorkflowContext{
			Variables:     map[string]any{"x": 1},
			ExecutionPath: []string{"a"},
		},
	}

	clone := exec.Clone()
	clone.Context.Variables["x"] = 2
	clone.Context.ExecutionPath[0] = "b"

	assert.Equal(t, 1, exec.Context.Variables["x"])
	assert.Equal(t, "a", exec.Context.ExecutionPath[0])
}

func TestUsageFrom(t *testing.T) {
	usage := UsageFrom([]ResourceRequirement{
		{Type: ResourceTypeCPU, Amount: 0.5},
		{Type: ResourceTypeCPU, Amount: 0.5},
		{Type: ResourceTypeMemory, Amount: 128},
		{Type: ResourceTypeCustom, Amount: 3},
	})

	assert.InDelta(t, 1.0, usage.CPU, 0.0001)
	assert.InDelta(t, 128.0, usage.Memory, 0.0001)
	assert.Zero(t, usage.Disk)
}
