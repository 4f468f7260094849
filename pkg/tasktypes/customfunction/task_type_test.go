package customfunction_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dukex/taskflow/pkg/expression"
	"github.com/dukex/taskflow/pkg/protocol"
	"github.com/dukex/taskflow/pkg/tasktypes/customfunction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTaskType(t *testing.T) *customfunction.TaskType {
	t.Helper()

	evaluator, err := expression.NewCELEvaluator()
	require.NoError(t, err)
	t.Cleanup(evaluator.Close)

	functions := expression.DefaultFunctions()
	functions.Register("fail", func(context.Context, map[string]any, map[string]any) (map[string]any, error) {
		return nil, errors.New("boom")
	})
	functions.Register("greet", func(_ context.Context, input map[string]any, args map[string]any) (map[string]any, error) {
		return map[string]any{"greeting": args["prefix"].(string) + " " + input["name"].(string)}, nil
	})

	return customfunction.New(functions, evaluator)
}

func TestTaskType_Execute_Function(t *testing.T) {
	taskType := newTaskType(t)

	result := taskType.Execute(context.Background(), map[string]any{
		"function": "greet",
		"args":     map[string]any{"prefix": "hello"},
	}, protocol.ExecutionContext{Input: map[string]any{"name": "ops"}})

	require.True(t, result.Success, result.Error)
	assert.Equal(t, "hello ops", result.Output["greeting"])

	result = taskType.Execute(context.Background(), map[string]any{"function": "fail"}, protocol.ExecutionContext{})
	assert.False(t, result.Success)
	assert.Equal(t, "boom", result.Error)
}

func TestTaskType_Execute_Expression(t *testing.T) {
	taskType := newTaskType(t)

	result := taskType.Execute(context.Background(), map[string]any{
		"expression": `{"total": input.a * config.factor}`,
		"args":       map[string]any{"factor": 3},
	}, protocol.ExecutionContext{Input: map[string]any{"a": 2}})

	require.True(t, result.Success, result.Error)
	assert.Equal(t, float64(6), result.Output["total"])

	result = taskType.Execute(context.Background(), map[string]any{
		"expression": `size(variables.items)`,
	}, protocol.ExecutionContext{Variables: map[string]any{"items": []any{1, 2}}})

	require.True(t, result.Success, result.Error)
	assert.Equal(t, float64(2), result.Output["result"])
}

func TestTaskType_Validate(t *testing.T) {
	taskType := newTaskType(t)

	assert.True(t, taskType.Validate(map[string]any{"function": "echo"}).Valid)
	assert.True(t, taskType.Validate(map[string]any{"expression": "input.a > 1"}).Valid)
	assert.False(t, taskType.Validate(map[string]any{}).Valid)
	assert.False(t, taskType.Validate(map[string]any{"function": "missing"}).Valid)
	assert.False(t, taskType.Validate(map[string]any{"expression": "input.a >"}).Valid)
	assert.False(t, taskType.Validate(map[string]any{"function": "echo", "expression": "true"}).Valid)
	assert.False(t, taskType.Validate(map[string]any{"code": "require('fs')"}).Valid)
}
