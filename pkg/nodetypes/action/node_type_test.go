package action_test

import (
	"context"
	"testing"

	"github.com/dukex/taskflow/pkg/expression"
	"github.com/dukex/taskflow/pkg/nodetypes/action"
	"github.com/dukex/taskflow/pkg/protocol"
	"github.com/dukex/taskflow/pkg/tasktypes/customfunction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lookup map[string]protocol.TaskType

func (l lookup) TaskType(name string) (protocol.TaskType, bool) {
	taskType, ok := l[name]

	return taskType, ok
}

func TestNodeType(t *testing.T) {
	node := action.New(lookup{
		customfunction.Name: customfunction.New(expression.DefaultFunctions(), nil),
	})

	result := node.Execute(context.Background(), map[string]any{
		"actionType": "custom_function",
		"function":   "echo",
	}, protocol.ExecutionContext{Input: map[string]any{"service": "api"}})

	require.True(t, result.Success, result.Error)
	assert.Equal(t, map[string]any{"service": "api"}, result.Output)

	result = node.Execute(context.Background(), map[string]any{"actionType": "teleport"}, protocol.ExecutionContext{})
	assert.False(t, result.Success)
	assert.Equal(t, "action type 'teleport' is not registered", result.Error)
}

func TestNodeType_Validate(t *testing.T) {
	node := action.New(lookup{
		customfunction.Name: customfunction.New(expression.DefaultFunctions(), nil),
	})

	assert.True(t, node.Validate(map[string]any{"actionType": "custom_function", "function": "echo"}).Valid)
	assert.False(t, node.Validate(map[string]any{"actionType": "custom_function"}).Valid)
	assert.False(t, node.Validate(map[string]any{"actionType": "teleport"}).Valid)
	assert.False(t, node.Validate(map[string]any{}).Valid)
}
