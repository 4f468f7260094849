package condition_test

import (
	"context"
	"testing"

	"github.com/dukex/taskflow/pkg/expression"
	"github.com/dukex/taskflow/pkg/nodetypes/condition"
	"github.com/dukex/taskflow/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeType(t *testing.T) {
	evaluator, err := expression.NewCELEvaluator()
	require.NoError(t, err)
	defer evaluator.Close()

	node := condition.New(evaluator)
	execCtx := protocol.ExecutionContext{Variables: map[string]any{"status": 503}}

	result := node.Execute(context.Background(), map[string]any{"expression": "variables.status >= 500"}, execCtx)
	require.True(t, result.Success, result.Error)
	assert.Equal(t, true, result.Output["result"])
	assert.Equal(t, "variables.status >= 500", result.Output["expression"])

	result = node.Execute(context.Background(), map[string]any{"expression": "variables.status == 200"}, execCtx)
	require.True(t, result.Success, result.Error)
	assert.Equal(t, false, result.Output["result"])

	result = node.Execute(context.Background(), map[string]any{"expression": "variables.status"}, execCtx)
	assert.False(t, result.Success)

	assert.True(t, node.Validate(map[string]any{"expression": "true"}).Valid)
	assert.False(t, node.Validate(map[string]any{"expression": "1 +"}).Valid)
	assert.False(t, node.Validate(map[string]any{}).Valid)
}
