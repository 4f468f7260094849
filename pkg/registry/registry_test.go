package registry_test

import (
	"context"
	"testing"

	"github.com/dukex/taskflow/pkg/log"
	"github.com/dukex/taskflow/pkg/mocks"
	"github.com/dukex/taskflow/pkg/protocol"
	"github.com/dukex/taskflow/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newMockTaskType(name string) *mocks.MockTaskType {
	taskType := &mocks.MockTaskType{}
	taskType.On("Name").Return(name)

	return taskType
}

func TestRegistry_RegisterTaskType(t *testing.T) {
	r := registry.New(log.Discard())

	_, ok := r.TaskType("mock")
	assert.False(t, ok)

	r.RegisterTaskType(newMockTaskType("mock"))

	taskType, ok := r.TaskType("mock")
	require.True(t, ok)
	assert.Equal(t, "mock", taskType.Name())
	assert.Equal(t, []string{"mock"}, r.TaskTypeNames())
}

func TestRegistry_RegisterDefaults(t *testing.T) {
	r := registry.New(log.Discard())

	require.NoError(t, r.RegisterDefaults(registry.Dependencies{}))

	assert.Equal(t, []string{"custom_function", "database_query", "file_operation", "http_request"}, r.TaskTypeNames())
	assert.Equal(t, []string{"action", "condition", "delay", "transform", "trigger", "webhook"}, r.NodeTypeNames())
}

func TestRegistry_ActionNodeResolvesThroughRegistry(t *testing.T) {
	r := registry.New(log.Discard())
	require.NoError(t, r.RegisterDefaults(registry.Dependencies{}))

	taskType := newMockTaskType("mock")
	taskType.On("Execute", mock.Anything, mock.Anything, mock.Anything).
		Return(protocol.Succeeded(map[string]any{"mock": true})).Once()
	r.RegisterTaskType(taskType)

	action, ok := r.NodeType("action")
	require.True(t, ok)

	result := action.Execute(context.Background(), map[string]any{"actionType": "mock"}, protocol.ExecutionContext{})
	require.True(t, result.Success)
	assert.Equal(t, true, result.Output["mock"])
	taskType.AssertExpectations(t)
}

func TestRegistry_LoadPlugins_EmptyDirectory(t *testing.T) {
	r := registry.New(log.Discard())

	taskTypes, err := r.LoadTaskTypePlugins(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, taskTypes)

	nodeTypes, err := r.LoadNodeTypePlugins(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, nodeTypes)
}
