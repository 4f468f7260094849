// Package mocks provides testify mocks of the engine collaborators.
package mocks

import (
	"context"

	"github.com/dukex/taskflow/pkg/models"
	"github.com/dukex/taskflow/pkg/protocol"
	"github.com/stretchr/testify/mock"
)

// MockTaskType is a mock implementation of protocol.TaskType.
type MockTaskType struct {
	mock.Mock
}

func (m *MockTaskType) Name() string {
	args := m.Called()

	return args.String(0)
}

func (m *MockTaskType) Schema() map[string]any {
	args := m.Called()

	schema, _ := args.Get(0).(map[string]any)

	return schema
}

func (m *MockTaskType) Validate(config map[string]any) protocol.ValidationResult {
	args := m.Called(config)

	return args.Get(0).(protocol.ValidationResult)
}

func (m *MockTaskType) Execute(ctx context.Context, config map[string]any, execCtx protocol.ExecutionContext) protocol.Result {
	args := m.Called(ctx, config, execCtx)

	return args.Get(0).(protocol.Result)
}

func (m *MockTaskType) EstimateResources(config map[string]any) []models.ResourceRequirement {
	args := m.Called(config)

	requirements, _ := args.Get(0).([]models.ResourceRequirement)

	return requirements
}

// MockNodeType is a mock implementation of protocol.NodeType.
type MockNodeType struct {
	mock.Mock
}

func (m *MockNodeType) Name() string {
	args := m.Called()

	return args.String(0)
}

func (m *MockNodeType) Schema() map[string]any {
	args := m.Called()

	schema, _ := args.Get(0).(map[string]any)

	return schema
}

func (m *MockNodeType) Validate(config map[string]any) protocol.ValidationResult {
	args := m.Called(config)

	return args.Get(0).(protocol.ValidationResult)
}

func (m *MockNodeType) Execute(ctx context.Context, config map[string]any, execCtx protocol.ExecutionContext) protocol.Result {
	args := m.Called(ctx, config, execCtx)

	return args.Get(0).(protocol.Result)
}

var (
	_ protocol.TaskType = (*MockTaskType)(nil)
	_ protocol.NodeType = (*MockNodeType)(nil)
)
