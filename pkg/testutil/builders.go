// Package testutil provides test data builders for tasks and workflows.
package testutil

import (
	"github.com/dukex/taskflow/pkg/models"
	"github.com/google/uuid"
)

// CreateTestTask creates an http_request task with default values that can be overridden.
func CreateTestTask(overrides ...func(*models.Task)) *models.Task {
	task := &models.Task{
		Name:     "Test Task",
		Type:     "http_request",
		Config:   map[string]any{"url": "https://example.test/health"},
		Priority: models.PriorityNormal,
		Metadata: models.TaskMetadata{Author: "tests"},
	}

	for _, override := range overrides {
		override(task)
	}

	return task
}

// WithTaskConfig sets the task type and configuration.
func WithTaskConfig(taskType string, config map[string]any) func(*models.Task) {
	return func(t *models.Task) {
		t.Type = taskType
		t.Config = config
	}
}

// WithDependency adds a dependency on taskID.
func WithDependency(taskID string, condition models.DependencyCondition) func(*models.Task) {
	return func(t *models.Task) {
		t.Dependencies = append(t.Dependencies, models.TaskDependency{TaskID: taskID, Condition: condition})
	}
}

// CreateTestNode creates a node with a random id and empty configuration.
func CreateTestNode(nodeType string, overrides ...func(*models.WorkflowNode)) models.WorkflowNode {
	node := models.WorkflowNode{
		ID:     uuid.NewString(),
		Type:   nodeType,
		Name:   "Test Node",
		Config: map[string]any{},
	}

	for _, override := range overrides {
		override(&node)
	}

	return node
}

// WithID sets the node id.
func WithID(id string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.ID = id
	}
}

// WithConfig sets the node configuration.
func WithConfig(config map[string]any) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Config = config
	}
}

// CreateTestWorkflow chains nodes in declaration order, one connection per pair.
func CreateTestWorkflow(name string, nodes ...models.WorkflowNode) *models.Workflow {
	wf := &models.Workflow{
		Name:  name,
		Nodes: nodes,
	}

	for i := 1; i < len(nodes); i++ {
		wf.Connections = append(wf.Connections, Connect(nodes[i-1].ID, nodes[i].ID, ""))
	}

	return wf
}

// Connect builds a connection guarded by condition; an empty condition always matches.
func Connect(source, target, condition string) models.Connection {
	return models.Connection{
		ID:        source + "-" + target,
		Source:    source,
		Target:    target,
		Condition: condition,
	}
}
