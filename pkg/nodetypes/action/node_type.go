// Package action provides the action node type, which runs a registered task type as a
// workflow step.
package action

import (
	"context"
	"fmt"

	"github.com/dukex/taskflow/pkg/protocol"
	"github.com/dukex/taskflow/pkg/validation"
)

const Name = "action"

type NodeType struct {
	taskTypes protocol.TaskTypeLookup
}

func New(taskTypes protocol.TaskTypeLookup) *NodeType {
	return &NodeType{taskTypes: taskTypes}
}

func (n *NodeType) Name() string {
	return Name
}

func (n *NodeType) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"actionType": map[string]any{
				"type":        "string",
				"description": "Name of the task type to run, e.g. http_request",
				"minLength":   1,
			},
		},
		"required": []string{"actionType"},
	}
}

func (n *NodeType) Validate(config map[string]any) protocol.ValidationResult {
	errs := validation.Schema(n.Schema(), config)
	if len(errs) > 0 {
		return protocol.NewValidationResult(errs, nil)
	}

	taskType, err := n.resolve(config)
	if err != nil {
		return protocol.NewValidationResult([]string{err.Error()}, nil)
	}

	return taskType.Validate(taskConfig(config))
}

func (n *NodeType) Execute(ctx context.Context, config map[string]any, execCtx protocol.ExecutionContext) protocol.Result {
	taskType, err := n.resolve(config)
	if err != nil {
		return protocol.Failed(err.Error())
	}

	return taskType.Execute(ctx, taskConfig(config), execCtx)
}

func (n *NodeType) resolve(config map[string]any) (protocol.TaskType, error) {
	actionType := protocol.ConfigString(config, "actionType")

	taskType, ok := n.taskTypes.TaskType(actionType)
	if !ok {
		return nil, fmt.Errorf("action type '%s' is not registered", actionType)
	}

	return taskType, nil
}

func taskConfig(config map[string]any) map[string]any {
	out := make(map[string]any, len(config))

	for key, value := range config {
		if key != "actionType" {
			out[key] = value
		}
	}

	return out
}
