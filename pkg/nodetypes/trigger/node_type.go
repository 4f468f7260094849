// Package trigger provides the trigger node type, the entry point of every workflow.
package trigger

import (
	"context"
	"time"

	"github.com/dukex/taskflow/pkg/models"
	"github.com/dukex/taskflow/pkg/protocol"
	"github.com/dukex/taskflow/pkg/validation"
)

const (
	Name = models.NodeTypeTrigger

	defaultTriggerType = "manual"
)

type NodeType struct{}

func New() *NodeType {
	return &NodeType{}
}

func (n *NodeType) Name() string {
	return Name
}

func (n *NodeType) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"triggerType": map[string]any{
				"type":    "string",
				"enum":    []string{"manual", "schedule", "webhook", "event"},
				"default": defaultTriggerType,
			},
		},
	}
}

func (n *NodeType) Validate(config map[string]any) protocol.ValidationResult {
	return protocol.NewValidationResult(validation.Schema(n.Schema(), config), nil)
}

func (n *NodeType) Execute(_ context.Context, config map[string]any, execCtx protocol.ExecutionContext) protocol.Result {
	triggerType := protocol.ConfigString(config, "triggerType")
	if triggerType == "" {
		triggerType = defaultTriggerType
	}

	triggeredAt := execCtx.StartedAt
	if triggeredAt.IsZero() {
		triggeredAt = time.Now().UTC()
	}

	return protocol.Succeeded(map[string]any{
		"triggeredAt": triggeredAt.Format(time.RFC3339Nano),
		"triggerType": triggerType,
	})
}
