// Package condition provides the condition node type.
package condition

import (
	"context"

	"github.com/dukex/taskflow/pkg/expression"
	"github.com/dukex/taskflow/pkg/protocol"
	"github.com/dukex/taskflow/pkg/validation"
)

const Name = "condition"

// NodeType evaluates a boolean CEL expression over the execution variables and
// publishes the outcome as the "result" variable.
type NodeType struct {
	evaluator *expression.CELEvaluator
}

func New(evaluator *expression.CELEvaluator) *NodeType {
	return &NodeType{evaluator: evaluator}
}

func (n *NodeType) Name() string {
	return Name
}

func (n *NodeType) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"expression": map[string]any{
				"type":        "string",
				"description": "CEL expression, e.g. variables.status == 200",
				"minLength":   1,
			},
		},
		"required": []string{"expression"},
	}
}

func (n *NodeType) Validate(config map[string]any) protocol.ValidationResult {
	errs := validation.Schema(n.Schema(), config)

	if expr := protocol.ConfigString(config, "expression"); expr != "" {
		if err := n.evaluator.Compile(expr); err != nil {
			errs = append(errs, err.Error())
		}
	}

	return protocol.NewValidationResult(errs, nil)
}

func (n *NodeType) Execute(ctx context.Context, config map[string]any, execCtx protocol.ExecutionContext) protocol.Result {
	expr := protocol.ConfigString(config, "expression")

	result, err := n.evaluator.EvaluateBool(ctx, expr, execCtx.Data())
	if err != nil {
		return protocol.Failed(err.Error())
	}

	return protocol.Succeeded(map[string]any{
		"result":     result,
		"expression": expr,
	})
}
