// Package transform provides the transform node type.
package transform

import (
	"context"
	"fmt"

	"github.com/dukex/taskflow/pkg/expression"
	"github.com/dukex/taskflow/pkg/models"
	"github.com/dukex/taskflow/pkg/protocol"
	"github.com/dukex/taskflow/pkg/validation"
)

const Name = "transform"

// NodeType passes the configured data map through unchanged and, when mappings are
// given, adds one output key per mapping computed from a CEL expression.
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
			"data": map[string]any{
				"type":        "object",
				"description": "Values copied into the execution variables",
			},
			"mappings": map[string]any{
				"type":                 "object",
				"description":          "Output name to CEL expression",
				"additionalProperties": map[string]any{"type": "string"},
			},
		},
	}
}

func (n *NodeType) Validate(config map[string]any) protocol.ValidationResult {
	errs := validation.Schema(n.Schema(), config)

	for name, raw := range protocol.ConfigMap(config, "mappings") {
		expr, ok := raw.(string)
		if !ok {
			continue
		}

		if err := n.evaluator.Compile(expr); err != nil {
			errs = append(errs, fmt.Sprintf("mappings.%s: %v", name, err))
		}
	}

	return protocol.NewValidationResult(errs, nil)
}

func (n *NodeType) Execute(ctx context.Context, config map[string]any, execCtx protocol.ExecutionContext) protocol.Result {
	out := models.CloneMap(protocol.ConfigMap(config, "data"))
	if out == nil {
		out = map[string]any{}
	}

	mappings := protocol.ConfigMap(config, "mappings")
	if len(mappings) == 0 {
		return protocol.Succeeded(out)
	}

	data := execCtx.Data()

	for name, raw := range mappings {
		expr, _ := raw.(string)

		value, err := n.evaluator.Evaluate(ctx, expr, data)
		if err != nil {
			return protocol.Failed(fmt.Sprintf("mapping %s: %v", name, err))
		}

		out[name] = value
	}

	return protocol.Succeeded(out)
}
