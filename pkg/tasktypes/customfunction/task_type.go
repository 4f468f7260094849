// Package customfunction provides the custom_function task type. A task names either a
// Go callback registered in expression.Functions or a CEL expression; no source code
// supplied at runtime is ever executed.
package customfunction

import (
	"context"
	"fmt"

	"github.com/dukex/taskflow/pkg/expression"
	"github.com/dukex/taskflow/pkg/models"
	"github.com/dukex/taskflow/pkg/protocol"
	"github.com/dukex/taskflow/pkg/validation"
)

const Name = "custom_function"

type TaskType struct {
	functions *expression.Functions
	evaluator *expression.CELEvaluator
}

func New(functions *expression.Functions, evaluator *expression.CELEvaluator) *TaskType {
	return &TaskType{functions: functions, evaluator: evaluator}
}

func (t *TaskType) Name() string {
	return Name
}

func (t *TaskType) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"function": map[string]any{
				"type":        "string",
				"description": "Name of a registered function",
			},
			"expression": map[string]any{
				"type":        "string",
				"description": "CEL expression over input, config and variables",
			},
			"args": map[string]any{
				"type":        "object",
				"description": "Arguments handed to the function as its config",
			},
		},
	}
}

func (t *TaskType) Validate(config map[string]any) protocol.ValidationResult {
	errs := validation.Schema(t.Schema(), config)

	function := protocol.ConfigString(config, "function")
	expr := protocol.ConfigString(config, "expression")

	switch {
	case function == "" && expr == "":
		errs = append(errs, "either function or expression is required")
	case function != "" && expr != "":
		errs = append(errs, "function and expression are mutually exclusive")
	case function != "":
		if t.functions == nil {
			errs = append(errs, "no functions are registered")
		} else if _, ok := t.functions.Lookup(function); !ok {
			errs = append(errs, fmt.Sprintf("function '%s' is not registered", function))
		}
	default:
		if t.evaluator == nil {
			errs = append(errs, "expressions are not enabled")
		} else if err := t.evaluator.Compile(expr); err != nil {
			errs = append(errs, err.Error())
		}
	}

	return protocol.NewValidationResult(errs, nil)
}

func (t *TaskType) EstimateResources(map[string]any) []models.ResourceRequirement {
	return []models.ResourceRequirement{
		{Type: models.ResourceTypeCPU, Amount: 0.1, Unit: "cores"},
	}
}

func (t *TaskType) Execute(ctx context.Context, config map[string]any, execCtx protocol.ExecutionContext) protocol.Result {
	if function := protocol.ConfigString(config, "function"); function != "" {
		if t.functions == nil {
			return protocol.Failed("no functions are registered")
		}

		input := execCtx.Input
		if input == nil {
			input = execCtx.Variables
		}

		out, err := t.functions.Call(ctx, function, input, protocol.ConfigMap(config, "args"))
		if err != nil {
			return protocol.Failed(err.Error())
		}

		if out == nil {
			out = map[string]any{}
		}

		return protocol.Succeeded(out)
	}

	expr := protocol.ConfigString(config, "expression")
	if expr == "" {
		return protocol.Failed("either function or expression is required")
	}

	if t.evaluator == nil {
		return protocol.Failed("expressions are not enabled")
	}

	data := execCtx.Data()
	if args := protocol.ConfigMap(config, "args"); args != nil {
		data["config"] = args
	}

	value, err := t.evaluator.Evaluate(ctx, expr, data)
	if err != nil {
		return protocol.Failed(err.Error())
	}

	if out, ok := value.(map[string]any); ok {
		return protocol.Succeeded(out)
	}

	return protocol.Succeeded(map[string]any{"result": value})
}
