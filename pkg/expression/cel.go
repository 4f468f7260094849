// Package expression evaluates user supplied expressions in a sandbox.
//
// Expressions are CEL programs (https://github.com/google/cel-go): they can read the
// documents they are given but cannot perform I/O, loop unboundedly or call back into Go
// code other than the CEL standard library. Compiled programs are cached by source text.
package expression

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types/ref"
	"google.golang.org/protobuf/types/known/structpb"
)

const defaultCostLimit uint64 = 1000

// DefaultVariables are the top-level names an expression can reference.
var DefaultVariables = []string{"input", "variables", "config", "execution", "output"}

var ErrNotBoolean = errors.New("expression did not evaluate to a boolean")

type CELEvaluator struct {
	env          *cel.Env
	costLimit    uint64
	variables    []string
	programCache *ristretto.Cache[string, cel.Program]
}

type Option func(*CELEvaluator)

// WithCostLimit bounds the runtime cost of a single evaluation.
func WithCostLimit(limit uint64) Option {
	return func(e *CELEvaluator) {
		e.costLimit = limit
	}
}

// WithVariables replaces the declared top-level variable names.
func WithVariables(names ...string) Option {
	return func(e *CELEvaluator) {
		e.variables = names
	}
}

func NewCELEvaluator(opts ...Option) (*CELEvaluator, error) {
	evaluator := &CELEvaluator{
		costLimit: defaultCostLimit,
		variables: DefaultVariables,
	}

	for _, opt := range opts {
		opt(evaluator)
	}

	envOpts := make([]cel.EnvOption, 0, len(evaluator.variables))
	for _, name := range evaluator.variables {
		envOpts = append(envOpts, cel.Variable(name, cel.DynType))
	}

	env, err := cel.NewEnv(envOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	cache, err := ristretto.NewCache(&ristretto.Config[string, cel.Program]{
		NumCounters:        10_000,
		MaxCost:            1_000,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create program cache: %w", err)
	}

	evaluator.env = env
	evaluator.programCache = cache

	return evaluator, nil
}

// Compile checks an expression without evaluating it.
func (e *CELEvaluator) Compile(expression string) error {
	_, err := e.program(expression)

	return err
}

// Evaluate runs expression against data and returns a plain Go value (maps, slices,
// strings, float64 numbers, bools or nil).
func (e *CELEvaluator) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	out, err := e.eval(ctx, expression, data)
	if err != nil {
		return nil, err
	}

	native, err := out.ConvertToNative(reflect.TypeOf(&structpb.Value{}))
	if err != nil {
		return out.Value(), nil
	}

	value, ok := native.(*structpb.Value)
	if !ok {
		return out.Value(), nil
	}

	return value.AsInterface(), nil
}

// EvaluateBool runs a predicate expression.
func (e *CELEvaluator) EvaluateBool(ctx context.Context, expression string, data map[string]any) (bool, error) {
	out, err := e.eval(ctx, expression, data)
	if err != nil {
		return false, err
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("%w: %q returned %v", ErrNotBoolean, expression, out.Value())
	}

	return result, nil
}

// Close releases the program cache.
func (e *CELEvaluator) Close() {
	e.programCache.Close()
}

func (e *CELEvaluator) eval(ctx context.Context, expression string, data map[string]any) (ref.Val, error) {
	prg, err := e.program(expression)
	if err != nil {
		return nil, err
	}

	activation := make(map[string]any, len(e.variables))
	for _, name := range e.variables {
		if value, ok := data[name]; ok && value != nil {
			activation[name] = value
		} else {
			activation[name] = map[string]any{}
		}
	}

	out, _, err := prg.ContextEval(ctx, activation)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate %q: %w", expression, err)
	}

	return out, nil
}

func (e *CELEvaluator) program(expression string) (cel.Program, error) {
	if prg, ok := e.programCache.Get(expression); ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", expression, issues.Err())
	}

	prg, err := e.env.Program(ast,
		cel.CostLimit(e.costLimit),
		cel.InterruptCheckFrequency(100),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build program for %q: %w", expression, err)
	}

	e.programCache.Set(expression, prg, 1)

	return prg, nil
}
