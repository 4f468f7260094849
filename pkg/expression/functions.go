package expression

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Function is a named Go callback that custom_function tasks can invoke by key.
type Function func(ctx context.Context, input map[string]any, config map[string]any) (map[string]any, error)

// Functions is a concurrency safe registry of named callbacks.
type Functions struct {
	mu    sync.RWMutex
	funcs map[string]Function
}

func NewFunctions() *Functions {
	return &Functions{funcs: make(map[string]Function)}
}

// DefaultFunctions returns a registry with the built-in callbacks.
func DefaultFunctions() *Functions {
	f := NewFunctions()

	f.Register("echo", func(_ context.Context, input map[string]any, _ map[string]any) (map[string]any, error) {
		return maps.Clone(input), nil
	})

	f.Register("noop", func(context.Context, map[string]any, map[string]any) (map[string]any, error) {
		return map[string]any{}, nil
	})

	return f
}

// Register adds or replaces a callback.
func (f *Functions) Register(name string, fn Function) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.funcs[name] = fn
}

func (f *Functions) Lookup(name string) (Function, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	fn, ok := f.funcs[name]

	return fn, ok
}

// Names returns the registered names sorted.
func (f *Functions) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return slices.Sorted(maps.Keys(f.funcs))
}

// Call invokes the named callback.
func (f *Functions) Call(ctx context.Context, name string, input, config map[string]any) (map[string]any, error) {
	fn, ok := f.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("function '%s' not registered", name)
	}

	return fn(ctx, input, config)
}
