// Package registry holds the task types and node types known to the engines.
package registry

import (
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"plugin"
	"slices"
	"sync"

	"github.com/dukex/taskflow/pkg/protocol"
)

const (
	taskTypeSymbol = "TaskType"
	nodeTypeSymbol = "NodeType"
)

type Registry struct {
	logger    *slog.Logger
	mu        sync.RWMutex
	taskTypes map[string]protocol.TaskType
	nodeTypes map[string]protocol.NodeType
}

func New(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger,
		taskTypes: make(map[string]protocol.TaskType),
		nodeTypes: make(map[string]protocol.NodeType),
	}
}

// RegisterTaskType adds a task type, replacing any type with the same name.
func (r *Registry) RegisterTaskType(taskType protocol.TaskType) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.taskTypes[taskType.Name()] = taskType
}

// RegisterNodeType adds a node type, replacing any type with the same name.
func (r *Registry) RegisterNodeType(nodeType protocol.NodeType) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nodeTypes[nodeType.Name()] = nodeType
}

func (r *Registry) TaskType(name string) (protocol.TaskType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	taskType, ok := r.taskTypes[name]

	return taskType, ok
}

func (r *Registry) NodeType(name string) (protocol.NodeType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	nodeType, ok := r.nodeTypes[name]

	return nodeType, ok
}

// TaskTypeNames returns the registered task type names sorted.
func (r *Registry) TaskTypeNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Sorted(maps.Keys(r.taskTypes))
}

// NodeTypeNames returns the registered node type names sorted.
func (r *Registry) NodeTypeNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Sorted(maps.Keys(r.nodeTypes))
}

// LoadTaskTypePlugins opens every .so under pluginsPath/tasktypes and registers the
// protocol.TaskType exported as the TaskType symbol.
func (r *Registry) LoadTaskTypePlugins(pluginsPath string) ([]protocol.TaskType, error) {
	loaded, err := loadPlugins[protocol.TaskType](r.logger, filepath.Join(pluginsPath, "tasktypes"), taskTypeSymbol)
	if err != nil {
		return nil, err
	}

	for _, taskType := range loaded {
		r.RegisterTaskType(taskType)
	}

	return loaded, nil
}

// LoadNodeTypePlugins is LoadTaskTypePlugins for node types under pluginsPath/nodetypes.
func (r *Registry) LoadNodeTypePlugins(pluginsPath string) ([]protocol.NodeType, error) {
	loaded, err := loadPlugins[protocol.NodeType](r.logger, filepath.Join(pluginsPath, "nodetypes"), nodeTypeSymbol)
	if err != nil {
		return nil, err
	}

	for _, nodeType := range loaded {
		r.RegisterNodeType(nodeType)
	}

	return loaded, nil
}

func loadPlugins[T any](logger *slog.Logger, rootPath string, symbolName string) ([]T, error) {
	root := os.DirFS(rootPath)

	var paths []string

	for _, pattern := range []string{"*.so", "*/*.so"} {
		matches, err := fs.Glob(root, pattern)
		if err != nil {
			return nil, fmt.Errorf("failed to list plugins: %w", err)
		}

		paths = append(paths, matches...)
	}

	l := logger.With(slog.String("path", rootPath), slog.String("type", symbolName))
	l.Info("Loading plugins", "count", len(paths))

	loaded := make([]T, 0, len(paths))

	for _, p := range paths {
		plg, err := plugin.Open(filepath.Join(rootPath, p))
		if err != nil {
			return nil, fmt.Errorf("failed to open plugin %s: %w", p, err)
		}

		symbol, err := plg.Lookup(symbolName)
		if err != nil {
			return nil, fmt.Errorf("plugin %s does not export %s: %w", p, symbolName, err)
		}

		value, ok := symbol.(T)
		if !ok {
			ptr, isPtr := symbol.(*T)
			if !isPtr {
				return nil, fmt.Errorf("plugin %s: %s has unexpected type %T", p, symbolName, symbol)
			}

			value = *ptr
		}

		loaded = append(loaded, value)

		l.Info("Loaded plugin", slog.String("plugin", p))
	}

	return loaded, nil
}
