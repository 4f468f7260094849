// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/dukex/taskflow/pkg/registry"
)

// NewRegistry registers the built-in task and node types, then any plugins found under
// pluginsPath. An empty or missing pluginsPath loads no plugins.
func NewRegistry(logger *slog.Logger, pluginsPath string, deps registry.Dependencies) (*registry.Registry, error) {
	reg := registry.New(logger)

	if err := reg.RegisterDefaults(deps); err != nil {
		return nil, fmt.Errorf("failed to register built-in types: %w", err)
	}

	if pluginsPath == "" {
		return reg, nil
	}

	if _, err := os.Stat(pluginsPath); errors.Is(err, fs.ErrNotExist) {
		logger.Warn("Plugins path does not exist", "path", pluginsPath)

		return reg, nil
	}

	if _, err := reg.LoadTaskTypePlugins(pluginsPath); err != nil {
		return nil, err
	}

	if _, err := reg.LoadNodeTypePlugins(pluginsPath); err != nil {
		return nil, err
	}

	return reg, nil
}
