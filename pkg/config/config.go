// Package config provides engine configuration loading
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultProcessorInterval = 100 * time.Millisecond
	DefaultSchedulerInterval = 60 * time.Second
	DefaultSweepInterval     = 10 * time.Second
	DefaultHeartbeatTimeout  = 30 * time.Second
	DefaultListLimit         = 50
	DefaultCostLimit         = 1000
)

// TaskEngine holds the timers of the task automation engine.
type TaskEngine struct {
	ProcessorInterval time.Duration `yaml:"processor_interval"`
	SchedulerInterval time.Duration `yaml:"scheduler_interval"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`
	HeartbeatTimeout  time.Duration `yaml:"heartbeat_timeout"`
}

// WorkflowEngine holds the timers of the workflow engine.
type WorkflowEngine struct {
	ProcessorInterval time.Duration `yaml:"processor_interval"`
}

type Expression struct {
	CostLimit uint64 `yaml:"cost_limit"`
}

// Config is the structure of the engine YAML file.
type Config struct {
	Task       TaskEngine     `yaml:"task"`
	Workflow   WorkflowEngine `yaml:"workflow"`
	Expression Expression     `yaml:"expression"`
	ListLimit  int            `yaml:"list_limit"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Task: TaskEngine{
			ProcessorInterval: DefaultProcessorInterval,
			SchedulerInterval: DefaultSchedulerInterval,
			SweepInterval:     DefaultSweepInterval,
			HeartbeatTimeout:  DefaultHeartbeatTimeout,
		},
		Workflow: WorkflowEngine{
			ProcessorInterval: DefaultProcessorInterval,
		},
		Expression: Expression{
			CostLimit: DefaultCostLimit,
		},
		ListLimit: DefaultListLimit,
	}
}

// Load reads a YAML configuration file. Missing keys keep their defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadOrDefault loads path when set, falling back to defaults when it is empty.
func LoadOrDefault(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}

	return Load(path)
}

// Validate validates the configuration
func (c Config) Validate() error {
	var errs []error

	intervals := []struct {
		key   string
		value time.Duration
	}{
		{"task.processor_interval", c.Task.ProcessorInterval},
		{"task.scheduler_interval", c.Task.SchedulerInterval},
		{"task.sweep_interval", c.Task.SweepInterval},
		{"task.heartbeat_timeout", c.Task.HeartbeatTimeout},
		{"workflow.processor_interval", c.Workflow.ProcessorInterval},
	}

	for _, interval := range intervals {
		if interval.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", interval.key))
		}
	}

	if c.ListLimit <= 0 {
		errs = append(errs, errors.New("list_limit must be positive"))
	}

	if c.Expression.CostLimit == 0 {
		errs = append(errs, errors.New("expression.cost_limit must be positive"))
	}

	return errors.Join(errs...)
}
