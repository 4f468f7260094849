package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dukex/taskflow/pkg/cmd"
	"github.com/dukex/taskflow/pkg/config"
	"github.com/dukex/taskflow/pkg/log"
	"github.com/dukex/taskflow/pkg/models"
	"github.com/dukex/taskflow/pkg/monitoring"
	"github.com/dukex/taskflow/pkg/registry"
	"github.com/dukex/taskflow/pkg/task"
	"github.com/dukex/taskflow/pkg/workflow"
	"github.com/goccy/go-json"
	cli "github.com/urfave/cli/v3"
)

var errNothingToValidate = errors.New("nothing to validate: pass --config, --task or --workflow")

func ValidateCommand() *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "Validate an engine configuration, a task definition or a workflow definition",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Engine YAML configuration",
			},
			&cli.StringFlag{
				Name:  "task",
				Usage: "Task definition JSON file",
			},
			&cli.StringFlag{
				Name:  "workflow",
				Usage: "Workflow definition JSON file",
			},
			&cli.StringFlag{
				Name:  "plugins-path",
				Usage: "Path to the directory containing task and node type plugins",
				Value: "./plugins",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup("error")

			return validate(ctx, command.String("config"), command.String("task"), command.String("workflow"), command.String("plugins-path"))
		},
	}
}

func validate(ctx context.Context, configPath, taskPath, workflowPath, pluginsPath string) error {
	if configPath == "" && taskPath == "" && workflowPath == "" {
		return errNothingToValidate
	}

	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("%s: %w", configPath, err)
		}
	}

	if taskPath == "" && workflowPath == "" {
		return nil
	}

	reg, err := cmd.NewRegistry(log.WithModule("registry"), pluginsPath, registry.Dependencies{})
	if err != nil {
		return err
	}

	if taskPath != "" {
		var definition models.Task
		if err := readDefinition(taskPath, &definition); err != nil {
			return err
		}

		if _, err := task.New(reg).CreateTask(ctx, &definition); err != nil {
			return fmt.Errorf("%s: %w", taskPath, err)
		}
	}

	if workflowPath != "" {
		var definition models.Workflow
		if err := readDefinition(workflowPath, &definition); err != nil {
			return err
		}

		engine, err := workflow.New(reg)
		if err != nil {
			return err
		}

		if _, err := engine.CreateWorkflow(ctx, &definition); err != nil {
			return fmt.Errorf("%s: %w", workflowPath, err)
		}
	}

	return nil
}

func readDefinition(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return nil
}

// monitoringConfig turns name=url pairs into monitored services.
func monitoringConfig(services []string, alertWebhook string) (monitoring.Config, error) {
	cfg := monitoring.Config{AlertWebhookURL: alertWebhook}

	for _, raw := range services {
		name, url, found := strings.Cut(raw, "=")
		if !found || strings.TrimSpace(name) == "" || strings.TrimSpace(url) == "" {
			return cfg, fmt.Errorf("invalid monitored service %q, expected name=url", raw)
		}

		cfg.Services = append(cfg.Services, monitoring.Service{
			Name: strings.TrimSpace(name),
			URL:  strings.TrimSpace(url),
		})
	}

	return cfg, nil
}
