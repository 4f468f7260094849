package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dukex/taskflow/pkg/cmd"
	"github.com/dukex/taskflow/pkg/config"
	"github.com/dukex/taskflow/pkg/datasource"
	"github.com/dukex/taskflow/pkg/eventbus"
	"github.com/dukex/taskflow/pkg/expression"
	"github.com/dukex/taskflow/pkg/log"
	"github.com/dukex/taskflow/pkg/metrics"
	"github.com/dukex/taskflow/pkg/mirror"
	"github.com/dukex/taskflow/pkg/monitoring"
	"github.com/dukex/taskflow/pkg/otelhelper"
	"github.com/dukex/taskflow/pkg/registry"
	"github.com/dukex/taskflow/pkg/task"
	"github.com/dukex/taskflow/pkg/web"
	"github.com/dukex/taskflow/pkg/workflow"
	"github.com/go-resty/resty/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/afero"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultPort     = 9091
	shutdownTimeout = 10 * time.Second
)

func RunCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Start the engines and the HTTP API",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the engine YAML configuration",
				Sources: cli.EnvVars("TASKFLOW_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "mirror-url",
				Usage:   "Document store for the state mirror (file://path, redis://host:port); in memory when empty",
				Sources: cli.EnvVars("MIRROR_URL"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database used by database_query tasks (postgres://, sqlite://)",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "files-root",
				Usage:   "Directory file_operation tasks are confined to",
				Sources: cli.EnvVars("FILES_ROOT"),
			},
			&cli.StringFlag{
				Name:    "plugins-path",
				Usage:   "Path to the directory containing task and node type plugins",
				Value:   "./plugins",
				Sources: cli.EnvVars("PLUGINS_PATH"),
			},
			&cli.BoolFlag{
				Name:    "otel",
				Usage:   "Export traces over OTLP/HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.StringSliceFlag{
				Name:    "monitor",
				Usage:   "Service to monitor as name=url (repeatable)",
				Sources: cli.EnvVars("MONITOR_SERVICES"),
			},
			&cli.StringFlag{
				Name:    "alert-webhook",
				Usage:   "Chat webhook receiving monitoring alerts",
				Sources: cli.EnvVars("ALERT_WEBHOOK_URL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.SetupWithFormat(command.String("log-level"), command.String("log-format"), os.Stderr)

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return run(ctx, command, log.WithModule("taskflow"))
		},
	}
}

//nolint:funlen,cyclop // wiring
func run(ctx context.Context, command *cli.Command, logger *slog.Logger) error {
	logger.InfoContext(ctx, "Initializing taskflow", "version", version)

	cfg, err := config.LoadOrDefault(command.String("config"))
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	tracer := otelhelper.NoopTracer()

	if command.Bool("otel") {
		var shutdown func(context.Context) error

		tracer, shutdown, err = otelhelper.NewTracer(ctx, "taskflow")
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}

		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Error("Failed to shutdown tracer provider", "error", err)
			}
		}()
	}

	evaluator, err := expression.NewCELEvaluator(expression.WithCostLimit(cfg.Expression.CostLimit))
	if err != nil {
		return fmt.Errorf("failed to create expression evaluator: %w", err)
	}
	defer evaluator.Close()

	httpClient := resty.New()
	deps := registry.Dependencies{
		HTTPClient: httpClient,
		Functions:  expression.DefaultFunctions(),
		Evaluator:  evaluator,
	}

	if databaseURL := command.String("database-url"); databaseURL != "" {
		db, err := datasource.Open(ctx, log.WithModule("datasource"), databaseURL)
		if err != nil {
			return err
		}

		defer func() {
			if err := db.Close(); err != nil {
				logger.Error("Failed to close data source", "error", err)
			}
		}()

		deps.Querier = db
	}

	if filesRoot := command.String("files-root"); filesRoot != "" {
		deps.Fs = afero.NewBasePathFs(afero.NewOsFs(), filesRoot)
	}

	reg, err := cmd.NewRegistry(log.WithModule("registry"), command.String("plugins-path"), deps)
	if err != nil {
		return err
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	engineMetrics := metrics.New(promRegistry)

	tasks, workflows, err := newEngines(reg, cfg, engineMetrics, tracer, evaluator)
	if err != nil {
		return err
	}

	bus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), log.WithModule("eventbus"))
	if err != nil {
		return err
	}

	defer func() {
		if err := bus.Close(); err != nil {
			logger.Error("Failed to close event bus", "error", err)
		}
	}()

	forwarder := eventbus.NewForwarder(bus.Publisher, logger)
	defer forwarder.Attach(tasks.Emitter())()
	defer forwarder.Attach(workflows.Emitter())()

	store, err := cmd.NewMirrorStore(ctx, afero.NewOsFs(), command.String("mirror-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close mirror store", "error", err)
		}
	}()

	stateMirror := mirror.New(store, log.WithModule("mirror"))
	if err := eventbus.Listen(ctx, bus.Subscriber, logger, stateMirror.HandleEnvelope); err != nil {
		return err
	}

	if err := tasks.Start(ctx); err != nil {
		return err
	}

	defer func() {
		if err := tasks.Stop(); err != nil {
			logger.Error("Failed to stop task engine", "error", err)
		}
	}()

	if err := workflows.Start(ctx); err != nil {
		return err
	}

	defer func() {
		if err := workflows.Stop(); err != nil {
			logger.Error("Failed to stop workflow engine", "error", err)
		}
	}()

	if services := command.StringSlice("monitor"); len(services) > 0 {
		monitorConfig, err := monitoringConfig(services, command.String("alert-webhook"))
		if err != nil {
			return err
		}

		monitor := monitoring.New(tasks, workflows, httpClient, log.WithModule("monitoring"), monitorConfig)
		if _, err := monitor.Setup(ctx); err != nil {
			return err
		}

		defer monitor.Close()
	}

	app := web.NewAPI(log.WithModule("api"), tasks, workflows, reg, promRegistry).App()

	errCh := make(chan error, 1)

	go func() {
		errCh <- app.Listen(":" + strconv.Itoa(int(command.Int("port"))))
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("api server stopped: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down")

	return app.ShutdownWithTimeout(shutdownTimeout)
}

func newEngines(
	reg *registry.Registry,
	cfg config.Config,
	engineMetrics *metrics.Metrics,
	tracer trace.Tracer,
	evaluator *expression.CELEvaluator,
) (*task.Engine, *workflow.Engine, error) {
	tasks := task.New(reg,
		task.WithLogger(log.WithModule("task_engine")),
		task.WithConfig(cfg),
		task.WithMetrics(engineMetrics),
		task.WithTracer(tracer),
	)

	workflows, err := workflow.New(reg,
		workflow.WithLogger(log.WithModule("workflow_engine")),
		workflow.WithConfig(cfg),
		workflow.WithMetrics(engineMetrics),
		workflow.WithTracer(tracer),
		workflow.WithEvaluator(evaluator),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create workflow engine: %w", err)
	}

	return tasks, workflows, nil
}
