package web

import (
	"errors"
	"log/slog"

	"github.com/dukex/taskflow/pkg/registry"
	"github.com/dukex/taskflow/pkg/task"
	"github.com/dukex/taskflow/pkg/validation"
	"github.com/dukex/taskflow/pkg/workflow"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/moogar0880/problems"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// API exposes both engines over HTTP.
type API struct {
	logger    *slog.Logger
	tasks     *task.Engine
	workflows *workflow.Engine
	registry  *registry.Registry
	gatherer  prometheus.Gatherer
}

func NewAPI(
	logger *slog.Logger,
	tasks *task.Engine,
	workflows *workflow.Engine,
	registry *registry.Registry,
	gatherer prometheus.Gatherer,
) *API {
	return &API{
		logger:    logger,
		tasks:     tasks,
		workflows: workflows,
		registry:  registry,
		gatherer:  gatherer,
	}
}

func (a *API) App() *fiber.App {
	handlers := NewAPIHandlers(a.tasks, a.workflows, a.registry, validation.Validator())

	app := fiber.New(fiber.Config{ErrorHandler: a.handleError})
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())
	app.Get("/health", handlers.HealthCheck)

	if a.gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{})))
	}

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Taskflow API")
	})

	app.Get("/types", handlers.GetTypes)

	t := app.Group("/tasks")
	t.Get("/", handlers.GetTasks)
	t.Post("/", handlers.CreateTask)
	t.Get("/:id", handlers.GetTask)
	t.Patch("/:id", handlers.UpdateTask)
	t.Delete("/:id", handlers.DeleteTask)
	t.Post("/:id/execute", handlers.ExecuteTask)
	t.Post("/:id/schedules", handlers.ScheduleTask)

	te := app.Group("/task-executions")
	te.Get("/", handlers.GetTaskExecutions)
	te.Get("/:id", handlers.GetTaskExecution)
	te.Post("/:id/cancel", handlers.CancelTaskExecution)
	te.Post("/:id/retry", handlers.RetryTaskExecution)

	s := app.Group("/schedules")
	s.Get("/", handlers.GetSchedules)
	s.Delete("/:id", handlers.DeleteSchedule)

	wk := app.Group("/workers")
	wk.Get("/", handlers.GetWorkers)
	wk.Post("/", handlers.RegisterWorker)
	wk.Get("/:id", handlers.GetWorker)
	wk.Post("/:id/heartbeat", handlers.Heartbeat)
	wk.Delete("/:id", handlers.UnregisterWorker)

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Patch("/:id", handlers.UpdateWorkflow)
	w.Delete("/:id", handlers.DeleteWorkflow)
	w.Post("/:id/execute", handlers.ExecuteWorkflow)

	we := app.Group("/workflow-executions")
	we.Get("/", handlers.GetWorkflowExecutions)
	we.Get("/:id", handlers.GetWorkflowExecution)
	we.Post("/:id/pause", handlers.PauseWorkflowExecution)
	we.Post("/:id/resume", handlers.ResumeWorkflowExecution)
	we.Post("/:id/cancel", handlers.CancelWorkflowExecution)

	return app
}

// handleError renders errors that escape the handlers, such as unknown routes, as
// problem documents.
func (a *API) handleError(c fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		problem := problems.NewStatusProblem(fiberErr.Code).
			WithInstance(c.Path()).
			WithDetail(fiberErr.Message)

		return c.Status(fiberErr.Code).JSON(problem, problems.ProblemMediaType)
	}

	a.logger.ErrorContext(c.Context(), "Unhandled request error", "path", c.Path(), "error", err)

	return internalError(c, err)
}
