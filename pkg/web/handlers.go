package web

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/taskflow/pkg/models"
	"github.com/dukex/taskflow/pkg/registry"
	"github.com/dukex/taskflow/pkg/task"
	"github.com/dukex/taskflow/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	tasks     *task.Engine
	workflows *workflow.Engine
	registry  *registry.Registry
	validator *validator.Validate
}

func NewAPIHandlers(
	tasks *task.Engine,
	workflows *workflow.Engine,
	registry *registry.Registry,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		tasks:     tasks,
		workflows: workflows,
		registry:  registry,
		validator: validator,
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	taskTypes := h.registry.TaskTypeNames()
	nodeTypes := h.registry.NodeTypeNames()

	status := "unhealthy"
	httpStatus := http.StatusInternalServerError

	if len(taskTypes) > 0 && len(nodeTypes) > 0 {
		status = "healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"registry": fiber.Map{
				"taskTypes": taskTypes,
				"nodeTypes": nodeTypes,
			},
			"queues": fiber.Map{
				"task":     h.tasks.QueueDepth(),
				"workflow": h.workflows.QueueDepth(),
			},
		},
		"timestamp": time.Now().UTC(),
	})
}

// Task definitions

func (h *APIHandlers) CreateTask(c fiber.Ctx) error {
	var req models.Task
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	created, err := h.tasks.CreateTask(c.Context(), &req)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetTasks(c fiber.Ctx) error {
	page, err := parsePagination(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	tasks, err := h.tasks.ListTasks(c.Context(), task.TaskFilter{
		Type:     c.Query("type"),
		Category: c.Query("category"),
		Author:   c.Query("author"),
		Tags:     splitList(c.Query("tags")),
		Offset:   page.Offset,
		Limit:    page.Limit,
	})
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(ListResponse[*models.Task]{Items: tasks, Pagination: page})
}

func (h *APIHandlers) GetTask(c fiber.Ctx) error {
	found, err := h.tasks.GetTask(c.Context(), c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(found)
}

func (h *APIHandlers) UpdateTask(c fiber.Ctx) error {
	var patch models.Task
	if err := c.Bind().JSON(&patch); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	updated, err := h.tasks.UpdateTask(c.Context(), c.Params("id"), &patch)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteTask(c fiber.Ctx) error {
	if err := h.tasks.DeleteTask(c.Context(), c.Params("id")); err != nil {
		return handleEngineError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// Task executions

func (h *APIHandlers) ExecuteTask(c fiber.Ctx) error {
	req, err := h.parseExecuteRequest(c)
	if err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	exec, err := h.tasks.ExecuteTask(c.Context(), c.Params("id"), req.Input)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(exec)
}

func (h *APIHandlers) GetTaskExecutions(c fiber.Ctx) error {
	page, err := parsePagination(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	executions, err := h.tasks.ListExecutions(c.Context(), task.ExecutionFilter{
		TaskID: c.Query("task_id"),
		Status: models.ExecutionStatus(c.Query("status")),
		Offset: page.Offset,
		Limit:  page.Limit,
	})
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(ListResponse[*models.TaskExecution]{Items: executions, Pagination: page})
}

func (h *APIHandlers) GetTaskExecution(c fiber.Ctx) error {
	exec, err := h.tasks.GetExecution(c.Context(), c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(exec)
}

func (h *APIHandlers) CancelTaskExecution(c fiber.Ctx) error {
	exec, err := h.tasks.CancelExecution(c.Context(), c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(exec)
}

func (h *APIHandlers) RetryTaskExecution(c fiber.Ctx) error {
	exec, err := h.tasks.RetryExecution(c.Context(), c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(exec)
}

// Schedules

func (h *APIHandlers) ScheduleTask(c fiber.Ctx) error {
	var req ScheduleTaskRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	schedule, err := h.tasks.ScheduleTask(c.Context(), c.Params("id"), req.options())
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(schedule)
}

func (h *APIHandlers) GetSchedules(c fiber.Ctx) error {
	schedules, err := h.tasks.ListSchedules(c.Context(), c.Query("task_id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(ListResponse[*models.TaskSchedule]{Items: schedules})
}

func (h *APIHandlers) DeleteSchedule(c fiber.Ctx) error {
	if err := h.tasks.UnscheduleTask(c.Context(), c.Params("id")); err != nil {
		return handleEngineError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// Workers

func (h *APIHandlers) RegisterWorker(c fiber.Ctx) error {
	var req RegisterWorkerRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	worker, err := h.tasks.RegisterWorker(c.Context(), &models.Worker{
		Name:         req.Name,
		Capabilities: req.Capabilities,
	})
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(worker)
}

func (h *APIHandlers) GetWorkers(c fiber.Ctx) error {
	workers, err := h.tasks.ListWorkers(c.Context())
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(ListResponse[*models.Worker]{Items: workers})
}

func (h *APIHandlers) GetWorker(c fiber.Ctx) error {
	worker, err := h.tasks.GetWorkerStatus(c.Context(), c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(worker)
}

func (h *APIHandlers) Heartbeat(c fiber.Ctx) error {
	worker, err := h.tasks.Heartbeat(c.Context(), c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(worker)
}

func (h *APIHandlers) UnregisterWorker(c fiber.Ctx) error {
	if err := h.tasks.UnregisterWorker(c.Context(), c.Params("id")); err != nil {
		return handleEngineError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// Workflow definitions

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req models.Workflow
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	created, err := h.workflows.CreateWorkflow(c.Context(), &req)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	page, err := parsePagination(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	workflows, err := h.workflows.ListWorkflows(c.Context(), workflow.WorkflowFilter{
		Status:   models.WorkflowStatus(c.Query("status")),
		Category: c.Query("category"),
		Author:   c.Query("author"),
		Tags:     splitList(c.Query("tags")),
		Offset:   page.Offset,
		Limit:    page.Limit,
	})
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(ListResponse[*models.Workflow]{Items: workflows, Pagination: page})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	found, err := h.workflows.GetWorkflow(c.Context(), c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(found)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	var patch models.Workflow
	if err := c.Bind().JSON(&patch); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	updated, err := h.workflows.UpdateWorkflow(c.Context(), c.Params("id"), &patch)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	if err := h.workflows.DeleteWorkflow(c.Context(), c.Params("id")); err != nil {
		return handleEngineError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// Workflow executions

func (h *APIHandlers) ExecuteWorkflow(c fiber.Ctx) error {
	req, err := h.parseExecuteRequest(c)
	if err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	exec, err := h.workflows.ExecuteWorkflow(c.Context(), c.Params("id"), req.Input)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(exec)
}

func (h *APIHandlers) GetWorkflowExecutions(c fiber.Ctx) error {
	page, err := parsePagination(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	executions, err := h.workflows.ListExecutions(c.Context(), workflow.ExecutionFilter{
		WorkflowID: c.Query("workflow_id"),
		Status:     models.WorkflowExecutionStatus(c.Query("status")),
		Offset:     page.Offset,
		Limit:      page.Limit,
	})
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(ListResponse[*models.WorkflowExecution]{Items: executions, Pagination: page})
}

func (h *APIHandlers) GetWorkflowExecution(c fiber.Ctx) error {
	exec, err := h.workflows.GetExecution(c.Context(), c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(exec)
}

func (h *APIHandlers) PauseWorkflowExecution(c fiber.Ctx) error {
	exec, err := h.workflows.PauseExecution(c.Context(), c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(exec)
}

func (h *APIHandlers) ResumeWorkflowExecution(c fiber.Ctx) error {
	exec, err := h.workflows.ResumeExecution(c.Context(), c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(exec)
}

func (h *APIHandlers) CancelWorkflowExecution(c fiber.Ctx) error {
	exec, err := h.workflows.CancelExecution(c.Context(), c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(exec)
}

// Types

func (h *APIHandlers) GetTypes(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"taskTypes": h.registry.TaskTypeNames(),
		"nodeTypes": h.registry.NodeTypeNames(),
	})
}

func (h *APIHandlers) parseExecuteRequest(c fiber.Ctx) (ExecuteRequest, error) {
	var req ExecuteRequest

	if len(c.Body()) == 0 {
		return req, nil
	}

	err := c.Bind().JSON(&req)

	return req, err
}

func parsePagination(c fiber.Ctx) (Pagination, error) {
	var page Pagination

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return page, err
		}

		page.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return page, err
		}

		page.Offset = offset
	}

	return page, nil
}

func splitList(raw string) []string {
	var out []string

	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}

	return out
}
