package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukex/taskflow/pkg/log"
	"github.com/dukex/taskflow/pkg/metrics"
	"github.com/dukex/taskflow/pkg/models"
	"github.com/dukex/taskflow/pkg/registry"
	"github.com/dukex/taskflow/pkg/task"
	"github.com/dukex/taskflow/pkg/testutil"
	"github.com/dukex/taskflow/pkg/web"
	"github.com/dukex/taskflow/pkg/workflow"
	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAPI struct {
	app       *fiber.App
	tasks     *task.Engine
	workflows *workflow.Engine
}

func setupTestApp(t *testing.T) *testAPI {
	t.Helper()

	logger := log.Discard()

	reg := registry.New(logger)
	require.NoError(t, reg.RegisterDefaults(registry.Dependencies{}))

	promRegistry := prometheus.NewRegistry()
	m := metrics.New(promRegistry)

	tasks := task.New(reg, task.WithLogger(logger), task.WithMetrics(m))

	workflows, err := workflow.New(reg, workflow.WithLogger(logger), workflow.WithMetrics(m))
	require.NoError(t, err)

	api := web.NewAPI(logger, tasks, workflows, reg, promRegistry)

	return &testAPI{app: api.App(), tasks: tasks, workflows: workflows}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.app.Test(req)
	require.NoError(t, err)

	defer func() {
		if err := resp.Body.Close(); err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))

	return v
}

func TestAPI_RootEndpoint(t *testing.T) {
	api := setupTestApp(t)

	resp, body := api.do(t, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Taskflow API", string(body))
}

func TestAPI_Health(t *testing.T) {
	api := setupTestApp(t)

	resp, body := api.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	health := decode[map[string]any](t, body)
	assert.Equal(t, "healthy", health["status"])

	resp, _ = api.do(t, http.MethodGet, "/livez", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_TaskLifecycle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	api := setupTestApp(t)

	resp, body := api.do(t, http.MethodPost, "/tasks", map[string]any{
		"name":   "ping",
		"type":   "http_request",
		"config": map[string]any{"url": server.URL},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	created := decode[models.Task](t, body)

	resp, body = api.do(t, http.MethodGet, "/tasks/"+created.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ping", decode[models.Task](t, body).Name)

	resp, body = api.do(t, http.MethodPost, "/tasks/"+created.ID+"/execute", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))
	exec := decode[models.TaskExecution](t, body)
	assert.Equal(t, models.ExecutionStatusPending, exec.Status)

	require.True(t, api.tasks.ProcessNext(context.Background()))

	resp, body = api.do(t, http.MethodGet, "/task-executions/"+exec.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.ExecutionStatusCompleted, decode[models.TaskExecution](t, body).Status)

	resp, body = api.do(t, http.MethodGet, "/task-executions?task_id="+created.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[web.ListResponse[models.TaskExecution]](t, body).Items, 1)

	resp, _ = api.do(t, http.MethodPost, "/task-executions/"+exec.ID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = api.do(t, http.MethodDelete, "/tasks/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestAPI_ValidationProblem(t *testing.T) {
	api := setupTestApp(t)

	resp, body := api.do(t, http.MethodPost, "/tasks", map[string]any{"type": "unknown"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/problem+json")

	problem := decode[map[string]any](t, body)
	assert.Equal(t, "validation_error", problem["type"])
	assert.Contains(t, problem["detail"], "name is required")

	resp, _ = api.do(t, http.MethodPost, "/workflows", map[string]any{"name": "empty"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_ScheduleRequestValidation(t *testing.T) {
	api := setupTestApp(t)

	created, err := api.tasks.CreateTask(context.Background(), &models.Task{
		Name:   "fn",
		Type:   "custom_function",
		Config: map[string]any{"function": "echo"},
	})
	require.NoError(t, err)

	resp, _ := api.do(t, http.MethodPost, "/tasks/"+created.ID+"/schedules", map[string]any{"maxRuns": 0})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := api.do(t, http.MethodPost, "/tasks/"+created.ID+"/schedules", map[string]any{
		"cronExpression": "*/5 * * * *",
		"timezone":       "UTC",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	schedule := decode[models.TaskSchedule](t, body)

	resp, _ = api.do(t, http.MethodDelete, "/schedules/"+schedule.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = api.do(t, http.MethodDelete, "/schedules/"+schedule.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_NotFound(t *testing.T) {
	api := setupTestApp(t)

	for _, path := range []string{"/tasks/missing", "/workflows/missing", "/task-executions/missing", "/workers/missing"} {
		resp, body := api.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
		assert.Equal(t, "not_found", decode[map[string]any](t, body)["type"], path)
	}

	resp, _ := api.do(t, http.MethodPost, "/workflow-executions/missing/cancel", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_WorkflowLifecycle(t *testing.T) {
	api := setupTestApp(t)

	resp, body := api.do(t, http.MethodPost, "/workflows", testutil.CreateTestWorkflow("greeting",
		testutil.CreateTestNode(models.NodeTypeTrigger, testutil.WithID("start")),
		testutil.CreateTestNode("transform", testutil.WithID("shape"), testutil.WithConfig(map[string]any{
			"mappings": map[string]any{"greeting": "'hi ' + input.name"},
		})),
	))
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	created := decode[models.Workflow](t, body)

	resp, body = api.do(t, http.MethodPost, "/workflows/"+created.ID+"/execute", map[string]any{
		"input": map[string]any{"name": "ana"},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))
	exec := decode[models.WorkflowExecution](t, body)

	resp, _ = api.do(t, http.MethodDelete, "/workflows/"+created.ID, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = api.do(t, http.MethodPost, "/workflow-executions/"+exec.ID+"/resume", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	for api.workflows.ProcessNext(context.Background()) {
	}

	resp, body = api.do(t, http.MethodGet, "/workflow-executions/"+exec.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	done := decode[models.WorkflowExecution](t, body)
	assert.Equal(t, models.WorkflowExecutionCompleted, done.Status, "error: %v", done.Error)
	assert.Equal(t, []string{"start", "shape"}, done.Context.ExecutionPath)
	assert.Equal(t, "hi ana", done.Output["greeting"])

	resp, _ = api.do(t, http.MethodDelete, "/workflows/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestAPI_Workers(t *testing.T) {
	api := setupTestApp(t)

	resp, _ := api.do(t, http.MethodPost, "/workers", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := api.do(t, http.MethodPost, "/workers", map[string]any{"name": "w1", "capabilities": []string{"http_request"}})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	worker := decode[models.Worker](t, body)

	resp, _ = api.do(t, http.MethodPost, "/workers/"+worker.ID+"/heartbeat", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = api.do(t, http.MethodGet, "/workers", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[web.ListResponse[models.Worker]](t, body).Items, 1)

	resp, _ = api.do(t, http.MethodDelete, "/workers/"+worker.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestAPI_Metrics(t *testing.T) {
	api := setupTestApp(t)

	created, err := api.tasks.CreateTask(context.Background(), &models.Task{
		Name:   "fn",
		Type:   "custom_function",
		Config: map[string]any{"function": "echo"},
	})
	require.NoError(t, err)

	_, err = api.tasks.ExecuteTask(context.Background(), created.ID, nil)
	require.NoError(t, err)
	require.True(t, api.tasks.ProcessNext(context.Background()))

	resp, body := api.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "taskflow_executions_total")
}
