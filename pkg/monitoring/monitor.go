// Package monitoring is a service-monitoring consumer of the engines. It provisions a
// health-check workflow and a scheduled http_request task per service through the
// public engine surface, runs its own health checks and posts chat alerts when a
// monitoring task fails.
package monitoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dukex/taskflow/pkg/events"
	"github.com/dukex/taskflow/pkg/models"
	"github.com/dukex/taskflow/pkg/task"
	"github.com/dukex/taskflow/pkg/workflow"
	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultCron    = "*/5 * * * *"
	DefaultTimeout = 10 * time.Second
	category       = "monitoring"
	author         = "monitoring"
	checkNodeID    = "check"

	// A non-2xx response fails the check node, so the expected status is also matched
	// against the error it records.
	unhealthyExpr = `!((has(variables.status) && variables.status == %[1]d) || ` +
		`(has(variables.errors) && variables.errors.exists(e, e.nodeId == "%[2]s" && e.message.contains("HTTP %[1]d:"))))`
)

var ErrNoServices = errors.New("no services to monitor")

// Service is an HTTP endpoint to watch.
type Service struct {
	Name           string `json:"name"           yaml:"name"`
	URL            string `json:"url"            yaml:"url"`
	ExpectedStatus int    `json:"expectedStatus" yaml:"expected_status"`
}

func (s Service) expectedStatus() int {
	if s.ExpectedStatus == 0 {
		return http.StatusOK
	}

	return s.ExpectedStatus
}

// expectedFailure reports whether an http_request failure carries the status the
// service is expected to answer with.
func (s Service) expectedFailure(message string) bool {
	return strings.HasPrefix(message, fmt.Sprintf("HTTP %d:", s.expectedStatus()))
}

type Config struct {
	Services []Service
	// AlertWebhookURL receives chat alerts; alerts are disabled when empty.
	AlertWebhookURL string
	Cron            string
	Timezone        string
	Timeout         time.Duration
}

// HealthStatus is the result of one direct health check.
type HealthStatus struct {
	Service      string        `json:"service"`
	URL          string        `json:"url"`
	Healthy      bool          `json:"healthy"`
	StatusCode   int           `json:"statusCode,omitempty"`
	ResponseTime time.Duration `json:"responseTime"`
	CheckedAt    time.Time     `json:"checkedAt"`
	Error        string        `json:"error,omitempty"`
}

// Deployment lists what Setup created for each service, keyed by service name.
type Deployment struct {
	Workflows map[string]string
	Tasks     map[string]string
	Schedules map[string]string
}

type Monitor struct {
	tasks     *task.Engine
	workflows *workflow.Engine
	client    *resty.Client
	logger    *slog.Logger
	cfg       Config

	mu       sync.Mutex
	services map[string]Service // by task id
	detach   func()
	alerts   sync.WaitGroup
}

func New(tasks *task.Engine, workflows *workflow.Engine, client *resty.Client, logger *slog.Logger, cfg Config) *Monitor {
	if client == nil {
		client = resty.New()
	}

	if cfg.Cron == "" {
		cfg.Cron = DefaultCron
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Monitor{
		tasks:     tasks,
		workflows: workflows,
		client:    client,
		logger:    logger.With("module", "monitoring"),
		cfg:       cfg,
		services:  make(map[string]Service),
	}
}

// Setup provisions one workflow and one scheduled task per service and starts
// listening for failed monitoring tasks.
func (m *Monitor) Setup(ctx context.Context) (*Deployment, error) {
	if len(m.cfg.Services) == 0 {
		return nil, ErrNoServices
	}

	deployment := &Deployment{
		Workflows: make(map[string]string, len(m.cfg.Services)),
		Tasks:     make(map[string]string, len(m.cfg.Services)),
		Schedules: make(map[string]string, len(m.cfg.Services)),
	}

	for _, svc := range m.cfg.Services {
		wf, err := m.workflows.CreateWorkflow(ctx, m.workflowFor(svc))
		if err != nil {
			return nil, fmt.Errorf("failed to create monitoring workflow for %s: %w", svc.Name, err)
		}

		deployment.Workflows[svc.Name] = wf.ID

		created, err := m.tasks.CreateTask(ctx, m.taskFor(svc))
		if err != nil {
			return nil, fmt.Errorf("failed to create monitoring task for %s: %w", svc.Name, err)
		}

		deployment.Tasks[svc.Name] = created.ID

		m.mu.Lock()
		m.services[created.ID] = svc
		m.mu.Unlock()

		schedule, err := m.tasks.ScheduleTask(ctx, created.ID, task.ScheduleOptions{
			CronExpression: m.cfg.Cron,
			Timezone:       m.cfg.Timezone,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to schedule monitoring task for %s: %w", svc.Name, err)
		}

		deployment.Schedules[svc.Name] = schedule.ID

		m.logger.InfoContext(ctx, "Service monitoring provisioned",
			"service", svc.Name, "workflow_id", wf.ID, "task_id", created.ID, "schedule_id", schedule.ID)
	}

	m.mu.Lock()
	if m.detach == nil {
		m.detach = m.tasks.Emitter().On(events.TaskExecutionFailed, m.onTaskFailed)
	}
	m.mu.Unlock()

	return deployment, nil
}

// workflowFor builds trigger -> http check -> evaluation -> alert webhook. The alert
// branch is only followed when the evaluation reports the service unhealthy.
func (m *Monitor) workflowFor(svc Service) *models.Workflow {
	nodes := []models.WorkflowNode{
		{ID: "trigger", Type: "trigger", Name: "Schedule", Config: map[string]any{"triggerType": "schedule"}},
		{ID: checkNodeID, Type: "action", Name: "Health check", Config: map[string]any{
			"actionType": "http_request",
			"url":        svc.URL,
			"method":     http.MethodGet,
			"timeout":    m.cfg.Timeout.Seconds(),
		}},
		{ID: "evaluate", Type: "condition", Name: "Evaluate", Config: map[string]any{
			"expression": fmt.Sprintf(unhealthyExpr, svc.expectedStatus(), checkNodeID),
		}},
	}

	connections := []models.Connection{
		{ID: "trigger-check", Source: "trigger", Target: checkNodeID},
		{ID: "check-evaluate", Source: checkNodeID, Target: "evaluate"},
	}

	if m.cfg.AlertWebhookURL != "" {
		nodes = append(nodes, models.WorkflowNode{
			ID: "alert", Type: "webhook", Name: "Alert", Config: map[string]any{"url": m.cfg.AlertWebhookURL},
		})
		connections = append(connections, models.Connection{
			ID: "evaluate-alert", Source: "evaluate", Target: "alert", Condition: "variables.result == true", Label: "unhealthy",
		})
	}

	return &models.Workflow{
		Name:        "Monitor " + svc.Name,
		Description: "Health check of " + svc.URL,
		Nodes:       nodes,
		Connections: connections,
		Variables: []models.Variable{
			{Name: "service", Type: "string", Value: svc.Name},
		},
		Settings: models.WorkflowSettings{
			Timeout:       models.Duration(2 * m.cfg.Timeout),
			ErrorHandling: models.ErrorHandlingContinue,
			Concurrency:   1,
		},
		Metadata: models.WorkflowMetadata{
			Tags:     []string{category, svc.Name},
			Category: category,
			Author:   author,
		},
		Status: models.WorkflowStatusActive,
	}
}

func (m *Monitor) taskFor(svc Service) *models.Task {
	return &models.Task{
		Name:        "Health check " + svc.Name,
		Description: "Scheduled health check of " + svc.URL,
		Type:        "http_request",
		Config: map[string]any{
			"url":     svc.URL,
			"method":  http.MethodGet,
			"timeout": m.cfg.Timeout.Seconds(),
		},
		RetryPolicy: models.RetryPolicy{MaxRetries: 2, BackoffStrategy: models.BackoffExponential},
		Timeout:     models.Duration(m.cfg.Timeout),
		Priority:    models.PriorityHigh,
		Tags:        []string{category, svc.Name},
		Metadata:    models.TaskMetadata{Author: author, Category: category},
	}
}

// RunWorkflows starts one execution of every monitoring workflow.
func (m *Monitor) RunWorkflows(ctx context.Context, deployment *Deployment) ([]*models.WorkflowExecution, error) {
	executions := make([]*models.WorkflowExecution, 0, len(deployment.Workflows))

	for _, svc := range m.cfg.Services {
		id, ok := deployment.Workflows[svc.Name]
		if !ok {
			continue
		}

		exec, err := m.workflows.ExecuteWorkflow(ctx, id, map[string]any{"url": svc.URL})
		if err != nil {
			return executions, fmt.Errorf("failed to run monitoring workflow for %s: %w", svc.Name, err)
		}

		executions = append(executions, exec)
	}

	return executions, nil
}

// CheckAll probes every service concurrently. Results follow the configured order.
func (m *Monitor) CheckAll(ctx context.Context) []HealthStatus {
	results := make([]HealthStatus, len(m.cfg.Services))

	g, gCtx := errgroup.WithContext(ctx)

	for i, svc := range m.cfg.Services {
		g.Go(func() error {
			results[i] = m.Check(gCtx, svc)

			return nil
		})
	}

	_ = g.Wait()

	return results
}

// Check probes one service directly, outside the engines.
func (m *Monitor) Check(ctx context.Context, svc Service) HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	started := time.Now()
	status := HealthStatus{Service: svc.Name, URL: svc.URL, CheckedAt: started.UTC()}

	resp, err := m.client.R().SetContext(ctx).Get(svc.URL)
	status.ResponseTime = time.Since(started)

	if err != nil {
		status.Error = err.Error()
		m.logger.WarnContext(ctx, "Health check failed", "service", svc.Name, "error", err)

		return status
	}

	status.StatusCode = resp.StatusCode()
	status.Healthy = resp.StatusCode() == svc.expectedStatus()

	if !status.Healthy {
		status.Error = fmt.Sprintf("expected HTTP %d, got %d", svc.expectedStatus(), resp.StatusCode())
	}

	m.logger.DebugContext(ctx, "Health check finished",
		"service", svc.Name, "healthy", status.Healthy, "status_code", status.StatusCode, "response_time", status.ResponseTime)

	return status
}

// Alert posts a chat message to the alert webhook.
func (m *Monitor) Alert(ctx context.Context, text string) error {
	if m.cfg.AlertWebhookURL == "" {
		return nil
	}

	resp, err := m.client.R().
		SetContext(ctx).
		SetBody(map[string]any{"text": text}).
		Post(m.cfg.AlertWebhookURL)
	if err != nil {
		return fmt.Errorf("failed to post alert: %w", err)
	}

	if resp.IsError() {
		return fmt.Errorf("failed to post alert: HTTP %d", resp.StatusCode())
	}

	return nil
}

// onTaskFailed alerts asynchronously so the processor tick is not held by the webhook.
func (m *Monitor) onTaskFailed(ctx context.Context, event events.Event) {
	exec, ok := event.Payload.(*models.TaskExecution)
	if !ok {
		return
	}

	m.mu.Lock()
	svc, ok := m.services[exec.TaskID]
	m.mu.Unlock()

	if !ok {
		return
	}

	reason := "unknown error"
	if exec.Error != nil {
		reason = exec.Error.Message
	}

	if svc.expectedFailure(reason) {
		return
	}

	text := fmt.Sprintf("ALERT %s is unhealthy (%s): %s", svc.Name, svc.URL, reason)

	m.alerts.Add(1)

	go func() {
		defer m.alerts.Done()

		alertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.Timeout)
		defer cancel()

		if err := m.Alert(alertCtx, text); err != nil {
			m.logger.ErrorContext(alertCtx, "Failed to send alert", "service", svc.Name, "error", err)
		}
	}()
}

// Close stops listening for failures and waits for pending alerts.
func (m *Monitor) Close() {
	m.mu.Lock()
	detach := m.detach
	m.detach = nil
	m.mu.Unlock()

	if detach != nil {
		detach()
	}

	m.alerts.Wait()
}
