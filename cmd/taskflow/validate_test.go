package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dukex/taskflow/pkg/task"
	"github.com/dukex/taskflow/pkg/testutil"
	"github.com/dukex/taskflow/pkg/workflow"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestValidate_NothingGiven(t *testing.T) {
	assert.ErrorIs(t, validate(context.Background(), "", "", "", ""), errNothingToValidate)
}

func TestValidate_Config(t *testing.T) {
	valid := writeFile(t, "taskflow.yaml", "list_limit: 20\n")
	assert.NoError(t, validate(context.Background(), valid, "", "", ""))

	invalid := writeFile(t, "taskflow.yaml", "list_limit: -1\n")
	assert.ErrorContains(t, validate(context.Background(), invalid, "", "", ""), "list_limit must be positive")
}

func TestValidate_Task(t *testing.T) {
	definition, err := json.Marshal(testutil.CreateTestTask())
	require.NoError(t, err)

	valid := writeFile(t, "task.json", string(definition))
	assert.NoError(t, validate(context.Background(), "", valid, "", ""))

	invalid := writeFile(t, "task.json", `{"type":"http_request","config":{"url":"https://example.test"}}`)
	err = validate(context.Background(), "", invalid, "", "")
	assert.True(t, task.IsValidationError(err))
}

func TestValidate_Workflow(t *testing.T) {
	valid := writeFile(t, "workflow.json", `{
		"name": "hello",
		"nodes": [{"id": "start", "type": "trigger", "config": {}}]
	}`)
	assert.NoError(t, validate(context.Background(), "", "", valid, ""))

	invalid := writeFile(t, "workflow.json", `{"name": "hello", "nodes": []}`)
	err := validate(context.Background(), "", "", invalid, "")
	assert.True(t, workflow.IsValidationError(err))

	garbage := writeFile(t, "workflow.json", `{`)
	assert.ErrorContains(t, validate(context.Background(), "", "", garbage, ""), "failed to parse")
}

func TestMonitoringConfig(t *testing.T) {
	cfg, err := monitoringConfig([]string{"api=https://api.test/health", " web = https://web.test "}, "https://chat.test/hook")
	require.NoError(t, err)

	require.Len(t, cfg.Services, 2)
	assert.Equal(t, "api", cfg.Services[0].Name)
	assert.Equal(t, "https://web.test", cfg.Services[1].URL)
	assert.Equal(t, "https://chat.test/hook", cfg.AlertWebhookURL)

	_, err = monitoringConfig([]string{"no-url"}, "")
	assert.Error(t, err)
}
