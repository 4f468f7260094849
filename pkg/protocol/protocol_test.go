package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewValidationResult(t *testing.T) {
	assert.True(t, NewValidationResult(nil, []string{"slow"}).Valid)
	assert.False(t, NewValidationResult([]string{"url is required"}, nil).Valid)
}

func TestExecutionContext_Data(t *testing.T) {
	ctx := ExecutionContext{ExecutionID: "exec-1", TaskID: "task-1", Attempt: 2}

	data := ctx.Data()

	assert.Equal(t, map[string]any{}, data["input"])
	assert.Equal(t, map[string]any{}, data["variables"])
	assert.Equal(t, "exec-1", data["execution"].(map[string]any)["id"])
	assert.Equal(t, 2, data["execution"].(map[string]any)["attempt"])
	assert.NotNil(t, ctx.Log())
}

func TestConfigAccessors(t *testing.T) {
	config := map[string]any{
		"url":      "https://example.test",
		"timeout":  float64(5),
		"attempts": 3,
		"headers":  map[string]any{"Accept": "application/json"},
		"delay":    "1.5s",
		"wait":     250,
		"bad":      "soon",
	}

	assert.Equal(t, "https://example.test", ConfigString(config, "url"))
	assert.Empty(t, ConfigString(config, "timeout"))
	assert.Equal(t, 5, ConfigInt(config, "timeout", 30))
	assert.Equal(t, 3, ConfigInt(config, "attempts", 0))
	assert.Equal(t, 30, ConfigInt(config, "missing", 30))
	assert.Equal(t, "application/json", ConfigMap(config, "headers")["Accept"])
	assert.Nil(t, ConfigMap(config, "url"))

	d, ok := ConfigDuration(config, "delay")
	assert.True(t, ok)
	assert.Equal(t, 1500*time.Millisecond, d)

	d, ok = ConfigDuration(config, "wait")
	assert.True(t, ok)
	assert.Equal(t, 250*time.Millisecond, d)

	_, ok = ConfigDuration(config, "bad")
	assert.False(t, ok)
}
