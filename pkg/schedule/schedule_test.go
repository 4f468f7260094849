package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextRun(t *testing.T) {
	base := time.Date(2025, 3, 10, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name       string
		expression string
		timezone   string
		expected   time.Time
	}{
		{
			name:       "every five minutes",
			expression: "*/5 * * * *",
			expected:   time.Date(2025, 3, 10, 10, 35, 0, 0, time.UTC),
		},
		{
			name:       "hourly descriptor",
			expression: "@hourly",
			expected:   time.Date(2025, 3, 10, 11, 0, 0, 0, time.UTC),
		},
		{
			name:       "daily at nine in Sao Paulo",
			expression: "0 9 * * *",
			timezone:   "America/Sao_Paulo",
			expected:   time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
		},
		{
			name:       "every interval",
			expression: "@every 90s",
			expected:   base.Add(90 * time.Second),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := NextRun(tt.expression, tt.timezone, base)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, next)
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse("not a cron", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cron expression")

	_, err = Parse("* * * * *", "Mars/Olympus_Mons")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid timezone")
}
