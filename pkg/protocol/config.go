package protocol

import (
	"time"
)

// ConfigString returns config[key] when it is a string.
func ConfigString(config map[string]any, key string) string {
	s, _ := config[key].(string)

	return s
}

// ConfigNumber returns config[key] as a float64. JSON decoded configs carry float64
// while configs built in Go often carry int.
func ConfigNumber(config map[string]any, key string) (float64, bool) {
	switch v := config[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	default:
		return 0, false
	}
}

// ConfigInt returns config[key] as an int or def when absent.
func ConfigInt(config map[string]any, key string, def int) int {
	n, ok := ConfigNumber(config, key)
	if !ok {
		return def
	}

	return int(n)
}

// ConfigMap returns config[key] when it is an object.
func ConfigMap(config map[string]any, key string) map[string]any {
	m, _ := config[key].(map[string]any)

	return m
}

// ConfigDuration reads a duration given either as milliseconds or as a Go duration
// string ("1.5s").
func ConfigDuration(config map[string]any, key string) (time.Duration, bool) {
	if s, ok := config[key].(string); ok {
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, false
		}

		return d, true
	}

	n, ok := ConfigNumber(config, key)
	if !ok {
		return 0, false
	}

	return time.Duration(n * float64(time.Millisecond)), true
}
