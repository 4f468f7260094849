package models

import (
	"time"

	"github.com/mohae/deepcopy"
)

// CloneMap deep copies a free-form map so callers never alias engine-owned state.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}

	cloned, ok := deepcopy.Copy(m).(map[string]any)
	if !ok {
		return map[string]any{}
	}

	return cloned
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}

	c := *t

	return &c
}
