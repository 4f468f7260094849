package models

import "time"

// TaskSchedule triggers a task on a cron expression.
type TaskSchedule struct {
	ID             string     `json:"id"`
	TaskID         string     `json:"taskId"`
	CronExpression string     `json:"cronExpression"`
	Timezone       string     `json:"timezone"`
	NextRunAt      time.Time  `json:"nextRunAt"`
	Active         bool       `json:"active"`
	LastRunAt      *time.Time `json:"lastRunAt,omitempty"`
	RunCount       int        `json:"runCount"`
	MaxRuns        *int       `json:"maxRuns,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// Exhausted reports whether the schedule reached its run cap.
func (s *TaskSchedule) Exhausted() bool {
	return s.MaxRuns != nil && s.RunCount >= *s.MaxRuns
}

// Due reports whether the schedule should fire at now.
func (s *TaskSchedule) Due(now time.Time) bool {
	return s.Active && !s.Exhausted() && !s.NextRunAt.After(now)
}

func (s *TaskSchedule) Clone() *TaskSchedule {
	if s == nil {
		return nil
	}

	c := *s
	c.LastRunAt = cloneTime(s.LastRunAt)

	if s.MaxRuns != nil {
		maxRuns := *s.MaxRuns
		c.MaxRuns = &maxRuns
	}

	return &c
}
