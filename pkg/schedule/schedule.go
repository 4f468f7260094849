// Package schedule computes cron run times.
package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Spec is a parsed cron expression bound to a timezone.
type Spec struct {
	Expression string
	Location   *time.Location
	schedule   cron.Schedule
}

// Parse accepts standard 5-field expressions and descriptors such as @hourly or
// @every 5m. An empty timezone means UTC.
func Parse(expression, timezone string) (*Spec, error) {
	loc := time.UTC

	if timezone != "" {
		l, err := time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone %q: %w", timezone, err)
		}

		loc = l
	}

	sched, err := cron.ParseStandard(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expression, err)
	}

	return &Spec{Expression: expression, Location: loc, schedule: sched}, nil
}

// Next returns the first activation strictly after t, in UTC.
func (s *Spec) Next(t time.Time) time.Time {
	return s.schedule.Next(t.In(s.Location)).UTC()
}

// NextRun parses expression and returns its next activation after t.
func NextRun(expression, timezone string, t time.Time) (time.Time, error) {
	spec, err := Parse(expression, timezone)
	if err != nil {
		return time.Time{}, err
	}

	return spec.Next(t), nil
}
