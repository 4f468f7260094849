package task

import (
	"context"
	"slices"
	"time"

	"github.com/dukex/taskflow/pkg/events"
	"github.com/dukex/taskflow/pkg/models"
	"github.com/dukex/taskflow/pkg/schedule"
)

// ScheduleOptions describe when a task runs. Timezone defaults to UTC; a nil MaxRuns
// means no cap.
type ScheduleOptions struct {
	CronExpression string
	Timezone       string
	MaxRuns        *int
}

// ScheduleTask stores an active schedule for the task.
func (e *Engine) ScheduleTask(ctx context.Context, taskID string, opts ScheduleOptions) (*models.TaskSchedule, error) {
	var problems []string

	spec, err := schedule.Parse(opts.CronExpression, opts.Timezone)
	if err != nil {
		problems = append(problems, err.Error())
	}

	if opts.MaxRuns != nil && *opts.MaxRuns < 1 {
		problems = append(problems, "maxRuns must be at least 1")
	}

	e.mu.Lock()

	if _, ok := e.tasks[taskID]; !ok {
		e.mu.Unlock()

		return nil, notFound(ErrTaskNotFound, taskID)
	}

	if len(problems) > 0 {
		e.mu.Unlock()

		return nil, &ValidationError{Op: "ScheduleTask", Problems: problems}
	}

	now := e.clock.Now()
	s := &models.TaskSchedule{
		ID:             newID(),
		TaskID:         taskID,
		CronExpression: opts.CronExpression,
		Timezone:       spec.Location.String(),
		NextRunAt:      spec.Next(now),
		Active:         true,
		CreatedAt:      now,
	}

	if opts.MaxRuns != nil {
		maxRuns := *opts.MaxRuns
		s.MaxRuns = &maxRuns
	}

	e.schedules[s.ID] = s
	e.scheduleSpecs[s.ID] = spec
	e.scheduleOrder = append(e.scheduleOrder, s.ID)
	stored := s.Clone()
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "Task scheduled", "task_id", taskID, "schedule_id", s.ID, "next_run_at", s.NextRunAt)
	e.emit(ctx, events.TaskScheduled, s.ID, stored.Clone())

	return stored, nil
}

// UnscheduleTask deactivates and removes a schedule.
func (e *Engine) UnscheduleTask(ctx context.Context, scheduleID string) error {
	e.mu.Lock()

	s, ok := e.schedules[scheduleID]
	if !ok {
		e.mu.Unlock()

		return notFound(ErrScheduleNotFound, scheduleID)
	}

	s.Active = false
	removed := s.Clone()

	delete(e.schedules, scheduleID)
	delete(e.scheduleSpecs, scheduleID)
	e.scheduleOrder = slices.DeleteFunc(e.scheduleOrder, func(id string) bool { return id == scheduleID })
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "Task unscheduled", "schedule_id", scheduleID, "task_id", removed.TaskID)
	e.emit(ctx, events.TaskUnscheduled, scheduleID, removed)

	return nil
}

// ListSchedules returns the schedules of a task, or of every task when taskID is empty.
func (e *Engine) ListSchedules(_ context.Context, taskID string) ([]*models.TaskSchedule, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if taskID != "" {
		if _, ok := e.tasks[taskID]; !ok {
			return nil, notFound(ErrTaskNotFound, taskID)
		}
	}

	out := []*models.TaskSchedule{}

	for _, id := range e.scheduleOrder {
		if s := e.schedules[id]; taskID == "" || s.TaskID == taskID {
			out = append(out, s.Clone())
		}
	}

	return out, nil
}

// RunScheduler runs one scheduler tick: every due schedule executes its task and
// advances. Execution errors are logged and the schedule still advances. It returns
// how many schedules fired.
func (e *Engine) RunScheduler(ctx context.Context) int {
	if !e.scheduling.CompareAndSwap(false, true) {
		return 0
	}
	defer e.scheduling.Store(false)

	now := e.clock.Now()

	e.mu.Lock()

	var due []*models.TaskSchedule

	for _, id := range e.scheduleOrder {
		if s := e.schedules[id]; s.Due(now) {
			due = append(due, s.Clone())
		}
	}
	e.mu.Unlock()

	for _, s := range due {
		if _, err := e.ExecuteTask(ctx, s.TaskID, nil); err != nil {
			e.logger.ErrorContext(ctx, "Scheduled execution failed to start",
				"schedule_id", s.ID, "task_id", s.TaskID, "error", err)
		} else {
			e.metrics.IncScheduledRun()
		}

		if advanced := e.advanceSchedule(s.ID, now); advanced != nil {
			e.emit(ctx, events.TaskScheduled, advanced.ID, advanced)
		}
	}

	return len(due)
}

// advanceSchedule records a run at now and returns a copy of the updated schedule,
// or nil when the schedule is gone or its expression no longer parses. A schedule
// that reaches MaxRuns is deactivated.
func (e *Engine) advanceSchedule(id string, now time.Time) *models.TaskSchedule {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.schedules[id]
	if !ok {
		return nil
	}

	spec, ok := e.scheduleSpecs[id]
	if !ok {
		parsed, err := schedule.Parse(s.CronExpression, s.Timezone)
		if err != nil {
			e.logger.Error("Schedule has an invalid expression", "schedule_id", id, "error", err)

			return nil
		}

		spec = parsed
		e.scheduleSpecs[id] = spec
	}

	ranAt := now
	s.LastRunAt = &ranAt
	s.RunCount++
	s.NextRunAt = spec.Next(now)

	if s.Exhausted() {
		s.Active = false
	}

	return s.Clone()
}
