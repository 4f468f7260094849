// Package task implements the task automation engine: task definitions, schedules,
// dependency checks, resource bookkeeping, a worker registry and a polling execution
// queue advanced one execution per tick.
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dukex/taskflow/pkg/config"
	"github.com/dukex/taskflow/pkg/events"
	"github.com/dukex/taskflow/pkg/metrics"
	"github.com/dukex/taskflow/pkg/models"
	"github.com/dukex/taskflow/pkg/otelhelper"
	"github.com/dukex/taskflow/pkg/protocol"
	"github.com/dukex/taskflow/pkg/schedule"
	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/trace"
)

type Option func(*Engine)

func WithEmitter(emitter *events.Emitter) Option {
	return func(e *Engine) { e.emitter = emitter }
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithClock(clock clockwork.Clock) Option {
	return func(e *Engine) { e.clock = clock }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) { e.tracer = tracer }
}

// WithConfig sets the loop intervals, the heartbeat timeout and the default list limit.
func WithConfig(cfg config.Config) Option {
	return func(e *Engine) {
		e.cfg = cfg.Task
		e.listLimit = cfg.ListLimit
	}
}

// Engine is safe for concurrent use. The lock is never held while a task type runs or
// an event is emitted, so handlers may call back into the engine.
type Engine struct {
	types     protocol.TaskTypeLookup
	emitter   *events.Emitter
	logger    *slog.Logger
	clock     clockwork.Clock
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	cfg       config.TaskEngine
	listLimit int

	mu             sync.Mutex
	tasks          map[string]*models.Task
	taskOrder      []string
	executions     map[string]*models.TaskExecution
	executionOrder []string
	queue          []string
	schedules      map[string]*models.TaskSchedule
	scheduleSpecs  map[string]*schedule.Spec
	scheduleOrder  []string
	workers        map[string]*models.Worker
	workerOrder    []string

	processing atomic.Bool
	scheduling atomic.Bool

	loopMu    sync.Mutex
	scheduler gocron.Scheduler
	cancel    context.CancelFunc
}

func New(types protocol.TaskTypeLookup, opts ...Option) *Engine {
	defaults := config.Default()

	e := &Engine{
		types:         types,
		logger:        slog.Default(),
		clock:         clockwork.NewRealClock(),
		tracer:        otelhelper.NoopTracer(),
		cfg:           defaults.Task,
		listLimit:     defaults.ListLimit,
		tasks:         make(map[string]*models.Task),
		executions:    make(map[string]*models.TaskExecution),
		schedules:     make(map[string]*models.TaskSchedule),
		scheduleSpecs: make(map[string]*schedule.Spec),
		workers:       make(map[string]*models.Worker),
	}

	for _, opt := range opts {
		opt(e)
	}

	e.logger = e.logger.With("module", "task_engine")

	if e.emitter == nil {
		e.emitter = events.NewEmitter(e.logger)
	}

	return e
}

// Emitter is where task, schedule, execution and worker events are published.
func (e *Engine) Emitter() *events.Emitter {
	return e.emitter
}

// Start runs the processor, scheduler and heartbeat sweep loops until Stop is called.
func (e *Engine) Start(ctx context.Context) error {
	e.loopMu.Lock()
	defer e.loopMu.Unlock()

	if e.scheduler != nil {
		return errors.New("task engine already started")
	}

	scheduler, err := gocron.NewScheduler(gocron.WithClock(e.clock))
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)

	loops := []struct {
		name     string
		interval time.Duration
		run      func()
	}{
		{"task_processor", e.cfg.ProcessorInterval, func() { e.ProcessNext(loopCtx) }},
		{"task_scheduler", e.cfg.SchedulerInterval, func() { e.RunScheduler(loopCtx) }},
		{"worker_sweep", e.cfg.SweepInterval, func() { e.SweepWorkers(loopCtx) }},
	}

	for _, loop := range loops {
		_, err := scheduler.NewJob(
			gocron.DurationJob(loop.interval),
			gocron.NewTask(loop.run),
			gocron.WithName(loop.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			cancel()
			_ = scheduler.Shutdown()

			return fmt.Errorf("failed to schedule %s: %w", loop.name, err)
		}
	}

	scheduler.Start()

	e.scheduler = scheduler
	e.cancel = cancel

	e.logger.InfoContext(ctx, "Task engine started",
		"processor_interval", e.cfg.ProcessorInterval,
		"scheduler_interval", e.cfg.SchedulerInterval,
		"sweep_interval", e.cfg.SweepInterval)

	return nil
}

// Stop halts the loops and waits for a running tick to return.
func (e *Engine) Stop() error {
	e.loopMu.Lock()
	defer e.loopMu.Unlock()

	if e.scheduler == nil {
		return nil
	}

	e.cancel()
	err := e.scheduler.Shutdown()
	e.scheduler = nil
	e.cancel = nil

	e.logger.Info("Task engine stopped")

	return err
}

func (e *Engine) emit(ctx context.Context, eventType events.EventType, key string, payload any) {
	e.emitter.Emit(ctx, events.New(eventType, events.SourceTaskEngine, key, e.clock.Now(), payload))
}

func newID() string {
	return uuid.NewString()
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}

	if offset >= len(items) {
		return []T{}
	}

	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	return items
}
