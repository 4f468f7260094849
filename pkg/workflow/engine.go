// Package workflow implements the workflow engine: node graph definitions executed one
// node per polling tick through pluggable node types.
package workflow

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
	"github.com/dukex/taskflow/pkg/expression"
	"github.com/dukex/taskflow/pkg/metrics"
	"github.com/dukex/taskflow/pkg/models"
	"github.com/dukex/taskflow/pkg/otelhelper"
	"github.com/dukex/taskflow/pkg/protocol"
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

// WithEvaluator sets the CEL evaluator used for connection conditions.
func WithEvaluator(evaluator *expression.CELEvaluator) Option {
	return func(e *Engine) { e.evaluator = evaluator }
}

func WithConfig(cfg config.Config) Option {
	return func(e *Engine) {
		e.processorInterval = cfg.Workflow.ProcessorInterval
		e.listLimit = cfg.ListLimit
	}
}

// Engine is safe for concurrent use. The lock is never held while a node type runs,
// a condition is evaluated or an event is emitted.
type Engine struct {
	types             protocol.NodeTypeLookup
	evaluator         *expression.CELEvaluator
	emitter           *events.Emitter
	logger            *slog.Logger
	clock             clockwork.Clock
	metrics           *metrics.Metrics
	tracer            trace.Tracer
	processorInterval time.Duration
	listLimit         int

	mu             sync.Mutex
	workflows      map[string]*models.Workflow
	workflowOrder  []string
	executions     map[string]*models.WorkflowExecution
	executionOrder []string
	queue          []string

	processing atomic.Bool

	loopMu    sync.Mutex
	scheduler gocron.Scheduler
	cancel    context.CancelFunc
}

func New(types protocol.NodeTypeLookup, opts ...Option) (*Engine, error) {
	defaults := config.Default()

	e := &Engine{
		types:             types,
		logger:            slog.Default(),
		clock:             clockwork.NewRealClock(),
		tracer:            otelhelper.NoopTracer(),
		processorInterval: defaults.Workflow.ProcessorInterval,
		listLimit:         defaults.ListLimit,
		workflows:         make(map[string]*models.Workflow),
		executions:        make(map[string]*models.WorkflowExecution),
	}

	for _, opt := range opts {
		opt(e)
	}

	e.logger = e.logger.With("module", "workflow_engine")

	if e.emitter == nil {
		e.emitter = events.NewEmitter(e.logger)
	}

	if e.evaluator == nil {
		evaluator, err := expression.NewCELEvaluator()
		if err != nil {
			return nil, fmt.Errorf("failed to create condition evaluator: %w", err)
		}

		e.evaluator = evaluator
	}

	return e, nil
}

// Emitter is where workflow and workflow execution events are published.
func (e *Engine) Emitter() *events.Emitter {
	return e.emitter
}

// Start runs the processor loop until Stop is called.
func (e *Engine) Start(ctx context.Context) error {
	e.loopMu.Lock()
	defer e.loopMu.Unlock()

	if e.scheduler != nil {
		return errors.New("workflow engine already started")
	}

	scheduler, err := gocron.NewScheduler(gocron.WithClock(e.clock))
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)

	_, err = scheduler.NewJob(
		gocron.DurationJob(e.processorInterval),
		gocron.NewTask(func() { e.ProcessNext(loopCtx) }),
		gocron.WithName("workflow_processor"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		cancel()
		_ = scheduler.Shutdown()

		return fmt.Errorf("failed to schedule workflow processor: %w", err)
	}

	scheduler.Start()

	e.scheduler = scheduler
	e.cancel = cancel

	e.logger.InfoContext(ctx, "Workflow engine started", "processor_interval", e.processorInterval)

	return nil
}

// Stop halts the processor loop and waits for a running tick to return.
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

	e.logger.Info("Workflow engine stopped")

	return err
}

func (e *Engine) emit(ctx context.Context, eventType events.EventType, key string, payload any) {
	e.emitter.Emit(ctx, events.New(eventType, events.SourceWorkflowEngine, key, e.clock.Now(), payload))
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
