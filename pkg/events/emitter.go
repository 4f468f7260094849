package events

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Handler receives emitted events. Handlers run synchronously on the emitting goroutine
// and may call back into the engine that emitted the event.
type Handler func(ctx context.Context, event Event)

type subscription struct {
	id      uint64
	handler Handler
}

// Emitter fans events out to subscribers.
type Emitter struct {
	logger   *slog.Logger
	mu       sync.RWMutex
	nextID   uint64
	handlers map[EventType][]subscription
	any      []subscription
}

func NewEmitter(logger *slog.Logger) *Emitter {
	return &Emitter{
		logger:   logger.With("module", "events"),
		handlers: make(map[EventType][]subscription),
	}
}

// On subscribes handler to one event type and returns a function that unsubscribes it.
func (e *Emitter) On(eventType EventType, handler Handler) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	id := e.nextID
	e.handlers[eventType] = append(e.handlers[eventType], subscription{id: id, handler: handler})

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()

		e.handlers[eventType] = remove(e.handlers[eventType], id)
	}
}

// OnAny subscribes handler to every event type.
func (e *Emitter) OnAny(handler Handler) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	id := e.nextID
	e.any = append(e.any, subscription{id: id, handler: handler})

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()

		e.any = remove(e.any, id)
	}
}

// Emit delivers event to the handlers subscribed when Emit is called, type-specific
// handlers first. A panicking handler is logged and does not stop delivery.
func (e *Emitter) Emit(ctx context.Context, event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	e.mu.RLock()
	handlers := make([]Handler, 0, len(e.handlers[event.Type])+len(e.any))

	for _, s := range e.handlers[event.Type] {
		handlers = append(handlers, s.handler)
	}

	for _, s := range e.any {
		handlers = append(handlers, s.handler)
	}
	e.mu.RUnlock()

	for _, handler := range handlers {
		e.call(ctx, handler, event)
	}
}

func (e *Emitter) call(ctx context.Context, handler Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.ErrorContext(ctx, "event handler panicked",
				"event_type", event.Type,
				"event_id", event.ID,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()

	handler(ctx, event)
}

func remove(subs []subscription, id uint64) []subscription {
	out := make([]subscription, 0, len(subs))

	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}

	return out
}
