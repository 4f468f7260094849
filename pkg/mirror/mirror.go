// Package mirror keeps a downstream copy of engine state in a document store. The engines
// never read it back.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dukex/taskflow/pkg/eventbus"
	"github.com/dukex/taskflow/pkg/events"
	"github.com/goccy/go-json"
)

// Collections.
const (
	CollectionTasks              = "tasks"
	CollectionTaskExecutions     = "task_executions"
	CollectionTaskSchedules      = "task_schedules"
	CollectionWorkers            = "workers"
	CollectionWorkflows          = "workflows"
	CollectionWorkflowExecutions = "workflow_executions"
)

var (
	ErrNotFound          = errors.New("document not found")
	ErrUnknownCollection = errors.New("no collection for event")
)

// Document is the stored shape of any mirrored entity. Data holds the entity JSON.
type Document struct {
	ID         string          `json:"id"`
	Collection string          `json:"collection"`
	Status     string          `json:"status,omitempty"`
	Type       string          `json:"type,omitempty"`
	CreatedBy  string          `json:"createdBy,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
	Data       json.RawMessage `json:"data"`
}

// ListQuery filters a collection. Empty fields match everything; Limit 0 means no limit.
type ListQuery struct {
	Status    string
	Type      string
	CreatedBy string
	Offset    int
	Limit     int
}

// Store persists documents per collection.
type Store interface {
	Save(ctx context.Context, doc Document) error
	Get(ctx context.Context, collection, id string) (*Document, error)
	Delete(ctx context.Context, collection, id string) error
	List(ctx context.Context, collection string, query ListQuery) ([]Document, error)
	Close() error
}

// ApplyQuery filters docs, orders them by creation and pages the result. Stores without
// native querying use it.
func ApplyQuery(docs []Document, query ListQuery) []Document {
	filtered := make([]Document, 0, len(docs))

	for _, doc := range docs {
		if query.Status != "" && doc.Status != query.Status {
			continue
		}

		if query.Type != "" && doc.Type != query.Type {
			continue
		}

		if query.CreatedBy != "" && doc.CreatedBy != query.CreatedBy {
			continue
		}

		filtered = append(filtered, doc)
	}

	slices.SortStableFunc(filtered, func(a, b Document) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}

		return strings.Compare(a.ID, b.ID)
	})

	if query.Offset > 0 {
		if query.Offset >= len(filtered) {
			return []Document{}
		}

		filtered = filtered[query.Offset:]
	}

	if query.Limit > 0 && len(filtered) > query.Limit {
		filtered = filtered[:query.Limit]
	}

	return filtered
}

// Change is a live update delivered to watchers.
type Change struct {
	Document Document
	Deleted  bool
}

type watcher struct {
	id int
	fn func(Change)
}

// Mirror applies engine events to a Store.
type Mirror struct {
	store  Store
	logger *slog.Logger

	mu       sync.Mutex
	nextID   int
	watchers map[string][]watcher
}

func New(store Store, logger *slog.Logger) *Mirror {
	return &Mirror{
		store:    store,
		logger:   logger.With("module", "mirror"),
		watchers: make(map[string][]watcher),
	}
}

// Attach mirrors every event emitted on emitter until the returned func is called.
func (m *Mirror) Attach(emitter *events.Emitter) func() {
	return emitter.OnAny(func(ctx context.Context, event events.Event) {
		data, err := json.Marshal(event.Payload)
		if err != nil {
			m.logger.ErrorContext(ctx, "Failed to encode event payload", "event_type", event.Type, "error", err)

			return
		}

		if err := m.Apply(ctx, event.Type, event.Key, event.Timestamp, data); err != nil {
			m.logger.ErrorContext(ctx, "Failed to mirror event", "event_type", event.Type, "key", event.Key, "error", err)
		}
	})
}

// HandleEnvelope mirrors an event consumed from the bus. It matches eventbus.Handler.
func (m *Mirror) HandleEnvelope(ctx context.Context, envelope eventbus.Envelope) error {
	return m.Apply(ctx, envelope.Type, envelope.Key, envelope.Timestamp, envelope.Payload)
}

// Apply upserts or deletes the document the event is about.
func (m *Mirror) Apply(ctx context.Context, eventType events.EventType, id string, at time.Time, data json.RawMessage) error {
	collection, deleted, ok := Route(eventType)
	if !ok {
		return fmt.Errorf("%w %s", ErrUnknownCollection, eventType)
	}

	doc, err := buildDocument(collection, id, at, data)
	if err != nil {
		return fmt.Errorf("failed to build %s document %s: %w", collection, id, err)
	}

	if deleted {
		if err := m.store.Delete(ctx, collection, id); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	} else if err := m.store.Save(ctx, doc); err != nil {
		return err
	}

	m.notify(Change{Document: doc, Deleted: deleted})

	return nil
}

// Watch calls fn for every change applied to collection until the returned func is called.
func (m *Mirror) Watch(collection string, fn func(Change)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := m.nextID
	m.watchers[collection] = append(m.watchers[collection], watcher{id: id, fn: fn})

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()

		m.watchers[collection] = slices.DeleteFunc(m.watchers[collection], func(w watcher) bool {
			return w.id == id
		})
	}
}

func (m *Mirror) Store() Store {
	return m.store
}

func (m *Mirror) notify(change Change) {
	m.mu.Lock()
	watchers := slices.Clone(m.watchers[change.Document.Collection])
	m.mu.Unlock()

	for _, w := range watchers {
		w.fn(change)
	}
}

// Route maps an event to its collection and whether it removes the document.
func Route(eventType events.EventType) (string, bool, bool) {
	switch eventType {
	case events.TaskCreated, events.TaskUpdated:
		return CollectionTasks, false, true
	case events.TaskDeleted:
		return CollectionTasks, true, true
	case events.TaskScheduled:
		return CollectionTaskSchedules, false, true
	case events.TaskUnscheduled:
		return CollectionTaskSchedules, true, true
	case events.TaskExecutionStarted, events.TaskExecutionCancelled, events.TaskExecutionRetrying,
		events.TaskExecutionCompleted, events.TaskExecutionFailed:
		return CollectionTaskExecutions, false, true
	case events.WorkerRegistered, events.WorkerOffline:
		return CollectionWorkers, false, true
	case events.WorkerUnregistered:
		return CollectionWorkers, true, true
	case events.WorkflowCreated, events.WorkflowUpdated:
		return CollectionWorkflows, false, true
	case events.WorkflowDeleted:
		return CollectionWorkflows, true, true
	case events.WorkflowExecutionStarted, events.WorkflowExecutionPaused, events.WorkflowExecutionResumed,
		events.WorkflowExecutionCancelled, events.WorkflowExecutionCompleted, events.WorkflowExecutionFailed,
		events.WorkflowExecutionNodeCompleted:
		return CollectionWorkflowExecutions, false, true
	}

	return "", false, false
}

// indexed are the entity fields lifted onto the document for filtering.
type indexed struct {
	Status       string    `json:"status"`
	Type         string    `json:"type"`
	TaskID       string    `json:"taskId"`
	WorkflowID   string    `json:"workflowId"`
	Active       *bool     `json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
	RegisteredAt time.Time `json:"registeredAt"`
	StartedAt    time.Time `json:"startedAt"`
	Metadata     struct {
		Author string `json:"author"`
	} `json:"metadata"`
}

func buildDocument(collection, id string, at time.Time, data json.RawMessage) (Document, error) {
	var fields indexed

	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, &fields); err != nil {
			return Document{}, err
		}
	}

	doc := Document{
		ID:         id,
		Collection: collection,
		Status:     fields.Status,
		CreatedBy:  fields.Metadata.Author,
		UpdatedAt:  at,
		Data:       data,
	}

	switch collection {
	case CollectionTasks:
		doc.Type = fields.Type
	case CollectionTaskExecutions, CollectionTaskSchedules:
		doc.Type = fields.TaskID
	case CollectionWorkflowExecutions:
		doc.Type = fields.WorkflowID
	}

	if fields.Active != nil {
		doc.Status = "inactive"
		if *fields.Active {
			doc.Status = "active"
		}
	}

	for _, candidate := range []time.Time{fields.CreatedAt, fields.RegisteredAt, fields.StartedAt, at} {
		if !candidate.IsZero() {
			doc.CreatedAt = candidate

			break
		}
	}

	return doc, nil
}
