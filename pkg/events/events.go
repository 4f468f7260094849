// Package events defines the lifecycle events both engines emit and the in-process
// emitter subscribers attach to.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic is the pub/sub topic events are forwarded to.
const Topic = "taskflow.events"

const (
	EventMetadataKey     = "key"
	EventTypeMetadataKey = "event_type"
)

// Sources.
const (
	SourceTaskEngine     = "task_engine"
	SourceWorkflowEngine = "workflow_engine"
)

const (
	// Task definition events, payload *models.Task.
	TaskCreated EventType = "task:created"
	TaskUpdated EventType = "task:updated"
	TaskDeleted EventType = "task:deleted"

	// Schedule events, payload *models.TaskSchedule.
	TaskScheduled   EventType = "task:scheduled"
	TaskUnscheduled EventType = "task:unscheduled"

	// Task execution events, payload *models.TaskExecution.
	TaskExecutionStarted   EventType = "task:execution:started"
	TaskExecutionCancelled EventType = "task:execution:cancelled"
	TaskExecutionRetrying  EventType = "task:execution:retrying"
	TaskExecutionCompleted EventType = "task:execution:completed"
	TaskExecutionFailed    EventType = "task:execution:failed"

	// Worker events, payload *models.Worker.
	WorkerRegistered   EventType = "worker:registered"
	WorkerUnregistered EventType = "worker:unregistered"
	WorkerOffline      EventType = "worker:offline"

	// Workflow definition events, payload *models.Workflow.
	WorkflowCreated EventType = "workflow:created"
	WorkflowUpdated EventType = "workflow:updated"
	WorkflowDeleted EventType = "workflow:deleted"

	// Workflow execution events, payload *models.WorkflowExecution.
	WorkflowExecutionStarted       EventType = "workflow:execution:started"
	WorkflowExecutionPaused        EventType = "workflow:execution:paused"
	WorkflowExecutionResumed       EventType = "workflow:execution:resumed"
	WorkflowExecutionCancelled     EventType = "workflow:execution:cancelled"
	WorkflowExecutionCompleted     EventType = "workflow:execution:completed"
	WorkflowExecutionFailed        EventType = "workflow:execution:failed"
	WorkflowExecutionNodeCompleted EventType = "workflow:execution:node:completed"
)

// All lists every event type in emission-domain order.
var All = []EventType{
	TaskCreated, TaskUpdated, TaskDeleted,
	TaskScheduled, TaskUnscheduled,
	TaskExecutionStarted, TaskExecutionCancelled, TaskExecutionRetrying,
	TaskExecutionCompleted, TaskExecutionFailed,
	WorkerRegistered, WorkerUnregistered, WorkerOffline,
	WorkflowCreated, WorkflowUpdated, WorkflowDeleted,
	WorkflowExecutionStarted, WorkflowExecutionPaused, WorkflowExecutionResumed,
	WorkflowExecutionCancelled, WorkflowExecutionCompleted, WorkflowExecutionFailed,
	WorkflowExecutionNodeCompleted,
}

// Event is a lifecycle notification. Key is the id of the entity the event is about
// and Payload a snapshot of it; subscribers own the payload.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Source    string    `json:"source"`
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// New builds an event stamped with a fresh id.
func New(eventType EventType, source, key string, at time.Time, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    source,
		Key:       key,
		Timestamp: at,
		Payload:   payload,
	}
}
