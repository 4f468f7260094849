package models

import (
	"slices"
	"time"
)

// WorkflowStatus represents the lifecycle state of a workflow definition.
type WorkflowStatus string

const (
	WorkflowStatusDraft    WorkflowStatus = "draft"
	WorkflowStatusActive   WorkflowStatus = "active"
	WorkflowStatusPaused   WorkflowStatus = "paused"
	WorkflowStatusArchived WorkflowStatus = "archived"
)

// NodeTypeTrigger is the node type every workflow needs at least one of.
const NodeTypeTrigger = "trigger"

// ErrorHandling selects what the graph walk does when a node fails.
type ErrorHandling string

const (
	ErrorHandlingStop     ErrorHandling = "stop"
	ErrorHandlingContinue ErrorHandling = "continue"
	ErrorHandlingRetry    ErrorHandling = "retry"
)

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// WorkflowNode is a node instance in a workflow graph.
type WorkflowNode struct {
	ID          string         `json:"id"                    validate:"required"`
	Type        string         `json:"type"                  validate:"required"`
	Name        string         `json:"name"`
	Config      map[string]any `json:"config"`
	Position    Position       `json:"position"`
	Connections []string       `json:"connections,omitempty"`
}

// IsTrigger reports whether the node is an entry point.
func (n *WorkflowNode) IsTrigger() bool {
	return n.Type == NodeTypeTrigger
}

// Connection links a source node to a target node. Condition is a CEL expression over
// the execution variables; an empty condition always matches.
type Connection struct {
	ID        string `json:"id"`
	Source    string `json:"source"              validate:"required"`
	Target    string `json:"target"              validate:"required"`
	Condition string `json:"condition,omitempty"`
	Label     string `json:"label,omitempty"`
}

// Variable is a typed declaration whose Value seeds every execution.
type Variable struct {
	Name        string `json:"name"                  validate:"required"`
	Type        string `json:"type"                  validate:"required,oneof=string number boolean object array"`
	Value       any    `json:"value,omitempty"`
	Description string `json:"description,omitempty"`
}

type WorkflowSettings struct {
	Timeout       Duration      `json:"timeout,omitempty"       validate:"gte=0"`
	RetryPolicy   RetryPolicy   `json:"retryPolicy"`
	Concurrency   int           `json:"concurrency,omitempty"   validate:"gte=0"`
	ErrorHandling ErrorHandling `json:"errorHandling,omitempty" validate:"omitempty,oneof=stop continue retry"`
	Logging       string        `json:"logging,omitempty"       validate:"omitempty,oneof=none basic detailed"`
}

type WorkflowMetadata struct {
	Tags        []string `json:"tags,omitempty"`
	Category    string   `json:"category,omitempty"`
	Author      string   `json:"author,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// Workflow is a directed node graph definition.
type Workflow struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"                  validate:"required"`
	Description string           `json:"description,omitempty"`
	Version     string           `json:"version,omitempty"`
	Nodes       []WorkflowNode   `json:"nodes"                 validate:"dive"`
	Connections []Connection     `json:"connections,omitempty" validate:"dive"`
	Variables   []Variable       `json:"variables,omitempty"   validate:"dive"`
	Settings    WorkflowSettings `json:"settings"`
	Metadata    WorkflowMetadata `json:"metadata"`
	Status      WorkflowStatus   `json:"status"                validate:"omitempty,oneof=draft active paused archived"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// FindNode returns the node with the given id.
func (w *Workflow) FindNode(id string) (*WorkflowNode, bool) {
	for i := range w.Nodes {
		if w.Nodes[i].ID == id {
			return &w.Nodes[i], true
		}
	}

	return nil, false
}

// FirstTrigger returns the first trigger node in declaration order.
func (w *Workflow) FirstTrigger() (*WorkflowNode, bool) {
	for i := range w.Nodes {
		if w.Nodes[i].IsTrigger() {
			return &w.Nodes[i], true
		}
	}

	return nil, false
}

// OutgoingConnections returns the connections leaving nodeID in declaration order.
func (w *Workflow) OutgoingConnections(nodeID string) []Connection {
	var out []Connection

	for _, c := range w.Connections {
		if c.Source == nodeID {
			out = append(out, c)
		}
	}

	return out
}

// InitialVariables returns the declared variable values keyed by name.
func (w *Workflow) InitialVariables() map[string]any {
	vars := make(map[string]any, len(w.Variables))
	for _, v := range w.Variables {
		vars[v.Name] = v.Value
	}

	return CloneMap(vars)
}

// HasAnyTag reports whether the workflow carries at least one of tags.
func (w *Workflow) HasAnyTag(tags []string) bool {
	for _, tag := range tags {
		if slices.Contains(w.Metadata.Tags, tag) {
			return true
		}
	}

	return false
}

func (w *Workflow) Clone() *Workflow {
	if w == nil {
		return nil
	}

	c := *w
	c.Nodes = make([]WorkflowNode, len(w.Nodes))

	for i, n := range w.Nodes {
		n.Config = CloneMap(n.Config)
		n.Connections = slices.Clone(n.Connections)
		c.Nodes[i] = n
	}

	c.Connections = slices.Clone(w.Connections)
	c.Variables = make([]Variable, len(w.Variables))

	for i, v := range w.Variables {
		if m, ok := v.Value.(map[string]any); ok {
			v.Value = CloneMap(m)
		}

		c.Variables[i] = v
	}

	c.Metadata.Tags = slices.Clone(w.Metadata.Tags)
	c.Metadata.Permissions = slices.Clone(w.Metadata.Permissions)

	return &c
}
