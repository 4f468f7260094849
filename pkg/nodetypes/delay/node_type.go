// Package delay provides the delay node type.
package delay

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/taskflow/pkg/protocol"
	"github.com/dukex/taskflow/pkg/validation"
	"github.com/jonboulle/clockwork"
)

const (
	Name = "delay"

	maxDelay = time.Hour
)

// NodeType waits for the configured duration. Cancelling the context ends the wait
// early and fails the node.
type NodeType struct {
	clock clockwork.Clock
}

type Option func(*NodeType)

func WithClock(clock clockwork.Clock) Option {
	return func(n *NodeType) {
		n.clock = clock
	}
}

func New(opts ...Option) *NodeType {
	n := &NodeType{clock: clockwork.NewRealClock()}

	for _, opt := range opts {
		opt(n)
	}

	return n
}

func (n *NodeType) Name() string {
	return Name
}

func (n *NodeType) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"duration": map[string]any{
				"description": "Milliseconds, or a duration string such as 1.5s",
				"type":        []string{"number", "string"},
			},
		},
		"required": []string{"duration"},
	}
}

func (n *NodeType) Validate(config map[string]any) protocol.ValidationResult {
	errs := validation.Schema(n.Schema(), config)

	var warnings []string

	if _, present := config["duration"]; present {
		d, ok := protocol.ConfigDuration(config, "duration")

		switch {
		case !ok:
			errs = append(errs, fmt.Sprintf("duration %v is not a valid duration", config["duration"]))
		case d < 0:
			errs = append(errs, "duration must not be negative")
		case d > maxDelay:
			warnings = append(warnings, fmt.Sprintf("duration %s blocks the workflow processor", d))
		}
	}

	return protocol.NewValidationResult(errs, warnings)
}

func (n *NodeType) Execute(ctx context.Context, config map[string]any, _ protocol.ExecutionContext) protocol.Result {
	d, ok := protocol.ConfigDuration(config, "duration")
	if !ok || d < 0 {
		return protocol.Failed(fmt.Sprintf("invalid duration %v", config["duration"]))
	}

	timer := n.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return protocol.Failed(fmt.Sprintf("delay interrupted: %v", ctx.Err()))
	case <-timer.Chan():
	}

	return protocol.Succeeded(map[string]any{"delayed": d.Milliseconds()})
}
