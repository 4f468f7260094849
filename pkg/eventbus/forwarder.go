// Package eventbus bridges the in-process emitter to a watermill pub/sub so events can
// leave the process.
package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/taskflow/pkg/events"
	"github.com/goccy/go-json"
)

// Forwarder publishes emitted events on events.Topic.
type Forwarder struct {
	publisher message.Publisher
	logger    *slog.Logger
}

func NewForwarder(publisher message.Publisher, logger *slog.Logger) *Forwarder {
	return &Forwarder{
		publisher: publisher,
		logger:    logger.With("module", "eventbus"),
	}
}

func (f *Forwarder) GenerateID() string {
	return watermill.NewULID()
}

// Publish sends one event. The entity key and event type travel as metadata so
// partitioned transports keep per-entity order.
func (f *Forwarder) Publish(ctx context.Context, event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", event.Type, err)
	}

	msg := message.NewMessage("msg-"+f.GenerateID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(events.EventMetadataKey, event.Key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.Type))

	if err := f.publisher.Publish(events.Topic, msg); err != nil {
		return fmt.Errorf("failed to publish event %s: %w", event.Type, err)
	}

	return nil
}

// Attach forwards every event emitted on emitter until the returned func is called.
// Publish failures are logged and never reach the emitting engine.
func (f *Forwarder) Attach(emitter *events.Emitter) func() {
	return emitter.OnAny(func(ctx context.Context, event events.Event) {
		if err := f.Publish(ctx, event); err != nil {
			f.logger.ErrorContext(ctx, "Failed to forward event", "event_type", event.Type, "key", event.Key, "error", err)
		}
	})
}

func (f *Forwarder) Close() error {
	return f.publisher.Close()
}

// Envelope is an event as read back from the topic. Payload stays encoded until the
// consumer decodes it into the model it expects.
type Envelope struct {
	ID        string           `json:"id"`
	Type      events.EventType `json:"type"`
	Source    string           `json:"source"`
	Key       string           `json:"key"`
	Timestamp time.Time        `json:"timestamp"`
	Payload   json.RawMessage  `json:"payload"`
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

type Handler func(ctx context.Context, envelope Envelope) error

// Listen consumes events.Topic until ctx is done. Messages whose handler fails are
// nacked for redelivery; undecodable messages are acked and dropped.
func Listen(ctx context.Context, subscriber message.Subscriber, logger *slog.Logger, handler Handler) error {
	messages, err := subscriber.Subscribe(ctx, events.Topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", events.Topic, err)
	}

	go func() {
		for msg := range messages {
			var envelope Envelope

			if err := json.Unmarshal(msg.Payload, &envelope); err != nil {
				logger.ErrorContext(ctx, "Dropping undecodable event", "message_id", msg.UUID, "error", err)
				msg.Ack()

				continue
			}

			if err := handler(ctx, envelope); err != nil {
				logger.WarnContext(ctx, "Event handler failed", "event_type", envelope.Type, "error", err)
				msg.Nack()

				continue
			}

			msg.Ack()
		}
	}()

	return nil
}
