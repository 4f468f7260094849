package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/taskflow/pkg/channels/gochannel"
	"github.com/dukex/taskflow/pkg/channels/kafka"
)

const serviceName = "taskflow"

// EventBus is the pub/sub pair selected by provider.
type EventBus struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

func (b EventBus) Close() error {
	err := b.Publisher.Close()

	if any(b.Subscriber) != any(b.Publisher) {
		err = errors.Join(err, b.Subscriber.Close())
	}

	return err
}

// NewEventBus returns the in-memory channel for "gochannel" (or an empty provider) and a
// Kafka consumer group for "kafka".
func NewEventBus(provider, brokers string, logger *slog.Logger) (EventBus, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "", "gochannel":
		pubSub := gochannel.New(wmLogger)

		return EventBus{Publisher: pubSub, Subscriber: pubSub}, nil
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wmLogger, kafka.ParseBrokers(brokers), serviceName)
		if err != nil {
			return EventBus{}, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return EventBus{Publisher: pub, Subscriber: sub}, nil
	default:
		return EventBus{}, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}
