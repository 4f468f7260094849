package eventbus_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/taskflow/pkg/channels/gochannel"
	"github.com/dukex/taskflow/pkg/eventbus"
	"github.com/dukex/taskflow/pkg/events"
	"github.com/dukex/taskflow/pkg/log"
	"github.com/dukex/taskflow/pkg/mocks"
	"github.com/dukex/taskflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestForwarder_RoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := log.Discard()
	pubSub := gochannel.New(watermill.NewSlogLogger(logger))
	defer func() { _ = pubSub.Close() }()

	received := make(chan eventbus.Envelope, 1)

	require.NoError(t, eventbus.Listen(ctx, pubSub, logger, func(_ context.Context, envelope eventbus.Envelope) error {
		received <- envelope

		return nil
	}))

	emitter := events.NewEmitter(logger)
	forwarder := eventbus.NewForwarder(pubSub, logger)
	detach := forwarder.Attach(emitter)
	defer detach()

	task := &models.Task{ID: "task-1", Name: "ping", Type: "http_request", Config: map[string]any{"url": "https://example.test"}}
	emitter.Emit(ctx, events.New(events.TaskCreated, events.SourceTaskEngine, task.ID, time.Now(), task))

	select {
	case envelope := <-received:
		assert.Equal(t, events.TaskCreated, envelope.Type)
		assert.Equal(t, "task-1", envelope.Key)
		assert.Equal(t, events.SourceTaskEngine, envelope.Source)

		var decoded models.Task
		require.NoError(t, envelope.Decode(&decoded))
		assert.Equal(t, "ping", decoded.Name)
		assert.Equal(t, "https://example.test", decoded.Config["url"])
	case <-time.After(5 * time.Second):
		t.Fatal("event was not forwarded")
	}
}

func TestForwarder_Metadata(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := log.Discard()
	pubSub := gochannel.New(watermill.NewSlogLogger(logger))
	defer func() { _ = pubSub.Close() }()

	messages, err := pubSub.Subscribe(ctx, events.Topic)
	require.NoError(t, err)

	forwarder := eventbus.NewForwarder(pubSub, logger)
	require.NoError(t, forwarder.Publish(ctx, events.New(events.WorkerOffline, events.SourceTaskEngine, "worker-9", time.Now(), nil)))

	select {
	case msg := <-messages:
		assert.Equal(t, "worker-9", msg.Metadata.Get(events.EventMetadataKey))
		assert.Equal(t, string(events.WorkerOffline), msg.Metadata.Get(events.EventTypeMetadataKey))
		msg.Ack()
	case <-time.After(5 * time.Second):
		t.Fatal("message not published")
	}
}

func TestForwarder_PublishFailureStaysWithForwarder(t *testing.T) {
	publisher := &mocks.MockPublisher{}
	publisher.On("Publish", events.Topic, mock.Anything).Return(errors.New("broker down"))

	forwarder := eventbus.NewForwarder(publisher, log.Discard())

	err := forwarder.Publish(context.Background(), events.New(events.TaskDeleted, events.SourceTaskEngine, "task-1", time.Now(), nil))
	assert.ErrorContains(t, err, "broker down")

	emitter := events.NewEmitter(log.Discard())
	detach := forwarder.Attach(emitter)
	defer detach()

	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), events.New(events.TaskDeleted, events.SourceTaskEngine, "task-2", time.Now(), nil))
	})
	publisher.AssertNumberOfCalls(t, "Publish", 2)
}
