package mocks

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/taskflow/pkg/mirror"
	"github.com/stretchr/testify/mock"
)

// MockStore is a mock implementation of mirror.Store.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Save(ctx context.Context, doc mirror.Document) error {
	args := m.Called(ctx, doc)

	return args.Error(0)
}

func (m *MockStore) Get(ctx context.Context, collection, id string) (*mirror.Document, error) {
	args := m.Called(ctx, collection, id)

	doc, _ := args.Get(0).(*mirror.Document)

	return doc, args.Error(1)
}

func (m *MockStore) Delete(ctx context.Context, collection, id string) error {
	args := m.Called(ctx, collection, id)

	return args.Error(0)
}

func (m *MockStore) List(ctx context.Context, collection string, query mirror.ListQuery) ([]mirror.Document, error) {
	args := m.Called(ctx, collection, query)

	docs, _ := args.Get(0).([]mirror.Document)

	return docs, args.Error(1)
}

func (m *MockStore) Close() error {
	args := m.Called()

	return args.Error(0)
}

// MockPublisher is a mock implementation of message.Publisher.
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(topic string, messages ...*message.Message) error {
	args := m.Called(topic, messages)

	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	args := m.Called()

	return args.Error(0)
}

var (
	_ mirror.Store      = (*MockStore)(nil)
	_ message.Publisher = (*MockPublisher)(nil)
)
