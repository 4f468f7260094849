package mirror

import (
	"context"
	"sync"
)

// MemoryStore keeps documents in process.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]map[string]Document
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]map[string]Document)}
}

func (s *MemoryStore) Save(_ context.Context, doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.docs[doc.Collection] == nil {
		s.docs[doc.Collection] = make(map[string]Document)
	}

	s.docs[doc.Collection][doc.ID] = doc

	return nil
}

func (s *MemoryStore) Get(_ context.Context, collection, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[collection][id]
	if !ok {
		return nil, ErrNotFound
	}

	return &doc, nil
}

func (s *MemoryStore) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[collection][id]; !ok {
		return ErrNotFound
	}

	delete(s.docs[collection], id)

	return nil
}

func (s *MemoryStore) List(_ context.Context, collection string, query ListQuery) ([]Document, error) {
	s.mu.RLock()
	docs := make([]Document, 0, len(s.docs[collection]))

	for _, doc := range s.docs[collection] {
		docs = append(docs, doc)
	}
	s.mu.RUnlock()

	return ApplyQuery(docs, query), nil
}

func (s *MemoryStore) Close() error {
	return nil
}
