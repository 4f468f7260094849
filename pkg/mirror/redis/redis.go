// Package redis stores mirror documents in one Redis hash per collection.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/taskflow/pkg/mirror"
	"github.com/goccy/go-json"
	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "taskflow:"

type Store struct {
	client *goredis.Client
}

// New connects using a redis:// URL and pings the server.
func New(ctx context.Context, url string) (*Store, error) {
	options, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := goredis.NewClient(options)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewWithClient(client), nil
}

func NewWithClient(client *goredis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Save(ctx context.Context, doc mirror.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document %s: %w", doc.ID, err)
	}

	return s.client.HSet(ctx, key(doc.Collection), doc.ID, data).Err()
}

func (s *Store) Get(ctx context.Context, collection, id string) (*mirror.Document, error) {
	data, err := s.client.HGet(ctx, key(collection), id).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, mirror.ErrNotFound
		}

		return nil, err
	}

	var doc mirror.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", id, err)
	}

	return &doc, nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	removed, err := s.client.HDel(ctx, key(collection), id).Result()
	if err != nil {
		return err
	}

	if removed == 0 {
		return mirror.ErrNotFound
	}

	return nil
}

func (s *Store) List(ctx context.Context, collection string, query mirror.ListQuery) ([]mirror.Document, error) {
	values, err := s.client.HGetAll(ctx, key(collection)).Result()
	if err != nil {
		return nil, err
	}

	docs := make([]mirror.Document, 0, len(values))

	for id, value := range values {
		var doc mirror.Document
		if err := json.Unmarshal([]byte(value), &doc); err != nil {
			return nil, fmt.Errorf("failed to decode document %s: %w", id, err)
		}

		docs = append(docs, doc)
	}

	return mirror.ApplyQuery(docs, query), nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func key(collection string) string {
	return keyPrefix + collection
}
