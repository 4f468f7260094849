// Package file stores mirror documents as JSON files, one directory per collection.
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dukex/taskflow/pkg/mirror"
	"github.com/goccy/go-json"
	"github.com/spf13/afero"
)

type Store struct {
	fs   afero.Fs
	root string
}

// New roots the store at root on fs. A "file://" prefix is accepted.
func New(fs afero.Fs, root string) (*Store, error) {
	cleanRoot := strings.Replace(root, "file://", "", 1)
	if cleanRoot == "" {
		return nil, errors.New("file mirror requires a root directory")
	}

	if err := fs.MkdirAll(cleanRoot, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create mirror root: %w", err)
	}

	return &Store{fs: fs, root: cleanRoot}, nil
}

func (s *Store) Save(_ context.Context, doc mirror.Document) error {
	dir := filepath.Join(s.root, doc.Collection)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", doc.Collection, err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal document %s: %w", doc.ID, err)
	}

	return afero.WriteFile(s.fs, s.path(doc.Collection, doc.ID), data, 0o644)
}

func (s *Store) Get(_ context.Context, collection, id string) (*mirror.Document, error) {
	data, err := afero.ReadFile(s.fs, s.path(collection, id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
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

func (s *Store) Delete(_ context.Context, collection, id string) error {
	err := s.fs.Remove(s.path(collection, id))
	if errors.Is(err, os.ErrNotExist) {
		return mirror.ErrNotFound
	}

	return err
}

func (s *Store) List(ctx context.Context, collection string, query mirror.ListQuery) ([]mirror.Document, error) {
	entries, err := afero.ReadDir(s.fs, filepath.Join(s.root, collection))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []mirror.Document{}, nil
		}

		return nil, err
	}

	docs := make([]mirror.Document, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		doc, err := s.Get(ctx, collection, strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			return nil, err
		}

		docs = append(docs, *doc)
	}

	return mirror.ApplyQuery(docs, query), nil
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) path(collection, id string) string {
	return filepath.Join(s.root, collection, filepath.Base(id)+".json")
}
