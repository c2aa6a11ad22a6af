// Package inmem provides an in-memory execution store for development and
// testing. Documents are kept in a mutex-guarded map; there is no durability
// across process restarts.
package inmem

import (
	"context"
	"errors"
	"sync"

	"github.com/autoflowhq/autoflow/runtime/execution"
)

// Store implements execution.Store backed by process memory.
type Store struct {
	mu   sync.RWMutex
	docs map[string]execution.Document
}

// NewStore returns an empty in-memory execution store.
func NewStore() *Store {
	return &Store{docs: make(map[string]execution.Document)}
}

// Upsert stores the document, replacing any previous version.
func (s *Store) Upsert(ctx context.Context, doc execution.Document) error {
	if doc.ID == "" {
		return errors.New("execution id is required")
	}
	s.mu.Lock()
	s.docs[doc.ID] = doc
	s.mu.Unlock()
	return nil
}

// FindByID returns the document for the given execution ID.
func (s *Store) FindByID(ctx context.Context, id string) (execution.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return execution.Document{}, execution.ErrNotFound
	}
	return doc, nil
}

// ListByStatus returns all documents currently in the given status.
func (s *Store) ListByStatus(ctx context.Context, status execution.Status) ([]execution.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []execution.Document
	for _, doc := range s.docs {
		if doc.Status == status {
			out = append(out, doc)
		}
	}
	return out, nil
}
