// Package inmem provides an in-memory workflow store for development and
// testing.
package inmem

import (
	"context"
	"errors"
	"sync"

	"github.com/autoflowhq/autoflow/runtime/workflow"
)

// Store implements workflow.Store backed by process memory.
type Store struct {
	mu        sync.RWMutex
	workflows map[string]*workflow.Workflow
}

// NewStore returns an empty in-memory workflow store.
func NewStore() *Store {
	return &Store{workflows: make(map[string]*workflow.Workflow)}
}

// Put registers a workflow definition. Used by tests and demo wiring; the
// engine itself only reads through FindByID.
func (s *Store) Put(wf *workflow.Workflow) error {
	if wf == nil || wf.ID == "" {
		return errors.New("workflow with id is required")
	}
	s.mu.Lock()
	s.workflows[wf.ID] = wf
	s.mu.Unlock()
	return nil
}

// FindByID returns the workflow with the given ID or workflow.ErrNotFound.
func (s *Store) FindByID(ctx context.Context, id string) (*workflow.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.workflows[id]
	if !ok {
		return nil, workflow.ErrNotFound
	}
	return wf, nil
}
