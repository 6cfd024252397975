// Package memory provides a fully in-memory artifact store. Safe for
// concurrent access. Intended for unit testing and development.
package memory

import (
	"context"
	"sync"

	"github.com/farmer1st/farmcode"
	"github.com/farmer1st/farmcode/artifact"
)

var _ artifact.Store = (*Store)(nil)

// Store is an in-memory implementation of artifact.Store.
type Store struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// New returns a new empty Store.
func New() *Store {
	return &Store{docs: make(map[string][]byte)}
}

// Pull is a no-op for the memory store.
func (s *Store) Pull(_ context.Context) error { return nil }

// Get returns the document at path.
func (s *Store) Get(_ context.Context, path string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.docs[path]
	if !ok {
		return nil, farmcode.ErrArtifactNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

// Put replaces the document at path.
func (s *Store) Put(_ context.Context, path string, data []byte, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make([]byte, len(data))
	copy(cp, data)
	s.docs[path] = cp
	return nil
}

// Delete removes a document. Test helper; the coordinator never deletes
// journal documents.
func (s *Store) Delete(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, path)
}
