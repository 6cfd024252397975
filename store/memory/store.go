// Package memory provides a fully in-memory pointer store. Safe for
// concurrent access. Intended for unit testing and development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/farmer1st/farmcode"
	"github.com/farmer1st/farmcode/id"
	"github.com/farmer1st/farmcode/pointer"
)

// Ensure Store implements pointer.Store at compile time.
var _ pointer.Store = (*Store)(nil)

// Store is an in-memory pointer.Store.
type Store struct {
	mu       sync.RWMutex
	pointers map[string]*pointer.Pointer
}

// New returns a new empty Store.
func New() *Store {
	return &Store{pointers: make(map[string]*pointer.Pointer)}
}

// CreatePointer persists a new pointer.
func (m *Store) CreatePointer(_ context.Context, p *pointer.Pointer) error {
	if err := p.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := p.ID.String()
	if _, exists := m.pointers[key]; exists {
		return farmcode.ErrPointerExists
	}
	cp := p.Clone()
	cp.CreatedAt = time.Now().UTC()
	cp.UpdatedAt = cp.CreatedAt
	m.pointers[key] = cp

	p.CreatedAt = cp.CreatedAt
	p.UpdatedAt = cp.UpdatedAt
	return nil
}

// GetPointer retrieves a pointer by workflow ID.
func (m *Store) GetPointer(_ context.Context, workflowID id.WorkflowID) (*pointer.Pointer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.pointers[workflowID.String()]
	if !ok {
		return nil, farmcode.ErrPointerNotFound
	}
	return p.Clone(), nil
}

// UpdatePointer persists changes to an existing pointer.
func (m *Store) UpdatePointer(_ context.Context, p *pointer.Pointer) error {
	if err := p.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := p.ID.String()
	if _, ok := m.pointers[key]; !ok {
		return farmcode.ErrPointerNotFound
	}
	cp := p.Clone()
	cp.UpdatedAt = time.Now().UTC()
	m.pointers[key] = cp

	p.UpdatedAt = cp.UpdatedAt
	return nil
}

// DeletePointer removes a pointer.
func (m *Store) DeletePointer(_ context.Context, workflowID id.WorkflowID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := workflowID.String()
	if _, ok := m.pointers[key]; !ok {
		return farmcode.ErrPointerNotFound
	}
	delete(m.pointers, key)
	return nil
}

// ListPointers returns pointers matching the given filters, ordered by
// creation time.
func (m *Store) ListPointers(_ context.Context, opts pointer.ListOpts) ([]*pointer.Pointer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*pointer.Pointer, 0, len(m.pointers))
	for _, p := range m.pointers {
		if opts.State != "" && p.State != opts.State {
			continue
		}
		out = append(out, p.Clone())
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}
