package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bskt/internal/reconcile"
	id "bskt/pkg/domain"
	"bskt/pkg/platform/sentinel"
)

// InMemoryStore keeps reconciliation entries in process.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[id.TransactionID]*reconcile.Entry
	order   []id.TransactionID
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{entries: make(map[id.TransactionID]*reconcile.Entry)}
}

func (s *InMemoryStore) Record(_ context.Context, entry *reconcile.Entry) error {
	if entry == nil {
		return fmt.Errorf("reconciliation entry is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[entry.TransactionID]; ok {
		return fmt.Errorf("transaction %s: %w", entry.TransactionID, sentinel.ErrConflict)
	}
	cp := *entry
	s.entries[entry.TransactionID] = &cp
	s.order = append(s.order, entry.TransactionID)
	return nil
}

func (s *InMemoryStore) List(_ context.Context, includeResolved bool) ([]*reconcile.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*reconcile.Entry, 0, len(s.order))
	for _, txID := range s.order {
		e := s.entries[txID]
		if e.Resolved() && !includeResolved {
			continue
		}
		out = append(out, copyEntry(e))
	}
	return out, nil
}

func (s *InMemoryStore) Resolve(_ context.Context, txID id.TransactionID, resolution string, at time.Time) (*reconcile.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[txID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if e.Resolved() {
		return nil, fmt.Errorf("transaction %s already resolved: %w", txID, sentinel.ErrConflict)
	}
	e.ResolvedAt = &at
	e.Resolution = resolution
	return copyEntry(e), nil
}

func copyEntry(e *reconcile.Entry) *reconcile.Entry {
	cp := *e
	if e.ResolvedAt != nil {
		t := *e.ResolvedAt
		cp.ResolvedAt = &t
	}
	return &cp
}
