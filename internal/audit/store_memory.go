package audit

import (
	"context"
	"sync"

	id "bskt/pkg/domain"
)

// InMemoryStore keeps events in process. Used by the CLI and tests.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []Event
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *InMemoryStore) ListByTransaction(_ context.Context, txID id.TransactionID) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, e := range s.events {
		if e.TransactionID == txID {
			out = append(out, e)
		}
	}
	return out, nil
}

// All returns every event in append order.
func (s *InMemoryStore) All() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event(nil), s.events...)
}
