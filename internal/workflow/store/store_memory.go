package store

import (
	"context"
	"sync"

	"bskt/internal/workflow"
	id "bskt/pkg/domain"
	"bskt/pkg/platform/sentinel"
)

type claim struct {
	result *workflow.Result
}

// InMemoryStore is a process-local idempotency store.
type InMemoryStore struct {
	mu     sync.Mutex
	claims map[id.TransactionID]*claim
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{claims: make(map[id.TransactionID]*claim)}
}

func (s *InMemoryStore) Claim(_ context.Context, txID id.TransactionID) (*workflow.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.claims[txID]
	if !ok {
		s.claims[txID] = &claim{}
		return nil, nil
	}
	if c.result == nil {
		return nil, sentinel.ErrAlreadyClaimed
	}
	cp := *c.result
	return &cp, nil
}

func (s *InMemoryStore) Complete(_ context.Context, txID id.TransactionID, res *workflow.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *res
	s.claims[txID] = &claim{result: &cp}
	return nil
}

// Release drops a pending claim. Completed results are kept.
func (s *InMemoryStore) Release(_ context.Context, txID id.TransactionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.claims[txID]; ok && c.result == nil {
		delete(s.claims, txID)
	}
	return nil
}
