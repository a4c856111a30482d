package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"bskt/internal/basket"
	"bskt/pkg/platform/sentinel"
)

// InMemoryRegistry keeps baskets in insertion order.
type InMemoryRegistry struct {
	mu       sync.RWMutex
	records  []*basket.Record
	bySymbol map[string]*basket.Record
}

func NewInMemory() *InMemoryRegistry {
	return &InMemoryRegistry{bySymbol: make(map[string]*basket.Record)}
}

func (r *InMemoryRegistry) Save(_ context.Context, rec *basket.Record) error {
	if rec == nil {
		return fmt.Errorf("basket record is required")
	}
	key := strings.ToUpper(rec.Symbol)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bySymbol[key]; ok {
		return fmt.Errorf("symbol %s: %w", rec.Symbol, sentinel.ErrConflict)
	}
	cp := *rec
	r.records = append(r.records, &cp)
	r.bySymbol[key] = &cp
	return nil
}

func (r *InMemoryRegistry) List(_ context.Context) ([]*basket.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*basket.Record, 0, len(r.records))
	for _, rec := range r.records {
		cp := *rec
		out = append(out, &cp)
	}
	return slices.Clip(out), nil
}

func (r *InMemoryRegistry) FindBySymbol(_ context.Context, symbol string) (*basket.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.bySymbol[strings.ToUpper(symbol)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}
