package audit

import (
	"context"

	id "bskt/pkg/domain"
)

// Store persists audit events. Implementations are append-only.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Lister is implemented by stores that can be queried back.
type Lister interface {
	ListByTransaction(ctx context.Context, txID id.TransactionID) ([]Event, error)
}
