// Package reconcile tracks runs that left the ledger in an intermediate
// state: a mint that committed before its bridge failed, or a basket that
// was created but could not be recorded. No rollback is attempted; an
// operator resolves each entry by hand.
package reconcile

import (
	"context"
	"time"

	id "bskt/pkg/domain"
)

// Kind names what needs reconciling.
type Kind string

const (
	// KindBridgeIncomplete: minted to the bridge consumer, bridge did not complete.
	KindBridgeIncomplete  Kind = "bridge_incomplete"
	// KindBasketUnrecorded: basket created on the ledger, registry save failed.
	KindBasketUnrecorded  Kind = "basket_unrecorded"
	// KindBasketUnconfirmed: factory call succeeded without a BasketCreated event.
	KindBasketUnconfirmed Kind = "basket_unconfirmed"
)

// Entry is one outstanding compensating action, keyed by transaction id.
type Entry struct {
	TransactionID    id.TransactionID `json:"transactionId"`
	Kind             Kind             `json:"kind"`
	Stage            string           `json:"stage"`
	Detail           string           `json:"detail"`
	MintTx           id.TxHash        `json:"mintTx,omitempty"`
	CreationTx       id.TxHash        `json:"creationTx,omitempty"`
	Amount           string           `json:"amount,omitempty"`
	Holder           id.Address       `json:"holder,omitempty"`
	DestinationChain string           `json:"destinationChain,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
	ResolvedAt       *time.Time       `json:"resolvedAt,omitempty"`
	Resolution       string           `json:"resolution,omitempty"`
}

// Resolved reports whether an operator closed the entry.
func (e *Entry) Resolved() bool {
	return e.ResolvedAt != nil
}

// Store persists entries. Record fails with sentinel.ErrConflict when the
// transaction id already has an entry; Resolve fails with
// sentinel.ErrNotFound for unknown ids and sentinel.ErrConflict for entries
// already resolved.
type Store interface {
	Record(ctx context.Context, entry *Entry) error
	List(ctx context.Context, includeResolved bool) ([]*Entry, error)
	Resolve(ctx context.Context, txID id.TransactionID, resolution string, at time.Time) (*Entry, error)
}
