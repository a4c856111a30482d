// Package reserve turns independent reserve readings into one trusted value.
//
// Sources are read concurrently with a bounded fan-out. Readings that fail,
// time out, or are negative are discarded; the survivors are reduced with
// the median so that up to floor((n-1)/2) faulty sources cannot move the
// result outside the range of honest readings.
package reserve

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrReserveUnavailable means fewer valid readings than the quorum arrived.
var ErrReserveUnavailable = errors.New("reserve unavailable")

// Attestation is one reserve reading, or the aggregate of several.
type Attestation struct {
	Value      decimal.Decimal
	Currency   string
	ObservedAt time.Time
	Source     string
}

// Source produces one independent reserve reading.
type Source interface {
	ID() string
	Read(ctx context.Context) (Attestation, error)
}
