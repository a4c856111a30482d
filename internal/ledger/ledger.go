// Package ledger defines the port to the ledger-report service: supply
// reads, report attestation, report submission and receipt log reads.
//
// Adapters live in subpackages: httpclient talks to a deployed service,
// simulated keeps an in-memory ledger for development and tests.
package ledger

//go:generate mockgen -source=ledger.go -destination=mocks/mocks.go -package=mocks Gateway

import (
	"context"
	"math/big"

	id "bskt/pkg/domain"
)

// Gateway is the black-box ledger-report service.
type Gateway interface {
	// ReadLedgerValue performs a read-only call and decodes the first return
	// word as an unsigned integer.
	ReadLedgerValue(ctx context.Context, contract id.Address, calldata []byte) (*big.Int, error)
	// GenerateAttestedReport wraps a canonical payload in a signed report.
	GenerateAttestedReport(ctx context.Context, payload []byte) (SignedReport, error)
	// SubmitReport delivers a report to a consumer contract for execution.
	SubmitReport(ctx context.Context, consumer id.Address, report SignedReport, gasLimit uint64) (WriteResult, error)
	// ReadReceiptLogs returns the logs emitted by a confirmed transaction.
	ReadReceiptLogs(ctx context.Context, txHash id.TxHash) ([]Log, error)
}
