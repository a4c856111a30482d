package ledger

import (
	id "bskt/pkg/domain"
)

// TxStatus is the ledger-reported execution status of a submitted report.
type TxStatus int

const (
	TxStatusFatal TxStatus = iota
	TxStatusReverted
	TxStatusSuccess
)

func (s TxStatus) String() string {
	switch s {
	case TxStatusSuccess:
		return "SUCCESS"
	case TxStatusReverted:
		return "REVERTED"
	default:
		return "FATAL"
	}
}

// SignedReport is an attested wrapper around one canonical payload. It is
// produced for exactly one ledger write and never reused.
type SignedReport struct {
	RawReport  []byte   `json:"rawReport"`
	Context    []byte   `json:"context"`
	Signatures [][]byte `json:"signatures"`
}

// IsZero reports whether the report carries no payload.
func (r SignedReport) IsZero() bool {
	return len(r.RawReport) == 0
}

// WriteResult is what the ledger-report service says happened to a submission.
type WriteResult struct {
	Status       TxStatus  `json:"txStatus"`
	TxHash       id.TxHash `json:"txHash,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
}

// Log is one receipt log entry.
type Log struct {
	Address id.Address `json:"address"`
	Topics  [][32]byte `json:"topics"`
	Data    []byte     `json:"data"`
}
