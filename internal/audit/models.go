package audit

import (
	"time"

	id "bskt/pkg/domain"
)

// Event records the outcome of one workflow run. Keep it transport-agnostic
// so stores and sinks can fan out.
type Event struct {
	ID            string           `json:"id"`
	Timestamp     time.Time        `json:"timestamp"`
	RequestID     string           `json:"requestId,omitempty"`
	TransactionID id.TransactionID `json:"transactionId,omitempty"`
	Action        string           `json:"action"`
	Outcome       string           `json:"outcome"`
	Stage         string           `json:"stage,omitempty"`
	MintTx        id.TxHash        `json:"mintTx,omitempty"`
	BridgeTx      id.TxHash        `json:"bridgeTx,omitempty"`
	Detail        string           `json:"detail,omitempty"`
}

// Actions emitted by the workflow.
const (
	ActionMint         = "mint"
	ActionCreateBasket = "create_basket"
	ActionRejected     = "instruction_rejected"
)
