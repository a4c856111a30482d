package workflow

import (
	"bskt/internal/basket"
	"bskt/internal/instruction"
	id "bskt/pkg/domain"
)

// ResultKind is the terminal outcome of one run.
type ResultKind string

const (
	KindSuccess               ResultKind = "success"
	KindMalformedInstruction  ResultKind = "malformed_instruction"
	KindReserveUnavailable    ResultKind = "reserve_unavailable"
	KindReserveRejected       ResultKind = "reserve_rejected"
	KindPolicyRejected        ResultKind = "policy_rejected"
	KindCreationUnconfirmed   ResultKind = "creation_unconfirmed"
	KindInfrastructureFailure ResultKind = "infrastructure_failure"
	KindDuplicateInFlight     ResultKind = "duplicate_in_flight"
)

// Stage names the step a result came from.
type Stage string

const (
	StageParse     Stage = "parse"
	StageClaim     Stage = "claim"
	StageReserves  Stage = "reserves"
	StageMint      Stage = "mint"
	StageBridge    Stage = "bridge"
	StageProvision Stage = "provision"
)

// Collateral summarises the reserve check in currency units.
type Collateral struct {
	TrustedReserve  string `json:"trustedReserve"`
	CurrentSupply   string `json:"currentSupply"`
	RequestedAmount string `json:"requestedAmount"`
	ProjectedSupply string `json:"projectedSupply"`
	ReserveSource   string `json:"reserveSource,omitempty"`
}

// Result is the single terminal response of a run. Callers branch on Kind
// and Stage; Detail is diagnostic text only.
type Result struct {
	Kind          ResultKind       `json:"kind"`
	TransactionID id.TransactionID `json:"transactionId,omitempty"`
	Instruction   instruction.Kind `json:"instruction,omitempty"`
	Stage         Stage            `json:"stage,omitempty"`
	MintTx        id.TxHash        `json:"mintTx,omitempty"`
	BridgeTx      id.TxHash        `json:"bridgeTx,omitempty"`
	// Deficit is (supply + requested) - reserve, set on reserve_rejected.
	Deficit    string         `json:"deficit,omitempty"`
	Collateral *Collateral    `json:"collateral,omitempty"`
	Basket     *basket.Record `json:"basket,omitempty"`
	Detail     string         `json:"detail,omitempty"`
	// PartialCompletion is set when a ledger write committed before a later
	// step failed. The run is recorded for reconciliation.
	PartialCompletion bool `json:"partialCompletion,omitempty"`
	// Replayed marks a result served from the idempotency store.
	Replayed bool `json:"replayed,omitempty"`
}

// Succeeded reports whether the run reached DONE without failure.
func (r *Result) Succeeded() bool {
	return r.Kind == KindSuccess
}

// releasable reports whether the run ended before any ledger write was
// attempted, so the transaction id may be claimed again.
func (r *Result) releasable() bool {
	switch r.Kind {
	case KindMalformedInstruction, KindReserveUnavailable, KindReserveRejected:
		return true
	case KindInfrastructureFailure:
		return r.Stage == StageReserves
	default:
		return false
	}
}

func failure(kind ResultKind, stage Stage, detail string) *Result {
	return &Result{Kind: kind, Stage: stage, Detail: detail}
}
