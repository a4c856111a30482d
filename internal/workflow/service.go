// Package workflow sequences one instruction through parsing, the reserve
// check, the mint and optional bridge submissions, or basket provisioning,
// and produces exactly one Result per run.
//
// Business outcomes (reserve_rejected, policy_rejected) are results, never
// errors. Infrastructure faults end the run at the failing stage. Nothing is
// retried and nothing is rolled back; a bridge failure after a committed
// mint is reported as a partial completion and recorded for reconciliation.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"bskt/internal/audit"
	"bskt/internal/basket"
	"bskt/internal/collateral"
	"bskt/internal/instruction"
	"bskt/internal/platform/config"
	"bskt/internal/reconcile"
	"bskt/internal/report"
	"bskt/internal/reserve"
	"bskt/internal/workflow/metrics"
	id "bskt/pkg/domain"
	dErrors "bskt/pkg/domain-errors"
	"bskt/pkg/platform/keccak"
	"bskt/pkg/platform/sentinel"
	"bskt/pkg/requestcontext"
)

var totalSupplySelector = keccak.Selector("totalSupply()")

// ReserveAggregator produces one trusted reserve reading per call.
type ReserveAggregator interface {
	Aggregate(ctx context.Context) (reserve.Attestation, error)
}

// SupplyReader reads integer values from ledger contracts.
type SupplyReader interface {
	ReadLedgerValue(ctx context.Context, contract id.Address, calldata []byte) (*big.Int, error)
}

// Submitter attests and submits one report.
type Submitter interface {
	Submit(ctx context.Context, req report.Request) (report.Outcome, error)
}

// Provisioner runs CREATE_BASKET instructions.
type Provisioner interface {
	Provision(ctx context.Context, ins *instruction.CreateBasketInstruction) (basket.Provision, error)
}

// Idempotency deduplicates runs by transaction id, first writer wins.
//
// Claim returns (nil, nil) when the caller now owns txID, the stored result
// when txID completed earlier, or sentinel.ErrAlreadyClaimed while another
// run holds it. Release drops a claim whose run made no ledger write.
type Idempotency interface {
	Claim(ctx context.Context, txID id.TransactionID) (*Result, error)
	Complete(ctx context.Context, txID id.TransactionID, res *Result) error
	Release(ctx context.Context, txID id.TransactionID) error
}

// Service runs instructions.
type Service struct {
	cfg         config.Workflow
	reserves    ReserveAggregator
	supply      SupplyReader
	submitter   Submitter
	provisioner Provisioner

	idempotency Idempotency
	reconcile   reconcile.Store
	audit       *audit.Publisher
	metrics     *metrics.Metrics
	logger      *slog.Logger
	tracer      trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithIdempotency(store Idempotency) Option {
	return func(s *Service) {
		s.idempotency = store
	}
}

func WithReconciliation(store reconcile.Store) Option {
	return func(s *Service) {
		s.reconcile = store
	}
}

func WithAudit(p *audit.Publisher) Option {
	return func(s *Service) {
		s.audit = p
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// WithProvisioner enables CREATE_BASKET instructions.
func WithProvisioner(p Provisioner) Option {
	return func(s *Service) {
		s.provisioner = p
	}
}

// NewService validates cfg and wires the MINT path collaborators.
func NewService(cfg config.Workflow, reserves ReserveAggregator, supply SupplyReader, submitter Submitter, opts ...Option) (*Service, error) {
	if reserves == nil || supply == nil || submitter == nil {
		return nil, fmt.Errorf("reserve aggregator, supply reader and submitter are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("workflow config: %w", err)
	}
	s := &Service{
		cfg:       cfg,
		reserves:  reserves,
		supply:    supply,
		submitter: submitter,
		logger:    slog.Default(),
		tracer:    otel.Tracer("bskt/internal/workflow"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Process parses raw and runs the instruction. A parse failure ends the
// run as malformed_instruction without any external call.
func (s *Service) Process(ctx context.Context, raw []byte) *Result {
	ins, err := instruction.Parse(raw)
	if err != nil {
		start := time.Now()
		res := failure(KindMalformedInstruction, StageParse, dErrors.Message(err))
		s.logger.WarnContext(ctx, "instruction rejected",
			append(requestcontext.LogAttrs(ctx), "error", err)...,
		)
		s.finish(ctx, nil, res, start)
		return res
	}
	return s.RunWorkflow(ctx, ins)
}

// RunWorkflow runs a parsed instruction to its terminal result.
func (s *Service) RunWorkflow(ctx context.Context, ins instruction.Instruction) *Result {
	start := time.Now()
	txID := ins.ID()
	ctx = requestcontext.WithTransactionID(ctx, txID)
	ctx, span := s.tracer.Start(ctx, "workflow.run", trace.WithAttributes(
		attribute.String("transaction_id", txID.String()),
		attribute.String("instruction", string(ins.Kind())),
	))
	defer span.End()

	res, done := s.claim(ctx, txID)
	// A claimed run ignores caller cancellation so a committed mint always
	// reaches settle. runStep still bounds every external call.
	ctx = context.WithoutCancel(ctx)
	if done {
		res.TransactionID = txID
		res.Instruction = ins.Kind()
		s.finish(ctx, span, res, start)
		return res
	}

	switch ins := ins.(type) {
	case *instruction.MintInstruction:
		res = s.runMint(ctx, ins)
	case *instruction.CreateBasketInstruction:
		res = s.runBasket(ctx, ins)
	default:
		res = failure(KindMalformedInstruction, StageParse, fmt.Sprintf("unsupported instruction %T", ins))
	}
	res.TransactionID = txID
	res.Instruction = ins.Kind()

	s.settle(ctx, txID, res)
	s.finish(ctx, span, res, start)
	return res
}

func (s *Service) runMint(ctx context.Context, ins *instruction.MintInstruction) *Result {
	requested, err := collateral.RequestedBaseUnits(ins.Amount, s.cfg.Decimals)
	if err != nil {
		return failure(KindMalformedInstruction, StageParse, dErrors.Message(err))
	}
	var selector uint64
	if ins.Bridges() {
		sel, ok := s.cfg.SelectorFor(ins.CrossChain.DestinationChain)
		if !ok {
			return failure(KindMalformedInstruction, StageParse,
				fmt.Sprintf("unknown destination chain %q", ins.CrossChain.DestinationChain))
		}
		if s.cfg.Issuing.BridgeConsumerAddress.IsNil() {
			return failure(KindMalformedInstruction, StageParse, "cross-chain transfers are not configured")
		}
		selector = sel
	}

	s.transition(ctx, "CHECKING_RESERVES")
	checked := s.checkReserves(ctx, ins.TransactionID, requested)
	if !checked.Succeeded() {
		return checked
	}
	summary := checked.Collateral

	recipient := ins.Beneficiary.Account
	if ins.Bridges() {
		recipient = s.cfg.Issuing.BridgeConsumerAddress
	}
	payload, err := report.EncodeMint(report.Mint{
		Recipient:     recipient,
		Amount:        requested,
		BankReference: ins.BankReference,
	})
	if err != nil {
		return failure(KindMalformedInstruction, StageMint, err.Error())
	}

	s.transition(ctx, "MINTING")
	outcome, err := s.submit(ctx, StageMint, report.Request{
		Payload:  payload,
		Consumer: s.cfg.Issuing.MintingConsumerAddress,
		GasLimit: s.cfg.Gas.Mint,
		Role:     string(StageMint),
	})
	if res := outcomeFailure(StageMint, outcome, err); res != nil {
		res.Collateral = summary
		return res
	}

	res := &Result{Kind: KindSuccess, MintTx: outcome.TransactionHash, Collateral: summary}
	if !ins.Bridges() {
		return res
	}

	payload, err = report.EncodeBridge(report.BridgeTransfer{
		DestinationSelector: selector,
		Sender:              recipient,
		Beneficiary:         ins.CrossChain.Beneficiary,
		Amount:              requested,
		BankReference:       ins.BankReference,
	})
	if err == nil {
		s.transition(ctx, "BRIDGING")
		outcome, err = s.submit(ctx, StageBridge, report.Request{
			Payload:  payload,
			Consumer: s.cfg.Issuing.BridgeConsumerAddress,
			GasLimit: s.cfg.Gas.Bridge,
			Role:     string(StageBridge),
		})
	}
	if failed := outcomeFailure(StageBridge, outcome, err); failed != nil {
		failed.MintTx = res.MintTx
		failed.Collateral = summary
		failed.PartialCompletion = true
		s.recordPartial(ctx, &reconcile.Entry{
			TransactionID:    ins.TransactionID,
			Kind:             reconcile.KindBridgeIncomplete,
			Stage:            string(StageBridge),
			Detail:           failed.Detail,
			MintTx:           res.MintTx,
			Amount:           ins.Amount.String(),
			Holder:           recipient,
			DestinationChain: ins.CrossChain.DestinationChain,
		})
		return failed
	}
	res.BridgeTx = outcome.TransactionHash
	return res
}

func (s *Service) runBasket(ctx context.Context, ins *instruction.CreateBasketInstruction) *Result {
	if s.provisioner == nil {
		return failure(KindInfrastructureFailure, StageProvision, "basket factory is not configured")
	}

	s.transition(ctx, "PROVISIONING")
	prov, err := runStep(ctx, s, StageProvision, func(ctx context.Context) (basket.Provision, error) {
		return s.provisioner.Provision(ctx, ins)
	})
	switch {
	case errors.Is(err, basket.ErrSymbolTaken):
		return failure(KindMalformedInstruction, StageProvision, dErrors.Message(err))
	case errors.Is(err, basket.ErrCreationUnconfirmed):
		res := failure(KindCreationUnconfirmed, StageProvision, dErrors.Message(err))
		res.PartialCompletion = true
		s.recordPartial(ctx, &reconcile.Entry{
			TransactionID: ins.TransactionID,
			Kind:          reconcile.KindBasketUnconfirmed,
			Stage:         string(StageProvision),
			Detail:        res.Detail,
			CreationTx:    prov.Outcome.TransactionHash,
		})
		return res
	case errors.Is(err, basket.ErrRegistry):
		res := failure(KindInfrastructureFailure, StageProvision, err.Error())
		res.Basket = prov.Record
		res.PartialCompletion = true
		s.recordPartial(ctx, &reconcile.Entry{
			TransactionID: ins.TransactionID,
			Kind:          reconcile.KindBasketUnrecorded,
			Stage:         string(StageProvision),
			Detail:        err.Error(),
			CreationTx:    prov.Outcome.TransactionHash,
			Holder:        prov.Record.AssetContract,
		})
		return res
	case err != nil:
		return failure(KindInfrastructureFailure, StageProvision, err.Error())
	}
	if res := outcomeFailure(StageProvision, prov.Outcome, nil); res != nil {
		return res
	}
	return &Result{Kind: KindSuccess, Basket: prov.Record}
}

// outcomeFailure maps a submission to a terminal failure, or nil on success.
func outcomeFailure(stage Stage, outcome report.Outcome, err error) *Result {
	if err != nil {
		return failure(KindInfrastructureFailure, stage, err.Error())
	}
	switch outcome.Status {
	case report.StatusSuccess:
		return nil
	case report.StatusPolicyRejected:
		return failure(KindPolicyRejected, stage, outcome.ErrorDetail)
	default:
		return failure(KindInfrastructureFailure, stage, outcome.ErrorDetail)
	}
}

func (s *Service) submit(ctx context.Context, stage Stage, req report.Request) (report.Outcome, error) {
	return runStep(ctx, s, stage, func(ctx context.Context) (report.Outcome, error) {
		return s.submitter.Submit(ctx, req)
	})
}

// runStep bounds fn by the configured step timeout and traces it.
func runStep[T any](ctx context.Context, s *Service, stage Stage, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StepTimeout)
	defer cancel()
	ctx, span := s.tracer.Start(ctx, "workflow."+string(stage))
	defer span.End()

	start := time.Now()
	v, err := fn(ctx)
	s.metrics.ObserveStep(string(stage), time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, dErrors.Message(err))
	}
	return v, err
}

// VerifyReserves runs only the reserve and collateral checks for amount.
// Nothing is claimed, written or audited.
func (s *Service) VerifyReserves(ctx context.Context, amount decimal.Decimal) *Result {
	requested, err := collateral.RequestedBaseUnits(amount, s.cfg.Decimals)
	if err != nil {
		return failure(KindMalformedInstruction, StageParse, dErrors.Message(err))
	}
	return s.checkReserves(ctx, "", requested)
}

// checkReserves aggregates reserves, reads supply and applies the
// collateral rule. A successful result carries the collateral summary.
func (s *Service) checkReserves(ctx context.Context, txID id.TransactionID, requested *big.Int) *Result {
	att, err := runStep(ctx, s, StageReserves, s.reserves.Aggregate)
	if err != nil {
		if errors.Is(err, reserve.ErrReserveUnavailable) {
			return failure(KindReserveUnavailable, StageReserves, dErrors.Message(err))
		}
		return failure(KindInfrastructureFailure, StageReserves, err.Error())
	}
	supply, err := runStep(ctx, s, StageReserves, func(ctx context.Context) (*big.Int, error) {
		v, err := s.supply.ReadLedgerValue(ctx, s.cfg.Issuing.StablecoinAddress, totalSupplySelector[:])
		if err != nil {
			return nil, report.Infrastructure(err, "current supply read failed")
		}
		return v, nil
	})
	if err != nil {
		return failure(KindInfrastructureFailure, StageReserves, err.Error())
	}

	decision := collateral.Check(att.Value, supply, requested, s.cfg.Decimals)
	summary := s.summarize(decision, att)
	if !decision.Approved {
		s.logger.InfoContext(ctx, "mint rejected by reserve check",
			"transaction_id", txID,
			"trusted_reserve", summary.TrustedReserve,
			"projected_supply", summary.ProjectedSupply,
		)
		res := failure(KindReserveRejected, StageReserves, "insufficient reserves for requested issuance")
		res.Deficit = decision.DeficitUnits().String()
		res.Collateral = summary
		return res
	}
	return &Result{Kind: KindSuccess, Stage: StageReserves, Collateral: summary}
}

func (s *Service) summarize(d collateral.Decision, att reserve.Attestation) *Collateral {
	return &Collateral{
		TrustedReserve:  collateral.FromBaseUnits(d.TrustedReserve, d.Decimals).String(),
		CurrentSupply:   collateral.FromBaseUnits(d.CurrentSupply, d.Decimals).String(),
		RequestedAmount: collateral.FromBaseUnits(d.RequestedAmount, d.Decimals).String(),
		ProjectedSupply: collateral.FromBaseUnits(d.ProjectedSupply(), d.Decimals).String(),
		ReserveSource:   att.Source,
	}
}

// claim consults the idempotency store. done means res is terminal and
// the run must not proceed.
func (s *Service) claim(ctx context.Context, txID id.TransactionID) (res *Result, done bool) {
	if s.idempotency == nil {
		return nil, false
	}
	prev, err := s.idempotency.Claim(ctx, txID)
	switch {
	case errors.Is(err, sentinel.ErrAlreadyClaimed):
		return failure(KindDuplicateInFlight, StageClaim, "a run for this transaction id is already in progress"), true
	case err != nil:
		s.logger.ErrorContext(ctx, "idempotency claim failed",
			"transaction_id", txID,
			"error", err,
		)
		return failure(KindInfrastructureFailure, StageClaim, err.Error()), true
	case prev != nil:
		replay := *prev
		replay.Replayed = true
		s.metrics.IncrementReplay()
		return &replay, true
	}
	return nil, false
}

// settle completes or releases the claim taken for txID.
func (s *Service) settle(ctx context.Context, txID id.TransactionID, res *Result) {
	if s.idempotency == nil {
		return
	}
	var err error
	if res.releasable() {
		err = s.idempotency.Release(ctx, txID)
	} else {
		err = s.idempotency.Complete(ctx, txID, res)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "idempotency settle failed",
			"transaction_id", txID,
			"kind", res.Kind,
			"error", err,
		)
	}
}

func (s *Service) recordPartial(ctx context.Context, entry *reconcile.Entry) {
	s.logger.WarnContext(ctx, "partial completion recorded for reconciliation",
		"transaction_id", entry.TransactionID,
		"kind", entry.Kind,
		"mint_tx", entry.MintTx,
		"creation_tx", entry.CreationTx,
	)
	if s.reconcile == nil {
		return
	}
	entry.CreatedAt = requestcontext.Now(ctx)
	if err := s.reconcile.Record(ctx, entry); err != nil {
		s.logger.ErrorContext(ctx, "failed to record reconciliation entry",
			"transaction_id", entry.TransactionID,
			"error", err,
		)
	}
}

func (s *Service) transition(ctx context.Context, state string) {
	s.logger.InfoContext(ctx, "workflow transition",
		"transaction_id", requestcontext.TransactionID(ctx),
		"state", state,
	)
}

// finish logs, meters and audits the terminal result.
func (s *Service) finish(ctx context.Context, span trace.Span, res *Result, start time.Time) {
	elapsed := time.Since(start)
	if span != nil {
		span.SetAttributes(
			attribute.String("result.kind", string(res.Kind)),
			attribute.String("result.stage", string(res.Stage)),
			attribute.Bool("result.partial", res.PartialCompletion),
		)
		if !res.Succeeded() {
			span.SetStatus(codes.Error, string(res.Kind))
		}
	}
	s.metrics.ObserveResult(string(res.Instruction), string(res.Kind), string(res.Stage), res.PartialCompletion, elapsed)

	attrs := []any{
		"transaction_id", res.TransactionID,
		"kind", res.Kind,
		"stage", res.Stage,
		"mint_tx", res.MintTx,
		"bridge_tx", res.BridgeTx,
		"replayed", res.Replayed,
		"duration_ms", elapsed.Milliseconds(),
	}
	switch res.Kind {
	case KindSuccess, KindReserveRejected, KindPolicyRejected, KindMalformedInstruction, KindDuplicateInFlight:
		s.logger.InfoContext(ctx, "workflow done", attrs...)
	default:
		s.logger.ErrorContext(ctx, "workflow failed", append(attrs, "detail", res.Detail)...)
	}

	if res.Replayed {
		return
	}
	action := audit.ActionRejected
	switch res.Instruction {
	case instruction.KindMint:
		action = audit.ActionMint
	case instruction.KindCreateBasket:
		action = audit.ActionCreateBasket
	}
	s.audit.Emit(ctx, audit.Event{
		TransactionID: res.TransactionID,
		Action:        action,
		Outcome:       string(res.Kind),
		Stage:         string(res.Stage),
		MintTx:        res.MintTx,
		BridgeTx:      res.BridgeTx,
		Detail:        res.Detail,
	})
}
