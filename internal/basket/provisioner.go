// Package basket provisions new asset/consumer pairs through the factory
// contract and keeps the registry of provisioned baskets.
package basket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"bskt/internal/instruction"
	"bskt/internal/ledger"
	"bskt/internal/report"
	id "bskt/pkg/domain"
	dErrors "bskt/pkg/domain-errors"
	"bskt/pkg/platform/abi"
	"bskt/pkg/platform/keccak"
	"bskt/pkg/platform/sentinel"
	"bskt/pkg/requestcontext"
)

var (
	// ErrCreationUnconfirmed means the factory call succeeded but its
	// receipt carries no matching BasketCreated event.
	ErrCreationUnconfirmed = errors.New("basket creation unconfirmed")
	// ErrRegistry means the basket exists on the ledger but could not be
	// recorded.
	ErrRegistry = errors.New("basket registry failure")
	// ErrSymbolTaken means the symbol is already registered.
	ErrSymbolTaken = errors.New("basket symbol already registered")
)

// BasketCreated(address indexed creator, address indexed admin,
// address indexed stablecoin, address mintingConsumer, string name, string symbol)
var basketCreatedTopic = keccak.Topic("BasketCreated(address,address,address,address,string,string)")

// Registry stores provisioned baskets.
type Registry interface {
	Save(ctx context.Context, rec *Record) error
	List(ctx context.Context) ([]*Record, error)
	FindBySymbol(ctx context.Context, symbol string) (*Record, error)
}

// Submitter is the report submission primitive.
type Submitter interface {
	Submit(ctx context.Context, req report.Request) (report.Outcome, error)
}

// LogReader reads receipt logs of a confirmed transaction.
type LogReader interface {
	ReadReceiptLogs(ctx context.Context, txHash id.TxHash) ([]ledger.Log, error)
}

// Provision is the outcome of one provisioning attempt. Record is set only
// when the factory submission succeeded and the event was decoded.
type Provision struct {
	Outcome report.Outcome
	Record  *Record
}

// Provisioner runs CREATE_BASKET instructions.
type Provisioner struct {
	submitter Submitter
	logs      LogReader
	registry  Registry
	factory   id.Address
	gasLimit  uint64
	logger    *slog.Logger
}

type Option func(*Provisioner)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Provisioner) {
		p.logger = logger
	}
}

func NewProvisioner(submitter Submitter, logs LogReader, registry Registry, factory id.Address, gasLimit uint64, opts ...Option) (*Provisioner, error) {
	if submitter == nil || logs == nil || registry == nil {
		return nil, fmt.Errorf("submitter, log reader and registry are required")
	}
	if factory.IsNil() {
		return nil, fmt.Errorf("basket factory address is required")
	}
	p := &Provisioner{
		submitter: submitter,
		logs:      logs,
		registry:  registry,
		factory:   factory,
		gasLimit:  gasLimit,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Provision submits createBasket calldata to the factory, confirms the
// BasketCreated event and records the basket.
//
// A non-success outcome is returned without error. Errors are transport
// faults (report.ErrInfrastructure), ErrSymbolTaken, ErrCreationUnconfirmed,
// or ErrRegistry with the decoded record attached.
func (p *Provisioner) Provision(ctx context.Context, ins *instruction.CreateBasketInstruction) (Provision, error) {
	existing, err := p.registry.FindBySymbol(ctx, ins.Symbol)
	switch {
	case err == nil && existing != nil:
		msg := fmt.Sprintf("basket symbol %s is already registered", ins.Symbol)
		return Provision{}, dErrors.Wrap(fmt.Errorf("%w: %s", ErrSymbolTaken, ins.Symbol), dErrors.CodeConflict, msg)
	case err != nil && !errors.Is(err, sentinel.ErrNotFound):
		return Provision{}, report.Infrastructure(err, "basket registry lookup failed")
	}

	outcome, err := p.submitter.Submit(ctx, report.Request{
		Payload:  report.EncodeCreateBasket(ins.Name, ins.Symbol, ins.Admin),
		Consumer: p.factory,
		GasLimit: p.gasLimit,
		Role:     "factory",
	})
	if err != nil {
		return Provision{}, err
	}
	if outcome.Status != report.StatusSuccess {
		return Provision{Outcome: outcome}, nil
	}

	logs, err := p.logs.ReadReceiptLogs(ctx, outcome.TransactionHash)
	if err != nil {
		return Provision{Outcome: outcome}, report.Infrastructure(err, "receipt log read failed")
	}

	rec, ok := p.decodeCreated(logs, ins)
	if !ok {
		p.logger.WarnContext(ctx, "basket created without confirming event",
			"transaction_id", ins.TransactionID,
			"tx_hash", outcome.TransactionHash,
			"logs", len(logs),
		)
		msg := "factory transaction " + outcome.TransactionHash.String() + " emitted no BasketCreated event"
		return Provision{Outcome: outcome}, dErrors.Wrap(
			fmt.Errorf("%w: %s", ErrCreationUnconfirmed, outcome.TransactionHash),
			dErrors.CodeInvariantViolation, msg)
	}
	rec.CreationTxHash = outcome.TransactionHash
	rec.TransactionID = ins.TransactionID
	rec.CreatedAt = requestcontext.Now(ctx)

	if err := p.registry.Save(ctx, rec); err != nil {
		return Provision{Outcome: outcome, Record: rec}, dErrors.Wrap(
			fmt.Errorf("%w: %w", ErrRegistry, err), dErrors.CodeUnavailable, "basket created but not recorded")
	}

	p.logger.InfoContext(ctx, "basket provisioned",
		"transaction_id", ins.TransactionID,
		"symbol", rec.Symbol,
		"stablecoin", rec.AssetContract,
		"minting_consumer", rec.EnforcementConsumer,
	)
	return Provision{Outcome: outcome, Record: rec}, nil
}

// decodeCreated finds the factory's BasketCreated event for this
// instruction. Events from other contracts, or for another admin or
// symbol, are ignored.
func (p *Provisioner) decodeCreated(logs []ledger.Log, ins *instruction.CreateBasketInstruction) (*Record, bool) {
	for _, l := range logs {
		if !l.Address.Equal(p.factory) || len(l.Topics) != 4 || l.Topics[0] != basketCreatedTopic {
			continue
		}
		admin := id.AddressFromWord(l.Topics[2])
		stablecoin := id.AddressFromWord(l.Topics[3])
		consumerWord, err := abi.Word(l.Data, 0)
		if err != nil {
			continue
		}
		name, err := abi.DecodeString(l.Data, 1)
		if err != nil {
			continue
		}
		symbol, err := abi.DecodeString(l.Data, 2)
		if err != nil {
			continue
		}
		if !admin.Equal(ins.Admin) || !strings.EqualFold(symbol, ins.Symbol) {
			continue
		}
		consumer := id.AddressFromWord(consumerWord)
		if stablecoin == id.ZeroAddress || consumer == id.ZeroAddress {
			continue
		}
		return &Record{
			Name:                name,
			Symbol:              symbol,
			AssetContract:       stablecoin,
			EnforcementConsumer: consumer,
			Admin:               admin,
		}, true
	}
	return nil, false
}
