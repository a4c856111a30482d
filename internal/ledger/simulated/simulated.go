// Package simulated is an in-memory ledger-report service. It interprets
// mint, bridge and createBasket payloads well enough to drive the workflow
// end to end without a network.
package simulated

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"

	"bskt/internal/ledger"
	id "bskt/pkg/domain"
	"bskt/pkg/platform/abi"
	"bskt/pkg/platform/keccak"
)

// Op names a gateway operation for fault injection.
type Op string

const (
	OpRead   Op = "read"
	OpAttest Op = "attest"
	OpSubmit Op = "submit"
	OpLogs   Op = "logs"
)

const (
	mintTag        = 1
	mintReportLen  = 4 * abi.WordSize
	bridgeLen      = 5 * abi.WordSize
	policyRejected = "PolicyRunRejected: recipient is blacklisted"
)

var (
	totalSupplySelector  = keccak.Selector("totalSupply()")
	createBasketSelector = keccak.Selector("createBasket(string,string,address)")
	basketCreatedTopic   = keccak.Topic("BasketCreated(address,address,address,address,string,string)")
	forwarderAddress     = id.MustParseAddress("0x00000000000000000000000000000000000f0a2d")
)

// Contracts names the deployed contracts the simulation recognises.
type Contracts struct {
	Stablecoin      id.Address
	MintingConsumer id.Address
	BridgeConsumer  id.Address
	Factory         id.Address
}

// Ledger is a goroutine-safe fake of ledger.Gateway.
type Ledger struct {
	mu        sync.Mutex
	contracts Contracts
	supply    *big.Int
	balances  map[id.Address]*big.Int
	blacklist map[id.Address]bool
	faults    map[Op]error
	receipts  map[id.TxHash][]ledger.Log
	omitEvent bool
	writes    int
	nonce     uint64
	logger    *slog.Logger
}

type Option func(*Ledger)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// WithSupply seeds the stablecoin total supply in base units.
func WithSupply(supply *big.Int) Option {
	return func(l *Ledger) {
		l.supply = new(big.Int).Set(supply)
	}
}

// WithBlacklist marks accounts the policy engine rejects.
func WithBlacklist(accounts ...id.Address) Option {
	return func(l *Ledger) {
		for _, a := range accounts {
			l.blacklist[normalize(a)] = true
		}
	}
}

// New returns an empty simulated ledger for the given contracts.
func New(contracts Contracts, opts ...Option) *Ledger {
	l := &Ledger{
		contracts: contracts,
		supply:    new(big.Int),
		balances:  make(map[id.Address]*big.Int),
		blacklist: make(map[id.Address]bool),
		faults:    make(map[Op]error),
		receipts:  make(map[id.TxHash][]ledger.Log),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SetSupply overwrites the total supply.
func (l *Ledger) SetSupply(supply *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.supply = new(big.Int).Set(supply)
}

// Supply returns a copy of the total supply.
func (l *Ledger) Supply() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.supply)
}

// BalanceOf returns a copy of an account balance.
func (l *Ledger) BalanceOf(account id.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.balances[normalize(account)]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// Blacklist adds accounts after construction.
func (l *Ledger) Blacklist(accounts ...id.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, a := range accounts {
		l.blacklist[normalize(a)] = true
	}
}

// Fail makes every call to op return err until cleared with a nil err.
func (l *Ledger) Fail(op Op, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err == nil {
		delete(l.faults, op)
		return
	}
	l.faults[op] = err
}

// OmitBasketEvent makes factory submissions succeed without emitting
// BasketCreated.
func (l *Ledger) OmitBasketEvent(omit bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.omitEvent = omit
}

// Writes counts SubmitReport calls that reached the ledger.
func (l *Ledger) Writes() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writes
}

func (l *Ledger) ReadLedgerValue(ctx context.Context, contract id.Address, calldata []byte) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.fault(ctx, OpRead); err != nil {
		return nil, err
	}
	if len(calldata) < 4 || !bytes.Equal(calldata[:4], totalSupplySelector[:]) {
		return nil, fmt.Errorf("simulated ledger: unsupported call 0x%x", calldata)
	}
	if !contract.Equal(l.contracts.Stablecoin) {
		return nil, fmt.Errorf("simulated ledger: no contract at %s", contract)
	}
	return new(big.Int).Set(l.supply), nil
}

func (l *Ledger) GenerateAttestedReport(ctx context.Context, payload []byte) (ledger.SignedReport, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.fault(ctx, OpAttest); err != nil {
		return ledger.SignedReport{}, err
	}
	digest := keccak.Sum256(payload)
	return ledger.SignedReport{
		RawReport:  append([]byte(nil), payload...),
		Context:    digest[:],
		Signatures: [][]byte{digest[:]},
	}, nil
}

func (l *Ledger) SubmitReport(ctx context.Context, consumer id.Address, report ledger.SignedReport, gasLimit uint64) (ledger.WriteResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.fault(ctx, OpSubmit); err != nil {
		return ledger.WriteResult{}, err
	}
	l.writes++
	l.nonce++
	payload := report.RawReport
	txHash := l.txHash(payload)

	switch {
	case consumer.Equal(l.contracts.MintingConsumer):
		return l.applyMint(payload, txHash), nil
	case consumer.Equal(l.contracts.BridgeConsumer):
		return l.applyBridge(payload, txHash), nil
	case consumer.Equal(l.contracts.Factory):
		return l.applyCreateBasket(payload, txHash), nil
	default:
		return ledger.WriteResult{Status: ledger.TxStatusFatal, ErrorMessage: "unknown consumer " + consumer.String()}, nil
	}
}

func (l *Ledger) ReadReceiptLogs(ctx context.Context, txHash id.TxHash) ([]ledger.Log, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.fault(ctx, OpLogs); err != nil {
		return nil, err
	}
	logs, ok := l.receipts[txHash]
	if !ok {
		return nil, fmt.Errorf("simulated ledger: receipt %s not found", txHash)
	}
	return append([]ledger.Log(nil), logs...), nil
}

func (l *Ledger) applyMint(payload []byte, txHash id.TxHash) ledger.WriteResult {
	if len(payload) != mintReportLen {
		return reverted("invalid mint report length")
	}
	tag, _ := abi.Word(payload, 0)
	if tag[abi.WordSize-1] != mintTag {
		return reverted("unknown report tag")
	}
	recipientWord, _ := abi.Word(payload, 1)
	amountWord, _ := abi.Word(payload, 2)
	recipient := id.AddressFromWord(recipientWord)
	if l.blacklist[normalize(recipient)] {
		return reverted(policyRejected)
	}
	amount := abi.BigInt(amountWord)
	l.supply.Add(l.supply, amount)
	l.credit(recipient, amount)
	l.receipts[txHash] = nil
	l.logger.Debug("simulated mint", "recipient", recipient, "amount", amount.String(), "tx_hash", txHash)
	return ledger.WriteResult{Status: ledger.TxStatusSuccess, TxHash: txHash}
}

func (l *Ledger) applyBridge(payload []byte, txHash id.TxHash) ledger.WriteResult {
	if len(payload) != bridgeLen {
		return reverted("invalid bridge report length")
	}
	senderWord, _ := abi.Word(payload, 1)
	beneficiaryWord, _ := abi.Word(payload, 2)
	amountWord, _ := abi.Word(payload, 3)
	sender := id.AddressFromWord(senderWord)
	beneficiary := id.AddressFromWord(beneficiaryWord)
	if l.blacklist[normalize(beneficiary)] || l.blacklist[normalize(sender)] {
		return reverted(policyRejected)
	}
	amount := abi.BigInt(amountWord)
	if l.balanceLocked(sender).Cmp(amount) < 0 {
		return reverted("ERC20: transfer amount exceeds balance")
	}
	l.credit(sender, new(big.Int).Neg(amount))
	l.receipts[txHash] = nil
	return ledger.WriteResult{Status: ledger.TxStatusSuccess, TxHash: txHash}
}

func (l *Ledger) applyCreateBasket(payload []byte, txHash id.TxHash) ledger.WriteResult {
	if len(payload) < 4 || !bytes.Equal(payload[:4], createBasketSelector[:]) {
		return reverted("unknown factory function")
	}
	args := payload[4:]
	name, err := abi.DecodeString(args, 0)
	if err != nil {
		return reverted("invalid createBasket arguments")
	}
	symbol, err := abi.DecodeString(args, 1)
	if err != nil {
		return reverted("invalid createBasket arguments")
	}
	adminWord, err := abi.Word(args, 2)
	if err != nil {
		return reverted("invalid createBasket arguments")
	}
	if l.omitEvent {
		l.receipts[txHash] = nil
		return ledger.WriteResult{Status: ledger.TxStatusSuccess, TxHash: txHash}
	}

	stablecoin := l.deriveAddress("stablecoin")
	consumer := l.deriveAddress("consumer")
	l.receipts[txHash] = []ledger.Log{{
		Address: l.contracts.Factory,
		Topics: [][32]byte{
			basketCreatedTopic,
			abi.Address(forwarderAddress),
			adminWord,
			abi.Address(stablecoin),
		},
		Data: abi.EncodeTuple(
			abi.StaticArg(abi.Address(consumer)),
			abi.StringArg(name),
			abi.StringArg(symbol),
		),
	}}
	return ledger.WriteResult{Status: ledger.TxStatusSuccess, TxHash: txHash}
}

func (l *Ledger) fault(ctx context.Context, op Op) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return l.faults[op]
}

func (l *Ledger) credit(account id.Address, delta *big.Int) {
	key := normalize(account)
	b, ok := l.balances[key]
	if !ok {
		b = new(big.Int)
		l.balances[key] = b
	}
	b.Add(b, delta)
}

func (l *Ledger) balanceLocked(account id.Address) *big.Int {
	if b, ok := l.balances[normalize(account)]; ok {
		return b
	}
	return new(big.Int)
}

func (l *Ledger) txHash(payload []byte) id.TxHash {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], l.nonce)
	return id.TxHashFromBytes(keccak.Sum256(n[:], payload))
}

func (l *Ledger) deriveAddress(kind string) id.Address {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], l.nonce)
	f := l.contracts.Factory.Bytes()
	h := keccak.Sum256(f[:], n[:], []byte(kind))
	var b [20]byte
	copy(b[:], h[12:])
	return id.AddressFromBytes(b)
}

func reverted(msg string) ledger.WriteResult {
	return ledger.WriteResult{Status: ledger.TxStatusReverted, ErrorMessage: msg}
}

func normalize(a id.Address) id.Address {
	return id.Address(strings.ToLower(string(a)))
}
