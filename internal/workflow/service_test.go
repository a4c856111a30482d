package workflow_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"bskt/internal/audit"
	"bskt/internal/basket"
	basketstore "bskt/internal/basket/store"
	"bskt/internal/ledger/mocks"
	"bskt/internal/ledger/simulated"
	"bskt/internal/platform/config"
	reconcilestore "bskt/internal/reconcile/store"
	"bskt/internal/report"
	"bskt/internal/reserve"
	"bskt/internal/reserve/sources"
	"bskt/internal/workflow"
	"bskt/internal/workflow/store"
	id "bskt/pkg/domain"
)

var contracts = simulated.Contracts{
	Stablecoin:      id.MustParseAddress("0x1000000000000000000000000000000000000001"),
	MintingConsumer: id.MustParseAddress("0x1000000000000000000000000000000000000002"),
	BridgeConsumer:  id.MustParseAddress("0x1000000000000000000000000000000000000003"),
	Factory:         id.MustParseAddress("0x1000000000000000000000000000000000000004"),
}

var (
	alice      = id.MustParseAddress("0x742d35cc6634c0532925a3b844bc454e4438f44e")
	remoteBob  = id.MustParseAddress("0x00000000000000000000000000000000000000bb")
	basketAdmn = id.MustParseAddress("0x00000000000000000000000000000000000000aa")
)

func units(whole int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(whole), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func mintPayload(txID, amount string) []byte {
	return []byte(`{
		"messageType": "MINT",
		"transactionId": "` + txID + `",
		"beneficiary": {"account": "0x742d35cc6634c0532925a3b844bc454e4438f44e"},
		"amount": "` + amount + `",
		"currency": "USD",
		"bankReference": "SWIFT-001"
	}`)
}

func bridgePayload(txID, amount, destination string) []byte {
	return []byte(`{
		"messageType": "MINT",
		"transactionId": "` + txID + `",
		"beneficiary": {"account": "0x742d35cc6634c0532925a3b844bc454e4438f44e"},
		"amount": "` + amount + `",
		"currency": "USD",
		"bankReference": "SWIFT-002",
		"crossChain": {"enabled": true, "destinationChain": "` + destination + `", "beneficiary": "0x00000000000000000000000000000000000000bb"}
	}`)
}

const basketPayload = `{
	"messageType": "CREATE_BASKET",
	"transactionId": "TX-B-1",
	"basketName": "Euro Basket",
	"basketSymbol": "EURB",
	"basketAdmin": "0x00000000000000000000000000000000000000aa"
}`

func testConfig() config.Workflow {
	cfg := config.DefaultWorkflow()
	cfg.Issuing = config.IssuingLedger{
		StablecoinAddress:      contracts.Stablecoin,
		MintingConsumerAddress: contracts.MintingConsumer,
		BridgeConsumerAddress:  contracts.BridgeConsumer,
		BasketFactoryAddress:   contracts.Factory,
	}
	cfg.Reserves.Sources = []config.ReserveSource{{ID: "bank", URL: "static://1000000"}}
	cfg.StepTimeout = time.Second
	return cfg
}

func staticReserves(t *testing.T, value int64) *reserve.Aggregator {
	t.Helper()
	agg, err := reserve.NewAggregator(
		[]reserve.Source{sources.NewStaticSource("bank", decimal.NewFromInt(value))},
		reserve.WithLogger(discard()),
	)
	if err != nil {
		t.Fatal(err)
	}
	return agg
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// =============================================================================
// Workflow Service Test Suite
// =============================================================================

type ServiceSuite struct {
	suite.Suite
	ctx         context.Context
	ledger      *simulated.Ledger
	baskets     *basketstore.InMemoryRegistry
	reconcile   *reconcilestore.InMemoryStore
	idempotency *store.InMemoryStore
	audit       *audit.InMemoryStore
	service     *workflow.Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.ledger = simulated.New(contracts, simulated.WithSupply(units(900_000)), simulated.WithLogger(discard()))
	s.baskets = basketstore.NewInMemory()
	s.reconcile = reconcilestore.NewInMemory()
	s.idempotency = store.NewInMemory()
	s.audit = audit.NewInMemory()
	s.service = s.newService(staticReserves(s.T(), 1_000_000))
}

func (s *ServiceSuite) newService(reserves workflow.ReserveAggregator, opts ...workflow.Option) *workflow.Service {
	submitter, err := report.NewSubmitter(s.ledger, report.WithLogger(discard()))
	s.Require().NoError(err)
	provisioner, err := basket.NewProvisioner(submitter, s.ledger, s.baskets, contracts.Factory, 5_000_000,
		basket.WithLogger(discard()))
	s.Require().NoError(err)

	base := []workflow.Option{
		workflow.WithLogger(discard()),
		workflow.WithProvisioner(provisioner),
		workflow.WithIdempotency(s.idempotency),
		workflow.WithReconciliation(s.reconcile),
		workflow.WithAudit(audit.NewPublisher(s.audit)),
	}
	svc, err := workflow.NewService(testConfig(), reserves, s.ledger, submitter, append(base, opts...)...)
	s.Require().NoError(err)
	return svc
}

// =============================================================================
// Reserve-gated minting
// =============================================================================

func (s *ServiceSuite) TestMintWithinReservesSucceeds() {
	res := s.service.Process(s.ctx, mintPayload("TX-1", "50000"))

	s.Require().Equal(workflow.KindSuccess, res.Kind, res.Detail)
	s.Equal(id.TransactionID("TX-1"), res.TransactionID)
	s.NotEmpty(res.MintTx)
	s.Empty(res.BridgeTx)
	s.Require().NotNil(res.Collateral)
	s.Equal("950000", res.Collateral.ProjectedSupply)
	s.Equal("1000000", res.Collateral.TrustedReserve)

	s.Equal(1, s.ledger.Writes())
	s.Equal(0, units(950_000).Cmp(s.ledger.Supply()))
	s.Equal(0, units(50_000).Cmp(s.ledger.BalanceOf(alice)))
}

func (s *ServiceSuite) TestMintBeyondReservesIsRejectedWithoutWrites() {
	res := s.service.Process(s.ctx, mintPayload("TX-2", "200000"))

	s.Equal(workflow.KindReserveRejected, res.Kind)
	s.Equal(workflow.StageReserves, res.Stage)
	s.Equal("100000", res.Deficit)
	s.Empty(res.MintTx)
	s.Equal(0, s.ledger.Writes())
	s.Equal(0, units(900_000).Cmp(s.ledger.Supply()))
}

func (s *ServiceSuite) TestRejectionNeverReachesReportGeneration() {
	ctrl := gomock.NewController(s.T())
	gateway := mocks.NewMockGateway(ctrl)
	gateway.EXPECT().ReadLedgerValue(gomock.Any(), contracts.Stablecoin, gomock.Any()).Return(units(900_000), nil)
	gateway.EXPECT().GenerateAttestedReport(gomock.Any(), gomock.Any()).Times(0)
	gateway.EXPECT().SubmitReport(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	submitter, err := report.NewSubmitter(gateway)
	s.Require().NoError(err)
	svc, err := workflow.NewService(testConfig(), staticReserves(s.T(), 1_000_000), gateway, submitter,
		workflow.WithLogger(discard()))
	s.Require().NoError(err)

	res := svc.Process(s.ctx, mintPayload("TX-3", "200000"))
	s.Equal(workflow.KindReserveRejected, res.Kind)
	s.Equal("100000", res.Deficit)
}

func (s *ServiceSuite) TestReserveUnavailable() {
	agg, err := reserve.NewAggregator(
		[]reserve.Source{sources.NewFileSource("missing", "/nonexistent/reserves.json")},
		reserve.WithLogger(discard()),
	)
	s.Require().NoError(err)
	svc := s.newService(agg)

	res := svc.Process(s.ctx, mintPayload("TX-4", "10"))
	s.Equal(workflow.KindReserveUnavailable, res.Kind)
	s.Equal(workflow.StageReserves, res.Stage)
	s.Equal(0, s.ledger.Writes())
}

func (s *ServiceSuite) TestSupplyReadFailureIsInfrastructure() {
	s.ledger.Fail(simulated.OpRead, errors.New("rpc connection refused"))

	res := s.service.Process(s.ctx, mintPayload("TX-5", "10"))
	s.Equal(workflow.KindInfrastructureFailure, res.Kind)
	s.Equal(workflow.StageReserves, res.Stage)
	s.Contains(res.Detail, "rpc connection refused")
	s.Equal(0, s.ledger.Writes())
}

type slowReserves struct{}

func (slowReserves) Aggregate(ctx context.Context) (reserve.Attestation, error) {
	<-ctx.Done()
	return reserve.Attestation{}, ctx.Err()
}

func (s *ServiceSuite) TestStepTimeoutIsInfrastructure() {
	cfg := testConfig()
	cfg.StepTimeout = 20 * time.Millisecond
	submitter, err := report.NewSubmitter(s.ledger)
	s.Require().NoError(err)
	svc, err := workflow.NewService(cfg, slowReserves{}, s.ledger, submitter, workflow.WithLogger(discard()))
	s.Require().NoError(err)

	res := svc.Process(s.ctx, mintPayload("TX-6", "10"))
	s.Equal(workflow.KindInfrastructureFailure, res.Kind)
	s.Equal(workflow.StageReserves, res.Stage)
	s.Contains(res.Detail, "deadline exceeded")
}

func (s *ServiceSuite) TestVerifyReserves() {
	s.Run("approved amount reports the projection", func() {
		res := s.service.VerifyReserves(s.ctx, decimal.NewFromInt(50_000))
		s.Require().True(res.Succeeded())
		s.Equal("950000", res.Collateral.ProjectedSupply)
		s.Equal("1000000", res.Collateral.TrustedReserve)
	})

	s.Run("over-issuance reports the deficit", func() {
		res := s.service.VerifyReserves(s.ctx, decimal.NewFromInt(200_000))
		s.Equal(workflow.KindReserveRejected, res.Kind)
		s.Equal("100000", res.Deficit)
	})

	s.Run("excess precision is malformed", func() {
		res := s.service.VerifyReserves(s.ctx, decimal.RequireFromString("0.0000000000000000001"))
		s.Equal(workflow.KindMalformedInstruction, res.Kind)
	})

	s.Zero(s.ledger.Writes())
	s.Empty(s.audit.All())
}

// =============================================================================
// Policy enforcement
// =============================================================================

func (s *ServiceSuite) TestBlacklistedBeneficiaryIsPolicyRejectedAtMint() {
	s.ledger.Blacklist(alice)

	res := s.service.Process(s.ctx, mintPayload("TX-7", "10"))
	s.Equal(workflow.KindPolicyRejected, res.Kind)
	s.Equal(workflow.StageMint, res.Stage)
	s.Empty(res.MintTx)
	s.False(res.PartialCompletion)
	s.Equal(0, units(900_000).Cmp(s.ledger.Supply()))
}

func (s *ServiceSuite) TestMintSubmitFaultIsInfrastructure() {
	s.ledger.Fail(simulated.OpSubmit, errors.New("gateway timeout"))

	res := s.service.Process(s.ctx, mintPayload("TX-8", "10"))
	s.Equal(workflow.KindInfrastructureFailure, res.Kind)
	s.Equal(workflow.StageMint, res.Stage)
}

// =============================================================================
// Cross-chain bridging
// =============================================================================

func (s *ServiceSuite) TestMintThenBridge() {
	res := s.service.Process(s.ctx, bridgePayload("TX-9", "1000", "FUJI"))

	s.Require().Equal(workflow.KindSuccess, res.Kind, res.Detail)
	s.NotEmpty(res.MintTx)
	s.NotEmpty(res.BridgeTx)
	s.NotEqual(res.MintTx, res.BridgeTx)
	s.Equal(2, s.ledger.Writes())
	s.Equal(0, s.ledger.BalanceOf(alice).Sign(), "minted to the bridge consumer, not the beneficiary")
	s.Equal(0, s.ledger.BalanceOf(contracts.BridgeConsumer).Sign(), "bridge consumer forwarded the amount")
}

// cancelAfterMint cancels the caller's context once the mint is submitted.
type cancelAfterMint struct {
	next   workflow.Submitter
	cancel context.CancelFunc
}

func (c cancelAfterMint) Submit(ctx context.Context, req report.Request) (report.Outcome, error) {
	out, err := c.next.Submit(ctx, req)
	if req.Role == string(workflow.StageMint) {
		c.cancel()
	}
	return out, err
}

// ctxAwareStore fails writes on a done context, as a network-backed store does.
type ctxAwareStore struct {
	*store.InMemoryStore
}

func (c ctxAwareStore) Complete(ctx context.Context, txID id.TransactionID, res *workflow.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.InMemoryStore.Complete(ctx, txID, res)
}

func (s *ServiceSuite) TestCallerCancellationAfterMintStillBridgesAndSettles() {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	submitter, err := report.NewSubmitter(s.ledger, report.WithLogger(discard()))
	s.Require().NoError(err)
	idem := ctxAwareStore{InMemoryStore: s.idempotency}
	svc, err := workflow.NewService(testConfig(), staticReserves(s.T(), 1_000_000), s.ledger,
		cancelAfterMint{next: submitter, cancel: cancel},
		workflow.WithLogger(discard()),
		workflow.WithIdempotency(idem),
		workflow.WithReconciliation(s.reconcile),
		workflow.WithAudit(audit.NewPublisher(s.audit)),
	)
	s.Require().NoError(err)

	res := svc.Process(ctx, bridgePayload("TX-11", "1000", "avalanche-fuji"))

	s.Require().Error(ctx.Err())
	s.Require().Equal(workflow.KindSuccess, res.Kind, res.Detail)
	s.NotEmpty(res.BridgeTx)
	s.False(res.PartialCompletion)
	s.Equal(2, s.ledger.Writes())

	entries, err := s.reconcile.List(s.ctx, true)
	s.Require().NoError(err)
	s.Empty(entries)

	replay := svc.Process(s.ctx, bridgePayload("TX-11", "1000", "avalanche-fuji"))
	s.True(replay.Replayed, "the result was stored despite the cancelled caller")
	s.Equal(res.MintTx, replay.MintTx)
	s.Equal(2, s.ledger.Writes())

	events, err := s.audit.ListByTransaction(s.ctx, "TX-11")
	s.Require().NoError(err)
	s.Len(events, 1)
}

func (s *ServiceSuite) TestBlacklistedBridgeBeneficiaryKeepsMint() {
	s.ledger.Blacklist(remoteBob)

	res := s.service.Process(s.ctx, bridgePayload("TX-10", "1000", "avalanche-fuji"))

	s.Equal(workflow.KindPolicyRejected, res.Kind)
	s.Equal(workflow.StageBridge, res.Stage)
	s.NotEmpty(res.MintTx)
	s.Empty(res.BridgeTx)
	s.True(res.PartialCompletion)
	s.True(strings.Contains(strings.ToLower(res.Detail), "blacklisted"))

	entries, err := s.reconcile.List(s.ctx, false)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(id.TransactionID("TX-10"), entries[0].TransactionID)
	s.Equal(res.MintTx, entries[0].MintTx)
	s.True(entries[0].Holder.Equal(contracts.BridgeConsumer))
}

func (s *ServiceSuite) TestUnknownDestinationIsMalformed() {
	res := s.service.Process(s.ctx, bridgePayload("TX-11", "10", "mars"))
	s.Equal(workflow.KindMalformedInstruction, res.Kind)
	s.Contains(res.Detail, "mars")
	s.Equal(0, s.ledger.Writes())
}

// =============================================================================
// Malformed instructions
// =============================================================================

func (s *ServiceSuite) TestMalformedInstructions() {
	cases := map[string][]byte{
		"not json":        []byte("{"),
		"negative amount": mintPayload("TX-12", "-5"),
		"sub-unit amount": mintPayload("TX-13", "0.0000000000000000001"),
		"unknown kind":    []byte(`{"messageType":"BURN","transactionId":"TX-14"}`),
	}
	for name, payload := range cases {
		s.Run(name, func() {
			res := s.service.Process(s.ctx, payload)
			s.Equal(workflow.KindMalformedInstruction, res.Kind)
			s.Equal(workflow.StageParse, res.Stage)
		})
	}
	s.Equal(0, s.ledger.Writes())
}

// =============================================================================
// Basket provisioning
// =============================================================================

func (s *ServiceSuite) TestCreateBasket() {
	res := s.service.Process(s.ctx, []byte(basketPayload))

	s.Require().Equal(workflow.KindSuccess, res.Kind, res.Detail)
	s.Require().NotNil(res.Basket)
	s.Equal("EURB", res.Basket.Symbol)
	s.True(res.Basket.Admin.Equal(basketAdmn))

	list, err := s.baskets.List(s.ctx)
	s.Require().NoError(err)
	s.Len(list, 1)
}

func (s *ServiceSuite) TestCreateBasketWithoutEventIsUnconfirmed() {
	s.ledger.OmitBasketEvent(true)

	res := s.service.Process(s.ctx, []byte(basketPayload))
	s.Equal(workflow.KindCreationUnconfirmed, res.Kind)
	s.Equal(workflow.StageProvision, res.Stage)
	s.Nil(res.Basket)

	list, err := s.baskets.List(s.ctx)
	s.Require().NoError(err)
	s.Empty(list)

	entries, err := s.reconcile.List(s.ctx, false)
	s.Require().NoError(err)
	s.Len(entries, 1)
}

func (s *ServiceSuite) TestDuplicateBasketSymbolIsMalformed() {
	s.Require().Equal(workflow.KindSuccess, s.service.Process(s.ctx, []byte(basketPayload)).Kind)
	writes := s.ledger.Writes()

	again := strings.Replace(basketPayload, "TX-B-1", "TX-B-2", 1)
	res := s.service.Process(s.ctx, []byte(again))
	s.Equal(workflow.KindMalformedInstruction, res.Kind)
	s.Equal(workflow.StageProvision, res.Stage)
	s.Equal(writes, s.ledger.Writes())
}

// =============================================================================
// Idempotency
// =============================================================================

func (s *ServiceSuite) TestCompletedRunIsReplayed() {
	first := s.service.Process(s.ctx, mintPayload("TX-20", "100"))
	s.Require().Equal(workflow.KindSuccess, first.Kind)

	second := s.service.Process(s.ctx, mintPayload("TX-20", "100"))
	s.Equal(workflow.KindSuccess, second.Kind)
	s.True(second.Replayed)
	s.Equal(first.MintTx, second.MintTx)
	s.Equal(1, s.ledger.Writes())
}

func (s *ServiceSuite) TestInFlightRunIsRefused() {
	_, err := s.idempotency.Claim(s.ctx, "TX-21")
	s.Require().NoError(err)

	res := s.service.Process(s.ctx, mintPayload("TX-21", "100"))
	s.Equal(workflow.KindDuplicateInFlight, res.Kind)
	s.Equal(0, s.ledger.Writes())
}

func (s *ServiceSuite) TestRejectedRunReleasesItsClaim() {
	res := s.service.Process(s.ctx, mintPayload("TX-22", "200000"))
	s.Require().Equal(workflow.KindReserveRejected, res.Kind)

	s.ledger.SetSupply(units(0))
	res = s.service.Process(s.ctx, mintPayload("TX-22", "200000"))
	s.Equal(workflow.KindSuccess, res.Kind)
	s.False(res.Replayed)
}

// =============================================================================
// Audit trail
// =============================================================================

func (s *ServiceSuite) TestEveryRunIsAudited() {
	s.service.Process(s.ctx, mintPayload("TX-30", "100"))
	s.service.Process(s.ctx, mintPayload("TX-30", "100"))

	events, err := s.audit.ListByTransaction(s.ctx, "TX-30")
	s.Require().NoError(err)
	s.Require().Len(events, 1, "replays are not audited twice")
	s.Equal(audit.ActionMint, events[0].Action)
	s.Equal(string(workflow.KindSuccess), events[0].Outcome)
}

func TestNewServiceValidates(t *testing.T) {
	l := simulated.New(contracts)
	sub, _ := report.NewSubmitter(l)
	if _, err := workflow.NewService(testConfig(), nil, l, sub); err == nil {
		t.Fatal("expected error for missing aggregator")
	}
	cfg := testConfig()
	cfg.Issuing.StablecoinAddress = ""
	if _, err := workflow.NewService(cfg, staticReserves(t, 1), l, sub); err == nil {
		t.Fatal("expected error for missing stablecoin address")
	}
}
