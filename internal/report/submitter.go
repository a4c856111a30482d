// Package report encodes canonical instruction payloads and drives them
// through the ledger-report service: attest, submit, classify.
//
// Classification separates business outcomes from infrastructure faults.
// A ledger-reported rejection carrying a policy marker is POLICY_REJECTED,
// any other ledger-reported failure is FAILED, and a transport or timeout
// error from either call is returned as an error wrapping
// ErrInfrastructure.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"bskt/internal/ledger"
	"bskt/internal/report/metrics"
	id "bskt/pkg/domain"
	dErrors "bskt/pkg/domain-errors"
)

// ErrInfrastructure marks transport, RPC and timeout failures.
var ErrInfrastructure = errors.New("ledger infrastructure failure")

// Status of a submission as seen by the caller.
type Status string

const (
	StatusSuccess        Status = "SUCCESS"
	StatusPolicyRejected Status = "POLICY_REJECTED"
	StatusFailed         Status = "FAILED"
)

// Outcome is the classified result of one submission.
type Outcome struct {
	Status          Status
	TransactionHash id.TxHash
	ErrorDetail     string
}

// Request is one payload bound for one consumer.
type Request struct {
	Payload  []byte
	Consumer id.Address
	GasLimit uint64
	// Role labels logs and metrics: mint, bridge, factory.
	Role string
}

var policyMarkers = []string{
	"policyrunrejected",
	"rejected by policy",
	"blacklisted",
}

// IsPolicyRejection reports whether ledger error text carries a known
// policy rejection marker. Matching is case-insensitive.
func IsPolicyRejection(text string) bool {
	lower := strings.ToLower(text)
	for _, m := range policyMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// Submitter attests and submits reports.
type Submitter struct {
	gateway ledger.Gateway
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Submitter)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Submitter) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Submitter) {
		s.metrics = m
	}
}

func NewSubmitter(gateway ledger.Gateway, opts ...Option) (*Submitter, error) {
	if gateway == nil {
		return nil, fmt.Errorf("ledger gateway is required")
	}
	s := &Submitter{
		gateway: gateway,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Submit generates one attested report for req.Payload and delivers it to
// req.Consumer. A non-nil error always wraps ErrInfrastructure.
func (s *Submitter) Submit(ctx context.Context, req Request) (Outcome, error) {
	start := time.Now()

	signed, err := s.gateway.GenerateAttestedReport(ctx, req.Payload)
	if err != nil {
		s.metrics.ObserveSubmission(req.Role, "infrastructure", time.Since(start))
		return Outcome{}, Infrastructure(err, "report generation failed")
	}

	res, err := s.gateway.SubmitReport(ctx, req.Consumer, signed, req.GasLimit)
	if err != nil {
		s.metrics.ObserveSubmission(req.Role, "infrastructure", time.Since(start))
		return Outcome{}, Infrastructure(err, "report submission failed")
	}

	outcome := classify(res)
	s.metrics.ObserveSubmission(req.Role, strings.ToLower(string(outcome.Status)), time.Since(start))

	switch outcome.Status {
	case StatusSuccess:
		s.logger.InfoContext(ctx, "report accepted",
			"role", req.Role,
			"consumer", req.Consumer,
			"tx_hash", outcome.TransactionHash,
		)
	case StatusPolicyRejected:
		s.logger.InfoContext(ctx, "report rejected by policy",
			"role", req.Role,
			"consumer", req.Consumer,
			"detail", outcome.ErrorDetail,
		)
	default:
		s.logger.WarnContext(ctx, "report execution failed",
			"role", req.Role,
			"consumer", req.Consumer,
			"ledger_status", res.Status.String(),
			"detail", outcome.ErrorDetail,
		)
	}
	return outcome, nil
}

func classify(res ledger.WriteResult) Outcome {
	if IsPolicyRejection(res.ErrorMessage) {
		return Outcome{Status: StatusPolicyRejected, TransactionHash: res.TxHash, ErrorDetail: res.ErrorMessage}
	}
	if res.Status != ledger.TxStatusSuccess {
		detail := res.ErrorMessage
		if detail == "" {
			detail = "ledger reported " + res.Status.String()
		}
		return Outcome{Status: StatusFailed, TransactionHash: res.TxHash, ErrorDetail: detail}
	}
	if res.TxHash.IsNil() {
		return Outcome{Status: StatusFailed, ErrorDetail: "ledger reported success without a transaction hash"}
	}
	return Outcome{Status: StatusSuccess, TransactionHash: res.TxHash}
}

// Infrastructure wraps a transport fault as ErrInfrastructure, coded as a
// timeout when the deadline expired and as unavailable otherwise.
func Infrastructure(err error, msg string) error {
	code := dErrors.CodeUnavailable
	if errors.Is(err, context.DeadlineExceeded) {
		code = dErrors.CodeTimeout
	}
	return dErrors.Wrap(fmt.Errorf("%w: %w", ErrInfrastructure, err), code, msg)
}
