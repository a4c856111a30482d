package reserve

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"bskt/internal/reserve/metrics"
	dErrors "bskt/pkg/domain-errors"
)

const (
	defaultConcurrency = 4
	defaultTimeout     = 5 * time.Second
)

// Aggregator reads all sources and reduces them with Median.
type Aggregator struct {
	sources      []Source
	minResponses int
	concurrency  int
	timeout      time.Duration
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

type Option func(*Aggregator)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Aggregator) {
		a.metrics = m
	}
}

// WithMinResponses sets the quorum of valid readings.
func WithMinResponses(n int) Option {
	return func(a *Aggregator) {
		a.minResponses = n
	}
}

// WithConcurrency bounds the number of sources read at once.
func WithConcurrency(n int) Option {
	return func(a *Aggregator) {
		a.concurrency = n
	}
}

// WithTimeout bounds each source read.
func WithTimeout(d time.Duration) Option {
	return func(a *Aggregator) {
		a.timeout = d
	}
}

// NewAggregator validates the source set and quorum.
func NewAggregator(sources []Source, opts ...Option) (*Aggregator, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("at least one reserve source is required")
	}
	a := &Aggregator{
		sources:      sources,
		minResponses: 1,
		concurrency:  defaultConcurrency,
		timeout:      defaultTimeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.minResponses < 1 || a.minResponses > len(sources) {
		return nil, fmt.Errorf("min responses must be within [1, %d], got %d", len(sources), a.minResponses)
	}
	if a.concurrency < 1 {
		a.concurrency = 1
	}
	if len(sources) == 1 {
		a.logger.Warn("single reserve source configured, aggregation has no fault tolerance",
			"source", sources[0].ID(),
		)
	}
	return a, nil
}

// Sources returns the configured source count.
func (a *Aggregator) Sources() int {
	return len(a.sources)
}

// Aggregate fetches every source and returns the median of valid readings.
// It fails with ErrReserveUnavailable below quorum.
func (a *Aggregator) Aggregate(ctx context.Context) (Attestation, error) {
	var (
		mu       sync.Mutex
		readings []Attestation
		failures []string
	)

	g := new(errgroup.Group)
	g.SetLimit(a.concurrency)

	for _, src := range a.sources {
		g.Go(func() error {
			att, err := a.read(ctx, src)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, fmt.Sprintf("%s: %v", src.ID(), err))
				return nil
			}
			readings = append(readings, att)
			return nil
		})
	}
	// Source errors are collected, never returned, so every source is waited on.
	_ = g.Wait()

	if len(readings) < a.minResponses {
		a.metrics.IncrementQuorumFailure()
		a.logger.WarnContext(ctx, "reserve quorum not reached",
			"valid", len(readings),
			"required", a.minResponses,
			"failures", failures,
		)
		detail := fmt.Sprintf("%d of %d reserve sources returned valid readings, %d required",
			len(readings), len(a.sources), a.minResponses)
		return Attestation{}, dErrors.Wrap(
			fmt.Errorf("%w: %s", ErrReserveUnavailable, strings.Join(failures, "; ")),
			dErrors.CodeUnavailable, detail)
	}

	values := make([]decimal.Decimal, len(readings))
	observedAt := readings[0].ObservedAt
	for i, r := range readings {
		values[i] = r.Value
		if r.ObservedAt.Before(observedAt) {
			observedAt = r.ObservedAt
		}
	}
	median := Median(values)
	f, _ := median.Float64()
	a.metrics.SetTrustedReserve(f)

	a.logger.InfoContext(ctx, "reserve aggregated",
		"value", median.String(),
		"valid", len(readings),
		"sources", len(a.sources),
	)

	return Attestation{
		Value:      median,
		Currency:   readings[0].Currency,
		ObservedAt: observedAt,
		Source:     fmt.Sprintf("median(%d/%d)", len(readings), len(a.sources)),
	}, nil
}

func (a *Aggregator) read(ctx context.Context, src Source) (Attestation, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	att, err := src.Read(ctx)
	elapsed := time.Since(start)

	switch {
	case err != nil:
		a.metrics.ObserveRead(src.ID(), "error", elapsed)
		return Attestation{}, err
	case att.Value.IsNegative():
		a.metrics.ObserveRead(src.ID(), "invalid", elapsed)
		return Attestation{}, fmt.Errorf("negative reserve %s", att.Value)
	}
	a.metrics.ObserveRead(src.ID(), "ok", elapsed)
	if att.Source == "" {
		att.Source = src.ID()
	}
	return att, nil
}
