package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for reserve aggregation.
type Metrics struct {
	// Per-source read latency
	SourceLatency *prometheus.HistogramVec

	// Readings by source and outcome: ok, error, invalid
	SourceReadings *prometheus.CounterVec

	// Last trusted reserve value, in currency units
	TrustedReserve prometheus.Gauge

	// Aggregations that failed to reach quorum
	QuorumFailures prometheus.Counter
}

// New creates a new Metrics instance with all reserve metrics registered.
func New() *Metrics {
	return &Metrics{
		SourceLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bskt_reserve_source_duration_seconds",
			Help:    "Duration of reserve source reads",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"source"}),

		SourceReadings: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bskt_reserve_source_readings_total",
			Help: "Reserve readings by source and outcome",
		}, []string{"source", "outcome"}),

		TrustedReserve: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "bskt_reserve_trusted_value",
			Help: "Most recent aggregated reserve value",
		}),

		QuorumFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bskt_reserve_quorum_failures_total",
			Help: "Aggregations with fewer valid readings than required",
		}),
	}
}

// ObserveRead records one source read.
func (m *Metrics) ObserveRead(source, outcome string, d time.Duration) {
	if m != nil {
		m.SourceLatency.WithLabelValues(source).Observe(d.Seconds())
		m.SourceReadings.WithLabelValues(source, outcome).Inc()
	}
}

// SetTrustedReserve records the aggregated value.
func (m *Metrics) SetTrustedReserve(v float64) {
	if m != nil {
		m.TrustedReserve.Set(v)
	}
}

// IncrementQuorumFailure counts an aggregation that did not reach quorum.
func (m *Metrics) IncrementQuorumFailure() {
	if m != nil {
		m.QuorumFailures.Inc()
	}
}
