package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for workflow runs.
type Metrics struct {
	// Terminal results by instruction kind, result kind and stage
	Results *prometheus.CounterVec

	// Per-step latency
	StepLatency *prometheus.HistogramVec

	// Whole-run latency
	RunLatency prometheus.Histogram

	// Runs that committed a write before failing
	PartialCompletions prometheus.Counter

	// Results served from the idempotency store
	Replays prometheus.Counter
}

// New creates a new Metrics instance with all workflow metrics registered.
func New() *Metrics {
	return &Metrics{
		Results: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bskt_workflow_results_total",
			Help: "Terminal workflow results by instruction, kind and stage",
		}, []string{"instruction", "kind", "stage"}),

		StepLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bskt_workflow_step_duration_seconds",
			Help:    "Duration of workflow steps",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),

		RunLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "bskt_workflow_run_duration_seconds",
			Help:    "Duration of complete workflow runs",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),

		PartialCompletions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bskt_workflow_partial_completions_total",
			Help: "Runs that committed a ledger write before a later step failed",
		}),

		Replays: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bskt_workflow_replays_total",
			Help: "Results served from the idempotency store",
		}),
	}
}

// ObserveResult records one terminal result and the run duration.
func (m *Metrics) ObserveResult(instruction, kind, stage string, partial bool, d time.Duration) {
	if m != nil {
		m.Results.WithLabelValues(instruction, kind, stage).Inc()
		m.RunLatency.Observe(d.Seconds())
		if partial {
			m.PartialCompletions.Inc()
		}
	}
}

// ObserveStep records the duration of one step.
func (m *Metrics) ObserveStep(stage string, d time.Duration) {
	if m != nil {
		m.StepLatency.WithLabelValues(stage).Observe(d.Seconds())
	}
}

// IncrementReplay records a replayed result.
func (m *Metrics) IncrementReplay() {
	if m != nil {
		m.Replays.Inc()
	}
}
