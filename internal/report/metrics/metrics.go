package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for report submissions.
type Metrics struct {
	Outcomes *prometheus.CounterVec
	Latency  *prometheus.HistogramVec
}

// New creates a new Metrics instance with all report metrics registered.
func New() *Metrics {
	return &Metrics{
		Outcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bskt_report_submissions_total",
			Help: "Report submissions by consumer role and outcome",
		}, []string{"role", "outcome"}),

		Latency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bskt_report_submission_duration_seconds",
			Help:    "Duration of attest plus submit per consumer role",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"role"}),
	}
}

// ObserveSubmission records one submission.
func (m *Metrics) ObserveSubmission(role, outcome string, d time.Duration) {
	if m != nil {
		m.Outcomes.WithLabelValues(role, outcome).Inc()
		m.Latency.WithLabelValues(role).Observe(d.Seconds())
	}
}
