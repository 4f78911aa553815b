package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the authorization engine. Decisions
// are labelled by outcome so dashboards can watch the deny and error
// rates independently.
type Metrics struct {
	Decisions         *prometheus.CounterVec
	AuthorizeDuration prometheus.Histogram
}

// New creates a new Metrics instance with all authorization metrics
// registered.
func New() *Metrics {
	return &Metrics{
		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "veritrail_authz_decisions_total",
			Help: "Total authorization decisions by outcome",
		}, []string{"resource", "action", "outcome"}),
		AuthorizeDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "veritrail_authz_authorize_duration_seconds",
			Help:    "Duration of authorize calls including ownership lookups",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
	}
}

// RecordDecision counts one authorization outcome.
func (m *Metrics) RecordDecision(resource, action, outcome string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(resource, action, outcome).Inc()
}

// ObserveAuthorize records the duration of an authorize call. Call with
// time.Now() at the start of the operation.
func (m *Metrics) ObserveAuthorize(start time.Time) {
	if m == nil {
		return
	}
	m.AuthorizeDuration.Observe(time.Since(start).Seconds())
}
