package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the audit trail. The write-failure
// and dropped counters are the operational monitor the fire-and-forget
// delivery mode depends on; without them audit gaps are invisible.
type Metrics struct {
	EntriesWritten *prometheus.CounterVec
	WriteFailures  prometheus.Counter
	EntriesDropped prometheus.Counter
	QueueDepth     prometheus.Gauge
}

// New creates a new Metrics instance with all audit trail metrics
// registered.
func New() *Metrics {
	return &Metrics{
		EntriesWritten: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "veritrail_audit_entries_written_total",
			Help: "Total audit entries committed to the store, by action",
		}, []string{"action"}),
		WriteFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veritrail_audit_write_failures_total",
			Help: "Total audit entries that failed to persist",
		}),
		EntriesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "veritrail_audit_entries_dropped_total",
			Help: "Total audit entries dropped because the delivery buffer was full",
		}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "veritrail_audit_queue_depth",
			Help: "Entries waiting in the asynchronous delivery buffer",
		}),
	}
}

// RecordWritten counts one committed entry.
func (m *Metrics) RecordWritten(action string) {
	if m == nil {
		return
	}
	m.EntriesWritten.WithLabelValues(action).Inc()
}

// RecordFailure counts one failed persistence attempt.
func (m *Metrics) RecordFailure() {
	if m == nil {
		return
	}
	m.WriteFailures.Inc()
}

// RecordDropped counts one entry dropped at enqueue time.
func (m *Metrics) RecordDropped() {
	if m == nil {
		return
	}
	m.EntriesDropped.Inc()
}

// SetQueueDepth reports the current delivery-buffer backlog.
func (m *Metrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(depth))
}
