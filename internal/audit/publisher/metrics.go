package publisher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks audit publishing health. A rising failure count means
// state-changing operations are being rolled back.
type Metrics struct {
	EventsEmitted   prometheus.Counter
	PersistFailures prometheus.Counter
	PersistDuration prometheus.Histogram
}

func NewMetrics() *Metrics {
	return &Metrics{
		EventsEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "comitia_audit_events_emitted_total",
			Help: "Total number of audit events successfully persisted",
		}),
		PersistFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "comitia_audit_persist_failures_total",
			Help: "Total number of audit persistence failures (each one rolled back a mutation)",
		}),
		PersistDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "comitia_audit_persist_duration_seconds",
			Help:    "Duration of synchronous audit appends",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

func (m *Metrics) IncEventsEmitted()                { m.EventsEmitted.Inc() }
func (m *Metrics) IncPersistFailures()              { m.PersistFailures.Inc() }
func (m *Metrics) ObservePersistDuration(s float64) { m.PersistDuration.Observe(s) }
