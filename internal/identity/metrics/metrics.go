// Package metrics holds the Prometheus collectors for the role transition
// engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	applicationsSubmitted *prometheus.CounterVec
	decisions             *prometheus.CounterVec
	credentialRetries     prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		applicationsSubmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "comitia_role_applications_submitted_total",
			Help: "Role applications submitted, by type.",
		}, []string{"type"}),
		decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "comitia_role_application_decisions_total",
			Help: "Role application decisions, by type and outcome.",
		}, []string{"type", "decision"}),
		credentialRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "comitia_credential_id_retries_total",
			Help: "Credential ID collisions that forced a regeneration.",
		}),
	}
}

func (m *Metrics) IncApplicationsSubmitted(appType string) {
	m.applicationsSubmitted.WithLabelValues(appType).Inc()
}

func (m *Metrics) IncDecisions(appType, decision string) {
	m.decisions.WithLabelValues(appType, decision).Inc()
}

func (m *Metrics) IncCredentialRetries() {
	m.credentialRetries.Inc()
}
