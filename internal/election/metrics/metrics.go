// Package metrics holds the Prometheus collectors for the election
// lifecycle engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	electionsCreated    prometheus.Counter
	candidacyDecisions  *prometheus.CounterVec
	eligibilityChecks   *prometheus.CounterVec
	ballotCacheHits     *prometheus.CounterVec
	resultsPublished    prometheus.Counter
	tabulationDuration  prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		electionsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "comitia_elections_created_total",
			Help: "Elections created.",
		}),
		candidacyDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "comitia_candidacy_decisions_total",
			Help: "Per-election candidacy decisions, by outcome.",
		}, []string{"decision"}),
		eligibilityChecks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "comitia_eligibility_checks_total",
			Help: "Eligibility checks, by outcome.",
		}, []string{"eligible"}),
		ballotCacheHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "comitia_ballot_cache_requests_total",
			Help: "Ballot reads, by cache outcome.",
		}, []string{"outcome"}),
		resultsPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "comitia_results_published_total",
			Help: "Result sets published.",
		}),
		tabulationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "comitia_tabulation_duration_seconds",
			Help:    "Time spent tabulating an election's results.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) IncElectionsCreated() {
	m.electionsCreated.Inc()
}

func (m *Metrics) IncCandidacyDecisions(decision string) {
	m.candidacyDecisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) IncEligibilityChecks(eligible bool) {
	label := "false"
	if eligible {
		label = "true"
	}
	m.eligibilityChecks.WithLabelValues(label).Inc()
}

func (m *Metrics) IncBallotCache(outcome string) {
	m.ballotCacheHits.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncResultsPublished() {
	m.resultsPublished.Inc()
}

func (m *Metrics) ObserveTabulation(seconds float64) {
	m.tabulationDuration.Observe(seconds)
}
