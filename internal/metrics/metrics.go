// Package metrics exposes Prometheus instruments for login risk decisions.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LoginOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskgate_login_outcomes_total",
			Help: "Login attempts by outcome",
		},
		[]string{"outcome"}, // allow, mfa_required, invalid_credentials
	)

	RiskSignals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskgate_risk_signals_total",
			Help: "Risk signals that voted anomalous",
		},
		[]string{"signal"},
	)

	ClassifierFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "riskgate_classifier_failures_total",
			Help: "Evaluations escalated because the classifier could not answer",
		},
	)

	MFAVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskgate_mfa_verifications_total",
			Help: "MFA key verifications by result",
		},
		[]string{"result"}, // accepted, rejected, ambiguous
	)

	EvaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "riskgate_risk_evaluation_duration_seconds",
			Help:    "Time spent scoring a login attempt",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
		},
	)

	HistoryPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "riskgate_history_observations_pruned_total",
			Help: "Login observations removed by retention cleanup",
		},
	)
)

// RecordEvaluation records one scored attempt
func RecordEvaluation(signals map[string]bool, failedClosed bool, took time.Duration) {
	for name, flagged := range signals {
		if flagged {
			RiskSignals.WithLabelValues(name).Inc()
		}
	}
	if failedClosed {
		ClassifierFailures.Inc()
	}
	EvaluationDuration.Observe(took.Seconds())
}
