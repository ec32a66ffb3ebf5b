// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package lifecycle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts lifecycle activity. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	requestsCreated prometheus.Counter
	claims          *prometheus.CounterVec
	promotions      *prometheus.CounterVec
	verifications   *prometheus.CounterVec
	conflicts       prometheus.Counter
	coinsGranted    *prometheus.CounterVec
	notifyFailures  prometheus.Counter
}

// NewMetrics registers the lifecycle collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		requestsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "realhero_requests_created_total",
			Help: "Donation requests created",
		}),
		claims: f.NewCounterVec(prometheus.CounterOpts{
			Name: "realhero_claims_total",
			Help: "Successful donor claims by assigned role",
		}, []string{"role"}),
		promotions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "realhero_primary_replacements_total",
			Help: "Primary donors replaced, by cause and result (promoted or reopened)",
		}, []string{"cause", "result"}),
		verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "realhero_verifications_total",
			Help: "Requester verification answers",
		}, []string{"answer"}),
		conflicts: f.NewCounter(prometheus.CounterOpts{
			Name: "realhero_version_conflicts_total",
			Help: "Optimistic update conflicts on requests",
		}),
		coinsGranted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "realhero_coins_granted_total",
			Help: "Coins granted through the reward ledger, by category",
		}, []string{"category"}),
		notifyFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "realhero_notify_failures_total",
			Help: "Notifications the notifier refused",
		}),
	}
}

func (m *Metrics) requestCreated() {
	if m != nil {
		m.requestsCreated.Inc()
	}
}

func (m *Metrics) claimed(role string) {
	if m != nil {
		m.claims.WithLabelValues(role).Inc()
	}
}

func (m *Metrics) replaced(cause string, reopened bool) {
	if m == nil {
		return
	}
	result := "promoted"
	if reopened {
		result = "reopened"
	}
	m.promotions.WithLabelValues(cause, result).Inc()
}

func (m *Metrics) verified(answer string) {
	if m != nil {
		m.verifications.WithLabelValues(answer).Inc()
	}
}

func (m *Metrics) conflict() {
	if m != nil {
		m.conflicts.Inc()
	}
}

func (m *Metrics) granted(category string, coins int) {
	if m != nil {
		m.coinsGranted.WithLabelValues(category).Add(float64(coins))
	}
}

func (m *Metrics) notifyFailed() {
	if m != nil {
		m.notifyFailures.Inc()
	}
}
