// Package metrics exposes Prometheus collectors for passphrase prompts,
// secret decryption and account recovery.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Passphrase outcomes.
const (
	OutcomeAccepted  = "accepted"
	OutcomeRejected  = "rejected"
	OutcomeExhausted = "exhausted"
	OutcomeCancelled = "cancelled"
	OutcomeFailed    = "failed"
)

// Metrics owns a registry and the collectors registered on it.
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	passphraseAttempts *prometheus.CounterVec
	pendingPrompts     prometheus.Gauge
	secretDecryptions  *prometheus.CounterVec
	recoverySteps      *prometheus.CounterVec
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		passphraseAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "keywarden",
				Subsystem: "passphrase",
				Name:      "attempts_total",
				Help:      "Passphrase candidates and requests by outcome.",
			},
			[]string{"outcome"},
		),
		pendingPrompts: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "keywarden",
				Subsystem: "passphrase",
				Name:      "pending_prompts",
				Help:      "Passphrase requests currently waiting for the user.",
			},
		),
		secretDecryptions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "keywarden",
				Subsystem: "secret",
				Name:      "decryptions_total",
				Help:      "Secret decryptions by resource type and error kind.",
			},
			[]string{"resource_type", "kind"},
		),
		recoverySteps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "keywarden",
				Subsystem: "recovery",
				Name:      "runs_total",
				Help:      "Account recovery runs by the last state reached and error kind.",
			},
			[]string{"state", "kind"},
		),
	}
	m.registry.MustRegister(m.passphraseAttempts, m.pendingPrompts, m.secretDecryptions, m.recoverySteps)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordPassphrase counts a passphrase outcome.
func (m *Metrics) RecordPassphrase(outcome string) {
	if m == nil {
		return
	}
	m.passphraseAttempts.WithLabelValues(outcome).Inc()
}

// PromptOpened tracks a new pending passphrase request.
func (m *Metrics) PromptOpened() {
	if m == nil {
		return
	}
	m.pendingPrompts.Inc()
}

// PromptClosed tracks a pending passphrase request being resolved.
func (m *Metrics) PromptClosed() {
	if m == nil {
		return
	}
	m.pendingPrompts.Dec()
}

// ResourceTypeUnsupported labels decryptions of resource types outside the
// supported set, keeping the label cardinality bounded.
const ResourceTypeUnsupported = "unsupported"

// RecordDecryption counts a secret decryption. kind is "ok" on success.
func (m *Metrics) RecordDecryption(resourceType, kind string) {
	if m == nil {
		return
	}
	m.secretDecryptions.WithLabelValues(resourceType, kind).Inc()
}

// RecordRecovery counts an account recovery run. kind is "ok" on success.
func (m *Metrics) RecordRecovery(state, kind string) {
	if m == nil {
		return
	}
	m.recoverySteps.WithLabelValues(state, kind).Inc()
}
