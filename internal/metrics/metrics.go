// Copyright 2025 Certen Protocol

// Package metrics holds the process-wide Prometheus collectors shared by the
// components that carry mutable, long-lived state (§5): the audit chain
// (C6), the registry (C7), and the adaptive enforcer's drift tracker (C14).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuditChainLength tracks the number of events appended per chain path.
	AuditChainLength = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "cap",
		Subsystem: "audit",
		Name:      "chain_length",
		Help:      "Number of events appended to the audit chain.",
	}, []string{"path"})

	// RegistryWrites counts add_entry calls per backend.
	RegistryWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cap",
		Subsystem: "registry",
		Name:      "writes_total",
		Help:      "Number of registry entries written, by backend.",
	}, []string{"backend"})

	// EnforcerDriftRatio is the most recently observed shadow/enforced drift
	// ratio over the default query window.
	EnforcerDriftRatio = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "cap",
		Subsystem: "enforcer",
		Name:      "drift_ratio",
		Help:      "Fraction of enforced decisions that diverged from their shadow verdict.",
	}, []string{"policy_id"})

	// EnforcerSamples counts enforcement evaluations, partitioned by whether
	// the request was sampled into enforcement.
	EnforcerSamples = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cap",
		Subsystem: "enforcer",
		Name:      "samples_total",
		Help:      "Number of enforcement evaluations, by enforced_applied.",
	}, []string{"enforced_applied"})
)
