// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmberMUD Contributors

package session

import "github.com/prometheus/client_golang/prometheus"

// loginsTotal counts session registrations.
// Use RegisterMetrics to register this with a Prometheus registry.
var loginsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "embermud_logins_total",
		Help: "Total number of session registrations",
	},
)

// transfersTotal counts transfer handshake outcomes.
var transfersTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "embermud_session_transfers_total",
		Help: "Total number of session transfer resolutions by outcome",
	},
	[]string{"outcome"},
)

// RegisterMetrics registers session metrics with the given registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(loginsTotal)
	reg.MustRegister(transfersTotal)
}
