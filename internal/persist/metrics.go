// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EmberMUD Contributors

package persist

import "github.com/prometheus/client_golang/prometheus"

// saveFailures counts backend save failures by backend kind.
// Use RegisterMetrics to register this with a Prometheus registry.
var saveFailures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "embermud_persist_save_failures_total",
		Help: "Total number of failed backend save attempts",
	},
	[]string{"backend"},
)

// saveDropped counts database saves dropped because the write-behind queue
// was full.
var saveDropped = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "embermud_persist_saves_dropped_total",
		Help: "Total number of database saves dropped due to a full queue",
	},
)

// RegisterMetrics registers persistence metrics with the given registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(saveFailures)
	reg.MustRegister(saveDropped)
}
