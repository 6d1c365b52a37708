// Package simmetrics exposes Prometheus collectors for the generator and
// query API.
package simmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProvisioningBatches counts batch provisioning outcomes.
	ProvisioningBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mrrsim",
		Subsystem: "generator",
		Name:      "provisioning_batches_total",
		Help:      "Provisioned batches by outcome.",
	}, []string{"outcome"})

	// ClockAdvanceDuration tracks wall-clock time per clock advance,
	// including settlement wait.
	ClockAdvanceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mrrsim",
		Subsystem: "generator",
		Name:      "clock_advance_duration_seconds",
		Help:      "Wall-clock seconds per test clock advance, settlement included.",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
	})

	// LifecycleEvents counts applied lifecycle events by type.
	LifecycleEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mrrsim",
		Subsystem: "generator",
		Name:      "lifecycle_events_total",
		Help:      "Applied lifecycle events by type.",
	}, []string{"type"})

	// SnapshotRows counts recorded snapshot rows.
	SnapshotRows = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mrrsim",
		Subsystem: "generator",
		Name:      "snapshot_rows_total",
		Help:      "Monthly snapshot rows recorded.",
	})

	// APIRequests counts query API requests by endpoint and status.
	APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mrrsim",
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "Query API requests by endpoint and HTTP status.",
	}, []string{"endpoint", "status"})
)
