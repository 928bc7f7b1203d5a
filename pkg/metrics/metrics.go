// Package metrics holds the Prometheus collectors of the sync subsystem.
// They register with the default registry and are exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncRuns counts device syncs by outcome ("success" or the error kind).
	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "punchclock_device_syncs_total",
			Help: "Total number of device syncs by outcome",
		},
		[]string{"outcome"},
	)

	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "punchclock_device_sync_duration_seconds",
			Help:    "Duration of a single device sync in seconds",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	// Punches counts reconciled punch records by outcome: inserted,
	// duplicate, unmapped or conflict.
	Punches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "punchclock_punches_total",
			Help: "Total number of reconciled punch records by outcome",
		},
		[]string{"outcome"},
	)

	MalformedRecords = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "punchclock_malformed_records_total",
			Help: "Total number of device records skipped as malformed",
		},
	)

	CommandRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "punchclock_terminal_command_retries_total",
			Help: "Total number of terminal commands retried after a timeout",
		},
		[]string{"command"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "punchclock_terminal_sessions_active",
			Help: "Current number of open terminal sessions",
		},
	)
)
