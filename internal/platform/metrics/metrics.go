// Package metrics exposes Prometheus collectors for the trading pipeline,
// adapted from the teacher's pkg/metrics registry-of-named-collectors
// pattern (rewritten without its system/framework/core dependency, which did
// not survive the transform — see DESIGN.md).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds ArbFarm's collectors, separate from the default global
// registry so tests can construct an isolated instance.
var Registry = prometheus.NewRegistry()

var (
	SignalsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arbfarm",
			Subsystem: "scanner",
			Name:      "signals_published_total",
			Help:      "Total number of signals published after deduplication.",
		},
		[]string{"signal_type"},
	)

	SignalsSuppressed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arbfarm",
			Subsystem: "scanner",
			Name:      "signals_suppressed_total",
			Help:      "Total number of signals suppressed by TTL/confidence dedup.",
		},
		[]string{"signal_type"},
	)

	ScanTickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "arbfarm",
			Subsystem: "scanner",
			Name:      "tick_duration_seconds",
			Help:      "Duration of one Scanner scheduling tick.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
	)

	EdgesCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arbfarm",
			Subsystem: "strategy_engine",
			Name:      "edges_created_total",
			Help:      "Total number of edges created from matched signals.",
		},
		[]string{"strategy_type"},
	)

	EdgesRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arbfarm",
			Subsystem: "threat_filter",
			Name:      "edges_rejected_total",
			Help:      "Total number of edges rejected by the threat filter.",
		},
		[]string{"reason"},
	)

	ApprovalOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arbfarm",
			Subsystem: "approval_manager",
			Name:      "outcomes_total",
			Help:      "Approval outcomes by final status.",
		},
		[]string{"status"},
	)

	SimulationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "arbfarm",
			Subsystem: "execution",
			Name:      "simulation_duration_seconds",
			Help:      "Duration of pre-flight transaction simulation calls.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
	)

	TradesSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arbfarm",
			Subsystem: "executor",
			Name:      "trades_submitted_total",
			Help:      "Total number of trade submissions by outcome.",
		},
		[]string{"outcome"},
	)

	PositionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "arbfarm",
			Subsystem: "positions",
			Name:      "open_count",
			Help:      "Current number of open positions.",
		},
	)

	EventBusDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arbfarm",
			Subsystem: "event_bus",
			Name:      "subscriber_lag_total",
			Help:      "Total number of lagged-subscriber events (ring-buffer overrun).",
		},
		[]string{"topic"},
	)

	StorageQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "arbfarm",
			Subsystem: "storage",
			Name:      "query_duration_seconds",
			Help:      "Duration of a Postgres repository query, by table and operation.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"table", "operation"},
	)

	StorageErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arbfarm",
			Subsystem: "storage",
			Name:      "errors_total",
			Help:      "Total number of failed Postgres repository queries, by table and operation.",
		},
		[]string{"table", "operation"},
	)
)

func init() {
	Registry.MustRegister(
		SignalsPublished,
		SignalsSuppressed,
		ScanTickDuration,
		EdgesCreated,
		EdgesRejected,
		ApprovalOutcomes,
		SimulationDuration,
		TradesSubmitted,
		PositionsOpen,
		EventBusDropped,
		StorageQueryDuration,
		StorageErrors,
	)
}
