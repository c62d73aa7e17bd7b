// Package metrics holds the runtime's Prometheus instrumentation,
// grounded directly on the teacher's internal/escrow/metrics.go: a single
// struct of promauto-registered vectors constructed once by NewMetrics
// and handed to whichever component increments them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus metric the runtime exposes.
type Metrics struct {
	OperationsTotal    *prometheus.CounterVec
	OperationDuration  *prometheus.HistogramVec
	EngineSpawnsTotal  *prometheus.CounterVec
	EngineSpawnErrors  *prometheus.CounterVec
	StatusLinesTotal   *prometheus.CounterVec
	KeyCacheSize       prometheus.Gauge
	KeyCacheHits       *prometheus.CounterVec
	PendingOperations  prometheus.Gauge
}

// NewMetrics constructs and registers every metric.
func NewMetrics() *Metrics {
	return &Metrics{
		OperationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gpgclient_operations_total",
				Help: "Total number of engine operations run, by kind, protocol and outcome.",
			},
			[]string{"kind", "protocol", "outcome"},
		),

		OperationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gpgclient_operation_duration_seconds",
				Help:    "Wall-clock duration of an engine operation from spawn to DONE.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind", "protocol"},
		),

		EngineSpawnsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gpgclient_engine_spawns_total",
				Help: "Total number of engine child processes spawned.",
			},
			[]string{"protocol"},
		),

		EngineSpawnErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gpgclient_engine_spawn_errors_total",
				Help: "Total number of failed engine spawn attempts, by error kind.",
			},
			[]string{"protocol", "kind"},
		),

		StatusLinesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gpgclient_status_lines_total",
				Help: "Total number of status-channel lines parsed, by token.",
			},
			[]string{"token"},
		),

		KeyCacheSize: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "gpgclient_key_cache_entries",
				Help: "Current number of chain entries in the process-wide key cache.",
			},
		),

		KeyCacheHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gpgclient_key_cache_lookups_total",
				Help: "Total key-cache lookups, by outcome.",
			},
			[]string{"outcome"}, // hit, miss
		),

		PendingOperations: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "gpgclient_pending_operations",
				Help: "Number of contexts currently running an operation.",
			},
		),
	}
}
