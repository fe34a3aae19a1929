// Package telemetry provides logging setup and Prometheus metrics for the registry.
//
// All metrics are registered against the default Prometheus registry and are
// served by the side-channel HTTP server started by main.go:
//
//	GET http://<host>:<AIBOM_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// HTTP metrics use c.FullPath() (route template such as /api/v1/records/:modelId)
// rather than the raw URL to keep label cardinality bounded.
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template and status code.
//
// Example PromQL queries:
//   - Request rate:    rate(http_requests_total[5m])
//   - p99 per route:   histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Registry operation metrics.
//
// RegistryOperationsTotal has labels {op, outcome}. outcome is "ok", "error"
// for storage failures, or the rejection kind (authorization,
// invalid_transition, not_found, invalid_argument).
//
// Example PromQL queries:
//   - Rejected submissions:  rate(aibom_registry_operations_total{op="submit_for_review",outcome="authorization"}[1h])
//   - Decisions per hour:    increase(aibom_registry_operations_total{op="decide",outcome="ok"}[1h])
var (
	RegistryOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aibom_registry_operations_total",
			Help: "Total number of state-changing registry operations, by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)

	RegistryOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aibom_registry_operation_duration_seconds",
			Help:    "Duration of state-changing registry operations including the store transaction.",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"op"},
	)

	RegistryRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aibom_registry_records",
			Help: "Number of registered AIBOM records.",
		},
	)
)

// Event channel metrics.
//
// EventsPublishedTotal counts events handed to the bus, by event type.
// EventDeliveryFailuresTotal counts subscriber errors and panics, by subscriber
// name; delivery failures never roll back the mutation that produced the event.
var (
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aibom_events_published_total",
			Help: "Total number of registry events published, by event type.",
		},
		[]string{"type"},
	)

	EventDeliveryFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aibom_event_delivery_failures_total",
			Help: "Total number of failed event deliveries, by subscriber.",
		},
		[]string{"subscriber"},
	)

	EventSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aibom_event_subscribers",
			Help: "Number of subscribers currently attached to the event bus.",
		},
	)
)

// Snapshot archive metrics, recorded by the snapshot export job.
//
// Example PromQL queries:
//   - Alert on failing exports:  increase(aibom_snapshot_exports_total{status="error"}[6h]) > 0
var (
	SnapshotExportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aibom_snapshot_exports_total",
			Help: "Total number of registry snapshot exports, by storage backend and status.",
		},
		[]string{"backend", "status"},
	)

	SnapshotExportDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aibom_snapshot_export_duration_seconds",
			Help:    "Duration of a registry snapshot export.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// RateLimitRejectionsTotal counts requests rejected by the rate limiter, by limiter backend.
var RateLimitRejectionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "aibom_rate_limit_rejections_total",
		Help: "Total number of requests rejected by the rate limiter.",
	},
	[]string{"backend"},
)

// DBOpenConnections tracks open connections in the sql.DB pool. It is sampled
// every 30 seconds by StartDBStatsCollector.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector samples sql.DB pool statistics every 30 seconds until
// the database becomes unreachable, which happens once main closes it.
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
