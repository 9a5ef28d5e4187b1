// Package metrics provides Prometheus metrics for the reader service.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "rssreader"

var (
	// SyncRunsTotal counts finished sync runs by trigger and status.
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_runs_total",
			Help:      "Total number of sync runs",
		},
		[]string{"trigger", "status"},
	)

	// SyncDuration measures sync run duration.
	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Duration of sync runs in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	// SyncArticlesTotal counts reconciled articles by outcome.
	SyncArticlesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_articles_total",
			Help:      "Upstream articles by reconciliation outcome",
		},
		[]string{"outcome"},
	)

	// UpstreamRequestsTotal counts Inoreader API calls.
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Total number of Inoreader API requests",
		},
		[]string{"zone", "status"},
	)

	// UpstreamUsage tracks today's usage per zone.
	UpstreamUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "upstream_usage",
			Help:      "Inoreader API calls used today",
		},
		[]string{"zone"},
	)

	// CleanupDeletedTotal counts articles removed by retention cleanup.
	CleanupDeletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_articles_deleted_total",
			Help:      "Total number of articles deleted by retention cleanup",
		},
	)

	// TombstonesPurgedTotal counts expired tombstones.
	TombstonesPurgedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tombstones_purged_total",
			Help:      "Total number of expired tombstones purged",
		},
	)

	// HTTPRequestsTotal counts REST API requests.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
)

// RecordSync records a finished sync run.
func RecordSync(trigger, status string, duration time.Duration) {
	SyncRunsTotal.WithLabelValues(trigger, status).Inc()
	SyncDuration.Observe(duration.Seconds())
}

// RecordReconcile records one reconciled batch.
func RecordReconcile(admitted, skipped, resurrected int) {
	SyncArticlesTotal.WithLabelValues("admitted").Add(float64(admitted))
	SyncArticlesTotal.WithLabelValues("skipped").Add(float64(skipped))
	SyncArticlesTotal.WithLabelValues("resurrected").Add(float64(resurrected))
}

// RecordUpstream records an upstream request. status is the HTTP code or "error".
func RecordUpstream(zone int, status string) {
	UpstreamRequestsTotal.WithLabelValues(strconv.Itoa(zone), status).Inc()
}

// SetUpstreamUsage sets today's usage for a zone.
func SetUpstreamUsage(zone, used int) {
	UpstreamUsage.WithLabelValues(strconv.Itoa(zone)).Set(float64(used))
}

// RecordCleanup records a retention cleanup run.
func RecordCleanup(deleted, purged int) {
	CleanupDeletedTotal.Add(float64(deleted))
	TombstonesPurgedTotal.Add(float64(purged))
}

// RecordHTTP records a served request.
func RecordHTTP(method, route string, status int) {
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}
