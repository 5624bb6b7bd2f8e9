// Package observability exposes Prometheus instrumentation for the
// recording and reconciliation paths.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ActivitiesRecorded counts successful ledger inserts by activity type.
	ActivitiesRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gitsee_activities_recorded_total",
		Help: "Activity records durably written to the ledger",
	}, []string{"type"})

	// CacheSyncFailures counts incremental cache updates that failed after
	// a successful ledger write.
	CacheSyncFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gitsee_cache_sync_failures_total",
		Help: "Incremental cache updates degraded to warnings",
	})

	// ReconcileCycles counts reconciliation cycles by outcome.
	ReconcileCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gitsee_reconcile_cycles_total",
		Help: "Full ledger-to-cache reconciliation cycles",
	}, []string{"status"})

	// ReconcileDuration observes how long a full rebuild takes.
	ReconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gitsee_reconcile_duration_seconds",
		Help:    "Duration of one reconciliation cycle",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	})

	// SnapshotFiles tracks the number of retained backup snapshots.
	SnapshotFiles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gitsee_snapshot_files",
		Help: "Backup snapshots currently retained",
	})
)

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
