// Package reconciler rebuilds the cache document from the full activity
// ledger on a fixed interval, resolving any drift left behind by failed
// incremental updates, then rotates backup snapshots.
package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/gitsee/internal/cache"
	"github.com/starford/gitsee/internal/ledger"
	"github.com/starford/gitsee/internal/observability"
)

// DefaultInterval is the default time between reconciliation cycles.
const DefaultInterval = 5 * time.Minute

// Reconciler is an explicitly owned background task. It holds no global
// state: callers start it with Run and stop it by cancelling the context,
// or drive individual cycles with RunOnce.
type Reconciler struct {
	db       ledger.Store
	cache    *cache.Store
	snaps    *cache.Snapshots
	interval time.Duration
	logger   *slog.Logger
}

// New creates a reconciler over the given stores.
func New(db ledger.Store, cs *cache.Store, snaps *cache.Snapshots, interval time.Duration, logger *slog.Logger) *Reconciler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{db: db, cache: cs, snaps: snaps, interval: interval, logger: logger}
}

// Run executes cycles on the configured interval until ctx is cancelled.
// Cycle failures are logged and never stop the loop; cancellation is
// observed only between cycles.
func (r *Reconciler) Run(ctx context.Context) error {
	r.logger.Info("reconciler: started", slog.Duration("interval", r.interval))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler: stopped")
			return nil
		case <-ticker.C:
			if err := r.RunOnce(); err != nil {
				r.logger.Warn("reconciler: cycle failed", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce performs one full reconciliation cycle: scan the entire ledger,
// rebuild the cache document with full-scope statistics, snapshot the
// result, and prune old snapshots. It is idempotent.
func (r *Reconciler) RunOnce() error {
	start := time.Now()
	err := r.runOnce()

	observability.ReconcileDuration.Observe(time.Since(start).Seconds())
	status := "ok"
	if err != nil {
		status = "error"
	}
	observability.ReconcileCycles.WithLabelValues(status).Inc()
	return err
}

func (r *Reconciler) runOnce() error {
	records, err := r.db.AllActivities()
	if err != nil {
		return fmt.Errorf("reconcile: scan ledger: %w", err)
	}

	stats := cache.ComputeStatistics(records)
	if err := r.cache.Rebuild(records, stats); err != nil {
		return fmt.Errorf("reconcile: rebuild cache: %w", err)
	}

	path, err := r.snaps.Create()
	if err != nil {
		return fmt.Errorf("reconcile: snapshot: %w", err)
	}
	if err := r.snaps.Prune(); err != nil {
		return fmt.Errorf("reconcile: prune snapshots: %w", err)
	}

	if names, err := r.snaps.List(); err == nil {
		observability.SnapshotFiles.Set(float64(len(names)))
	}

	r.logger.Debug("reconciler: cycle complete",
		slog.Int("records", len(records)),
		slog.String("snapshot", path))
	return nil
}
