// Package activity implements the dual-write coordinator: the ledger is
// written first and stays authoritative; the cache document is updated
// best-effort and heals at the next reconciliation.
package activity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/gitsee/internal/apperr"
	"github.com/starford/gitsee/internal/cache"
	"github.com/starford/gitsee/internal/ledger"
	"github.com/starford/gitsee/internal/observability"
)

// Data carries one hook-captured activity event into the coordinator.
type Data struct {
	ActivityType  string
	Timestamp     time.Time
	RepoPath      string
	BranchName    string
	CommitHash    string
	CommitMessage string
	AuthorName    string
	AuthorEmail   string
	FilesChanged  int
	Insertions    int
	Deletions     int
}

// Service coordinates the ledger store and the cache document.
type Service struct {
	db     ledger.Store
	cache  *cache.Store
	logger *slog.Logger
}

// NewService creates the coordinator.
func NewService(db ledger.Store, cs *cache.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: db, cache: cs, logger: logger}
}

// Record persists one activity event. The ledger insert must succeed or
// the whole operation fails and nothing is cached. A cache-side failure
// after a successful insert still returns the valid id, wrapped with
// apperr.ErrCacheSync so callers can log the degraded write.
func (s *Service) Record(_ context.Context, d Data) (int64, error) {
	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now().UTC()
	}

	rec := ledger.ActivityRecord{
		ActivityType:  d.ActivityType,
		Timestamp:     d.Timestamp,
		RepoPath:      d.RepoPath,
		BranchName:    d.BranchName,
		CommitHash:    d.CommitHash,
		CommitMessage: d.CommitMessage,
		AuthorName:    d.AuthorName,
		AuthorEmail:   d.AuthorEmail,
		FilesChanged:  d.FilesChanged,
		Insertions:    d.Insertions,
		Deletions:     d.Deletions,
	}

	id, err := s.db.InsertActivity(rec)
	if err != nil {
		return 0, fmt.Errorf("record activity: %w", err)
	}
	observability.ActivitiesRecorded.WithLabelValues(d.ActivityType).Inc()

	// Derived repo counters; never blocks the write path.
	if err := s.db.RefreshRepoStats(d.RepoPath); err != nil {
		s.logger.Warn("refresh repo stats failed",
			slog.String("repo", d.RepoPath), slog.String("error", err.Error()))
	}

	if err := s.updateCache(rec, id); err != nil {
		observability.CacheSyncFailures.Inc()
		return id, fmt.Errorf("%w: %v", apperr.ErrCacheSync, err)
	}
	return id, nil
}

// updateCache performs the incremental cache write. Statistics come from
// the ledger's aggregate query, not the capped window, so both write
// paths agree on totals.
func (s *Service) updateCache(rec ledger.ActivityRecord, id int64) error {
	agg, err := s.db.Aggregate(ledger.Filter{})
	if err != nil {
		return fmt.Errorf("aggregate for cache: %w", err)
	}

	rec.ID = id
	rec.CreatedAt = time.Now().UTC()
	return s.cache.Insert(rec, cache.StatisticsFrom(agg))
}

// CachedActivities reads the recent window from the cache document,
// bypassing the ledger.
func (s *Service) CachedActivities(_ context.Context, limit int) ([]ledger.ActivityRecord, error) {
	return s.cache.Activities(limit)
}

// CachedStatistics reads the summary block from the cache document.
func (s *Service) CachedStatistics(_ context.Context) (cache.Statistics, error) {
	return s.cache.Statistics()
}
