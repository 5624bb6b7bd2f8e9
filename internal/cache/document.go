// Package cache maintains the denormalized JSON mirror of the activity
// ledger: a bounded window of recent records plus precomputed statistics,
// optimized for reads that must not touch the ledger.
package cache

import (
	"time"

	"github.com/starford/gitsee/internal/ledger"
)

const (
	// SchemaVersion is written into every cache document.
	SchemaVersion = "1.0"

	// MaxActivities caps the recent-activity window kept in the document.
	MaxActivities = 1000
)

// Statistics is the summary block of the cache document. It is always a
// deterministic function of the ledger contents it was computed from.
type Statistics struct {
	TotalCommits     int    `json:"total_commits"`
	TotalPushes      int    `json:"total_pushes"`
	MostActiveRepo   string `json:"most_active_repo"`
	MostActiveBranch string `json:"most_active_branch"`
}

// Document is the on-disk shape of the cache file. Activities are copies
// of ledger records, most recently inserted first; the ledger remains the
// authoritative version.
type Document struct {
	Version     string                  `json:"version"`
	LastUpdated time.Time               `json:"last_updated"`
	Activities  []ledger.ActivityRecord `json:"activities"`
	Statistics  Statistics              `json:"statistics"`
}

// NewDocument returns the empty default document shape.
func NewDocument() *Document {
	return &Document{
		Version:     SchemaVersion,
		LastUpdated: time.Now().UTC(),
		Activities:  []ledger.ActivityRecord{},
	}
}

// ComputeStatistics derives the summary block from a set of records. The
// reconciler calls it with the full ledger contents; ties on the most
// active repo or branch break toward the lexicographically smaller name
// so repeated runs over identical input yield identical output.
func ComputeStatistics(records []ledger.ActivityRecord) Statistics {
	var stats Statistics
	repoCounts := map[string]int{}
	branchCounts := map[string]int{}

	for _, rec := range records {
		switch rec.ActivityType {
		case ledger.TypeCommit:
			stats.TotalCommits++
		case ledger.TypePush:
			stats.TotalPushes++
		}
		repoCounts[rec.RepoPath]++
		branchCounts[rec.BranchName]++
	}

	stats.MostActiveRepo = topKey(repoCounts)
	stats.MostActiveBranch = topKey(branchCounts)
	return stats
}

// StatisticsFrom converts a ledger aggregate into the cache summary block.
// The incremental write path uses this so statistics reflect the full
// ledger rather than the capped window.
func StatisticsFrom(agg ledger.Aggregated) Statistics {
	stats := Statistics{
		TotalCommits: agg.TotalCommits,
		TotalPushes:  agg.TotalPushes,
	}
	if len(agg.ByRepo) > 0 {
		stats.MostActiveRepo = agg.ByRepo[0].RepoPath
	}
	if len(agg.ByBranch) > 0 {
		stats.MostActiveBranch = agg.ByBranch[0].Branch
	}
	return stats
}

func topKey(counts map[string]int) string {
	best := ""
	bestCount := 0
	for k, n := range counts {
		if n > bestCount || (n == bestCount && bestCount > 0 && k < best) {
			best = k
			bestCount = n
		}
	}
	return best
}
