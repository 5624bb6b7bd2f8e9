// Package stats derives read-side analytics from the activity ledger:
// aggregate overviews, period trends, per-repository summaries and a
// contribution-style daily heatmap.
package stats

import (
	"path"
	"sort"
	"time"

	"github.com/starford/gitsee/internal/ledger"
)

// Service wraps a ledger store with analytics queries. All methods read
// the ledger directly rather than the cache document so results always
// reflect the source of truth.
type Service struct {
	db ledger.Store
}

// NewService creates a stats service over db.
func NewService(db ledger.Store) *Service {
	return &Service{db: db}
}

// Overview extends the raw aggregates with totals and a per-day commit
// average over the observed date buckets.
type Overview struct {
	ledger.Aggregated
	TotalActivities  int     `json:"total_activities"`
	AvgCommitsPerDay float64 `json:"avg_commits_per_day"`
}

// Overview aggregates activity matching the filter.
func (s *Service) Overview(f ledger.Filter) (Overview, error) {
	agg, err := s.db.Aggregate(f)
	if err != nil {
		return Overview{}, err
	}

	ov := Overview{Aggregated: agg}
	ov.TotalActivities = agg.TotalCommits + agg.TotalPushes

	dates := map[string]struct{}{}
	for _, d := range agg.ByDate {
		dates[d.Date] = struct{}{}
	}
	if len(dates) > 0 {
		ov.AvgCommitsPerDay = float64(agg.TotalCommits) / float64(len(dates))
	}
	return ov, nil
}

// TrendPoint merges commit and push counts for one period bucket.
type TrendPoint struct {
	Date    string `json:"date"`
	Commits int    `json:"commits"`
	Pushes  int    `json:"pushes"`
	Total   int    `json:"total"`
}

// Trends holds trend points for a rolling window ending today.
type Trends struct {
	Period    string       `json:"period"`
	Data      []TrendPoint `json:"data"`
	StartDate string       `json:"start_date"`
	EndDate   string       `json:"end_date"`
}

// Trends buckets activity for the last days days by period (day, week or
// month), newest bucket first.
func (s *Service) Trends(period, repoPath string, days int) (Trends, error) {
	if days < 1 {
		days = 30
	}
	now := time.Now().UTC()
	since := now.AddDate(0, 0, -days)

	f := ledger.Filter{RepoPath: repoPath, Since: since}
	rows, err := s.db.Trend(period, f, days*2)
	if err != nil {
		return Trends{}, err
	}

	byBucket := map[string]*TrendPoint{}
	for _, r := range rows {
		tp, ok := byBucket[r.Bucket]
		if !ok {
			tp = &TrendPoint{Date: r.Bucket}
			byBucket[r.Bucket] = tp
		}
		switch r.Type {
		case ledger.TypeCommit:
			tp.Commits = r.Count
		case ledger.TypePush:
			tp.Pushes = r.Count
		}
	}

	data := make([]TrendPoint, 0, len(byBucket))
	for _, tp := range byBucket {
		tp.Total = tp.Commits + tp.Pushes
		data = append(data, *tp)
	}
	sort.Slice(data, func(i, j int) bool { return data[i].Date > data[j].Date })

	return Trends{
		Period:    period,
		Data:      data,
		StartDate: since.Format("2006-01-02"),
		EndDate:   now.Format("2006-01-02"),
	}, nil
}

// BranchActivity is commit and push counts on one branch.
type BranchActivity struct {
	Commits int `json:"commits"`
	Pushes  int `json:"pushes"`
}

// RepoSummary describes one repository's activity over a recent window.
type RepoSummary struct {
	RepoPath         string                    `json:"repo_path"`
	PeriodDays       int                       `json:"period_days"`
	TotalCommits     int                       `json:"total_commits"`
	TotalPushes      int                       `json:"total_pushes"`
	TotalActivities  int                       `json:"total_activities"`
	Branches         map[string]BranchActivity `json:"branches"`
	RecentActivities []ledger.ActivityRecord   `json:"recent_activities"`
}

// RepoSummary summarizes the last days days for one repository.
func (s *Service) RepoSummary(repoPath string, days int) (RepoSummary, error) {
	if days < 1 {
		days = 30
	}
	now := time.Now().UTC()
	f := ledger.Filter{RepoPath: repoPath, Since: now.AddDate(0, 0, -days)}

	records, _, err := s.db.ListActivities(f, 1, 1000)
	if err != nil {
		return RepoSummary{}, err
	}

	sum := RepoSummary{
		RepoPath:   repoPath,
		PeriodDays: days,
		Branches:   map[string]BranchActivity{},
	}
	for _, rec := range records {
		ba := sum.Branches[rec.BranchName]
		switch rec.ActivityType {
		case ledger.TypeCommit:
			sum.TotalCommits++
			ba.Commits++
		case ledger.TypePush:
			sum.TotalPushes++
			ba.Pushes++
		}
		sum.Branches[rec.BranchName] = ba
	}
	sum.TotalActivities = sum.TotalCommits + sum.TotalPushes

	if len(records) > 10 {
		records = records[:10]
	}
	sum.RecentActivities = records
	return sum, nil
}

// TopRepo is one entry in the most-active-repositories ranking.
type TopRepo struct {
	RepoPath      string `json:"repo_path"`
	RepoName      string `json:"repo_name"`
	ActivityCount int    `json:"activity_count"`
}

// TopRepos ranks repositories by activity count over the last days days.
func (s *Service) TopRepos(limit, days int) ([]TopRepo, error) {
	if limit < 1 {
		limit = 10
	}
	if days < 1 {
		days = 30
	}

	f := ledger.Filter{Since: time.Now().UTC().AddDate(0, 0, -days)}
	agg, err := s.db.Aggregate(f)
	if err != nil {
		return nil, err
	}

	out := []TopRepo{}
	for _, rc := range agg.ByRepo {
		if len(out) == limit {
			break
		}
		out = append(out, TopRepo{
			RepoPath:      rc.RepoPath,
			RepoName:      path.Base(rc.RepoPath),
			ActivityCount: rc.Count,
		})
	}
	return out, nil
}

// HeatmapCell is one day in the contribution heatmap. Level buckets the
// raw count into 0..4 for rendering.
type HeatmapCell struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
	Level int    `json:"level"`
}

// Heatmap returns one cell per calendar day covering the last days days
// up to and including today, oldest first. Days with no activity are
// present with a zero count.
func (s *Service) Heatmap(days int) ([]HeatmapCell, error) {
	if days < 1 {
		days = 90
	}
	now := time.Now().UTC()
	start := now.AddDate(0, 0, -days)

	rows, err := s.db.Trend("day", ledger.Filter{Since: start}, (days+1)*2)
	if err != nil {
		return nil, err
	}

	counts := map[string]int{}
	for _, r := range rows {
		counts[r.Bucket] += r.Count
	}

	cells := []HeatmapCell{}
	for d := start; !d.After(now); d = d.AddDate(0, 0, 1) {
		key := d.Format("2006-01-02")
		n := counts[key]
		cells = append(cells, HeatmapCell{Date: key, Count: n, Level: activityLevel(n)})
	}
	return cells, nil
}

func activityLevel(count int) int {
	switch {
	case count == 0:
		return 0
	case count <= 3:
		return 1
	case count <= 6:
		return 2
	case count <= 9:
		return 3
	default:
		return 4
	}
}

// DaySummary is the activity tallied for a single calendar day.
type DaySummary struct {
	Date        string                  `json:"date"`
	CommitCount int                     `json:"commit_count"`
	PushCount   int                     `json:"push_count"`
	TotalCount  int                     `json:"total_count"`
	Activities  []ledger.ActivityRecord `json:"-"`
}

// TodaySummary tallies activity for today's UTC calendar date.
func (s *Service) TodaySummary() (DaySummary, error) {
	now := time.Now().UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	records, _, err := s.db.ListActivities(ledger.Filter{Since: start}, 1, 1000)
	if err != nil {
		return DaySummary{}, err
	}

	sum := DaySummary{Date: start.Format("2006-01-02"), Activities: records}
	for _, rec := range records {
		switch rec.ActivityType {
		case ledger.TypeCommit:
			sum.CommitCount++
		case ledger.TypePush:
			sum.PushCount++
		}
	}
	sum.TotalCount = len(records)
	return sum, nil
}
