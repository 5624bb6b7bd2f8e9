package ledger

// Store defines the ledger operations consumed by the service and API
// layers. Consumers should depend on this interface rather than the
// concrete *DB type to facilitate testing with mocks.
type Store interface {
	InsertActivity(rec ActivityRecord) (int64, error)
	GetActivity(id int64) (*ActivityRecord, error)
	ListActivities(f Filter, page, pageSize int) ([]ActivityRecord, int, error)
	AllActivities() ([]ActivityRecord, error)
	Aggregate(f Filter) (Aggregated, error)
	Trend(period string, f Filter, limit int) ([]TrendRow, error)
	AuthorStats(repoPath string) ([]AuthorStat, error)
	PurgeOlderThan(days int) (int64, error)

	AddRepo(repo MonitoredRepo) (int64, error)
	GetRepo(repoPath string) (*MonitoredRepo, error)
	ListRepos(monitoredOnly bool) ([]MonitoredRepo, error)
	UpdateRepo(repoPath string, upd RepoUpdate) error
	DeleteRepo(repoPath string) error
	RefreshRepoStats(repoPath string) error

	Close() error
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)
