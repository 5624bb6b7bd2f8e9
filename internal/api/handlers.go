package api

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/gitsee/internal/activity"
	"github.com/starford/gitsee/internal/apperr"
	"github.com/starford/gitsee/internal/cache"
	"github.com/starford/gitsee/internal/evaluator"
	"github.com/starford/gitsee/internal/hooks"
	"github.com/starford/gitsee/internal/ledger"
	"github.com/starford/gitsee/internal/reconciler"
	"github.com/starford/gitsee/internal/sse"
	"github.com/starford/gitsee/internal/stats"
)

// Handler holds API route handlers.
type Handler struct {
	svc    *activity.Service
	db     ledger.Store
	stats  *stats.Service
	recon  *reconciler.Reconciler
	snaps  *cache.Snapshots
	eval   *evaluator.Evaluator
	broker *sse.Broker
}

// NewHandler creates a new Handler. eval and broker may be nil when the
// corresponding features are disabled.
func NewHandler(svc *activity.Service, db ledger.Store, st *stats.Service,
	recon *reconciler.Reconciler, snaps *cache.Snapshots,
	eval *evaluator.Evaluator, broker *sse.Broker) *Handler {
	return &Handler{svc: svc, db: db, stats: st, recon: recon, snaps: snaps, eval: eval, broker: broker}
}

const dateLayout = "2006-01-02"

// parseFilter builds a ledger filter from the shared query parameters.
// end_date is an inclusive calendar day, so the exclusive bound is the
// following midnight.
func parseFilter(r *http.Request) (ledger.Filter, error) {
	q := r.URL.Query()
	f := ledger.Filter{
		Type:     q.Get("activity_type"),
		RepoPath: q.Get("repo_path"),
	}
	if v := q.Get("start_date"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			return f, fmt.Errorf("invalid start_date %q", v)
		}
		f.Since = t.UTC()
	}
	if v := q.Get("end_date"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			return f, fmt.Errorf("invalid end_date %q", v)
		}
		f.Until = t.UTC().AddDate(0, 0, 1)
	}
	return f, nil
}

// RecordActivity handles POST /activities.
//
//	@Summary		Record a Git activity event
//	@Tags			activities
//	@Accept			json
//	@Produce		json
//	@Param			body	body		RecordActivityRequest	true	"Activity to record"
//	@Success		201		{object}	RecordActivityResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/activities [post]
func (h *Handler) RecordActivity(w http.ResponseWriter, r *http.Request) {
	var req RecordActivityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.ActivityType != ledger.TypeCommit && req.ActivityType != ledger.TypePush {
		writeJSON(w, http.StatusBadRequest, errorBody("activity_type must be commit or push"))
		return
	}
	if req.RepoPath == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("repo_path is required"))
		return
	}

	d := activity.Data{
		ActivityType:  req.ActivityType,
		RepoPath:      req.RepoPath,
		BranchName:    req.BranchName,
		CommitHash:    req.CommitHash,
		CommitMessage: req.CommitMessage,
		AuthorName:    req.AuthorName,
		AuthorEmail:   req.AuthorEmail,
		FilesChanged:  req.FilesChanged,
		Insertions:    req.Insertions,
		Deletions:     req.Deletions,
	}
	if req.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("timestamp must be RFC 3339"))
			return
		}
		d.Timestamp = ts
	}
	if req.Shortstat != "" {
		d.FilesChanged, d.Insertions, d.Deletions = hooks.ParseShortstat(req.Shortstat)
	}

	id, err := h.svc.Record(r.Context(), d)
	resp := RecordActivityResponse{ID: id, CacheSync: true}
	switch {
	case err == nil:
	case errors.Is(err, apperr.ErrCacheSync):
		// Ledger write landed; the cache heals on the next cycle.
		slog.Warn("record: cache sync degraded", slog.String("error", err.Error()))
		resp.CacheSync = false
	default:
		slog.Error("record activity failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}

	if h.broker != nil {
		rec, getErr := h.db.GetActivity(id)
		if getErr == nil && rec != nil {
			h.broker.PublishActivity(rec)
		}
	}
	writeJSON(w, http.StatusCreated, resp)
}

// ListActivities handles GET /activities.
//
//	@Summary		List activities with pagination and filtering
//	@Tags			activities
//	@Produce		json
//	@Param			page			query		int		false	"Page number"
//	@Param			page_size		query		int		false	"Page size"
//	@Param			activity_type	query		string	false	"commit or push"
//	@Param			repo_path		query		string	false	"Filter by repository"
//	@Param			start_date		query		string	false	"Inclusive start day (YYYY-MM-DD)"
//	@Param			end_date		query		string	false	"Inclusive end day (YYYY-MM-DD)"
//	@Success		200				{object}	ActivityListResponse
//	@Failure		400				{object}	errResponse
//	@Security		BearerAuth
//	@Router			/activities [get]
func (h *Handler) ListActivities(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))

	records, total, err := h.db.ListActivities(f, page, pageSize)
	if err != nil {
		slog.Error("list activities failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	writeJSON(w, http.StatusOK, ActivityListResponse{
		Activities: records,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
	})
}

// GetActivity handles GET /activities/{id}.
//
//	@Summary		Get one activity by id
//	@Tags			activities
//	@Produce		json
//	@Param			id	path		int	true	"Activity id"
//	@Success		200	{object}	ledger.ActivityRecord
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/activities/{id} [get]
func (h *Handler) GetActivity(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid activity id"))
		return
	}
	rec, err := h.db.GetActivity(id)
	if err != nil {
		slog.Error("get activity failed", slog.Int64("id", id), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// RecentActivities handles GET /activities/recent, served from the cache
// document rather than the ledger.
//
//	@Summary		Recent activities from the cache window
//	@Tags			activities
//	@Produce		json
//	@Param			limit	query		int	false	"Max records"
//	@Success		200		{object}	ActivityListResponse
//	@Security		BearerAuth
//	@Router			/activities/recent [get]
func (h *Handler) RecentActivities(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := h.svc.CachedActivities(r.Context(), limit)
	if err != nil {
		slog.Error("recent activities failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, ActivityListResponse{Activities: records, Total: len(records)})
}

// Statistics handles GET /statistics.
//
//	@Summary		Aggregate statistics over an optional date range
//	@Tags			statistics
//	@Produce		json
//	@Param			start_date	query		string	false	"Inclusive start day (YYYY-MM-DD)"
//	@Param			end_date	query		string	false	"Inclusive end day (YYYY-MM-DD)"
//	@Param			repo_path	query		string	false	"Filter by repository"
//	@Success		200			{object}	stats.Overview
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/statistics [get]
func (h *Handler) Statistics(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	ov, err := h.stats.Overview(f)
	if err != nil {
		slog.Error("statistics failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

// CachedStatistics handles GET /statistics/cached, served straight from
// the cache document's summary block.
//
//	@Summary		Statistics from the cache document
//	@Tags			statistics
//	@Produce		json
//	@Success		200	{object}	cache.Statistics
//	@Security		BearerAuth
//	@Router			/statistics/cached [get]
func (h *Handler) CachedStatistics(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.CachedStatistics(r.Context())
	if err != nil {
		slog.Error("cached statistics failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Trends handles GET /trends.
//
//	@Summary		Activity trend buckets for charts
//	@Tags			statistics
//	@Produce		json
//	@Param			period		query		string	false	"day, week or month"
//	@Param			repo_path	query		string	false	"Filter by repository"
//	@Param			days		query		int		false	"Window size in days"
//	@Success		200			{object}	stats.Trends
//	@Security		BearerAuth
//	@Router			/trends [get]
func (h *Handler) Trends(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	period := q.Get("period")
	if period == "" {
		period = "day"
	}
	days, _ := strconv.Atoi(q.Get("days"))

	tr, err := h.stats.Trends(period, q.Get("repo_path"), days)
	if err != nil {
		slog.Error("trends failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, tr)
}

// Heatmap handles GET /heatmap.
//
//	@Summary		Daily activity heatmap cells
//	@Tags			statistics
//	@Produce		json
//	@Param			days	query	int	false	"Window size in days"
//	@Success		200		{array}	stats.HeatmapCell
//	@Security		BearerAuth
//	@Router			/heatmap [get]
func (h *Handler) Heatmap(w http.ResponseWriter, r *http.Request) {
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	cells, err := h.stats.Heatmap(days)
	if err != nil {
		slog.Error("heatmap failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, cells)
}

// Authors handles GET /authors.
//
//	@Summary		Per-author commit statistics
//	@Tags			statistics
//	@Produce		json
//	@Param			repo_path	query	string	false	"Filter by repository"
//	@Success		200			{array}	ledger.AuthorStat
//	@Security		BearerAuth
//	@Router			/authors [get]
func (h *Handler) Authors(w http.ResponseWriter, r *http.Request) {
	authors, err := h.db.AuthorStats(r.URL.Query().Get("repo_path"))
	if err != nil {
		slog.Error("author stats failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, authors)
}

// TopRepos handles GET /repos/top.
//
//	@Summary		Most active repositories
//	@Tags			repos
//	@Produce		json
//	@Param			limit	query	int	false	"Max repositories"
//	@Param			days	query	int	false	"Window size in days"
//	@Success		200		{array}	stats.TopRepo
//	@Security		BearerAuth
//	@Router			/repos/top [get]
func (h *Handler) TopRepos(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	days, _ := strconv.Atoi(q.Get("days"))

	repos, err := h.stats.TopRepos(limit, days)
	if err != nil {
		slog.Error("top repos failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, repos)
}

// RepoSummary handles GET /repos/summary.
//
//	@Summary		Recent-window summary for one repository
//	@Tags			repos
//	@Produce		json
//	@Param			repo_path	query		string	true	"Repository path"
//	@Param			days		query		int		false	"Window size in days"
//	@Success		200			{object}	stats.RepoSummary
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/repos/summary [get]
func (h *Handler) RepoSummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	repoPath := q.Get("repo_path")
	if repoPath == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("repo_path is required"))
		return
	}
	days, _ := strconv.Atoi(q.Get("days"))

	sum, err := h.stats.RepoSummary(repoPath, days)
	if err != nil {
		slog.Error("repo summary failed", slog.String("repo", repoPath), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// Export handles GET /export.
//
//	@Summary		Export filtered activities as JSON or CSV
//	@Tags			export
//	@Produce		json
//	@Param			format		query		string	false	"json or csv"
//	@Param			start_date	query		string	false	"Inclusive start day (YYYY-MM-DD)"
//	@Param			end_date	query		string	false	"Inclusive end day (YYYY-MM-DD)"
//	@Param			repo_path	query		string	false	"Filter by repository"
//	@Success		200
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/export [get]
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}

	records, _, err := h.db.ListActivities(f, 1, 100000)
	if err != nil {
		slog.Error("export failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}

	stamp := time.Now().UTC().Format("20060102_150405")
	switch format {
	case "json":
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=activities_%s.json", stamp))
		writeJSON(w, http.StatusOK, records)
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=activities_%s.csv", stamp))
		exportCSV(w, records)
	default:
		writeJSON(w, http.StatusBadRequest, errorBody("format must be json or csv"))
	}
}

func exportCSV(w http.ResponseWriter, records []ledger.ActivityRecord) {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{
		"id", "activity_type", "timestamp", "repo_path", "branch_name",
		"commit_hash", "commit_message", "author_name", "author_email",
		"files_changed", "insertions", "deletions",
	})
	for _, rec := range records {
		_ = cw.Write([]string{
			strconv.FormatInt(rec.ID, 10),
			rec.ActivityType,
			rec.Timestamp.Format(time.RFC3339),
			rec.RepoPath,
			rec.BranchName,
			rec.CommitHash,
			rec.CommitMessage,
			rec.AuthorName,
			rec.AuthorEmail,
			strconv.Itoa(rec.FilesChanged),
			strconv.Itoa(rec.Insertions),
			strconv.Itoa(rec.Deletions),
		})
	}
	cw.Flush()
}

// Sync handles POST /sync: force one reconciliation cycle now.
//
//	@Summary		Rebuild the cache document from the ledger
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	cache.Statistics
//	@Security		BearerAuth
//	@Router			/sync [post]
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	if err := h.recon.RunOnce(); err != nil {
		slog.Error("manual sync failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("sync failed"))
		return
	}
	st, err := h.svc.CachedStatistics(r.Context())
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// ListSnapshots handles GET /snapshots.
//
//	@Summary		List backup snapshots, newest first
//	@Tags			snapshots
//	@Produce		json
//	@Success		200	{object}	SnapshotListResponse
//	@Security		BearerAuth
//	@Router			/snapshots [get]
func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	names, err := h.snaps.List()
	if err != nil {
		slog.Error("list snapshots failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, SnapshotListResponse{Snapshots: names})
}

// RestoreSnapshot handles POST /snapshots/restore.
//
//	@Summary		Restore the cache document from a snapshot
//	@Tags			snapshots
//	@Accept			json
//	@Produce		json
//	@Param			body	body		RestoreRequest	false	"Snapshot name, empty for latest"
//	@Success		200		{object}	map[string]bool
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/snapshots/restore [post]
func (h *Handler) RestoreSnapshot(w http.ResponseWriter, r *http.Request) {
	var req RestoreRequest
	if r.Body != nil {
		_ = decodeJSON(w, r, &req)
	}
	if err := h.snaps.Restore(req.Name); err != nil {
		if errors.Is(err, apperr.ErrSnapshotNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("snapshot not found"))
			return
		}
		slog.Error("restore snapshot failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// TodaySummary handles GET /today-summary.
//
//	@Summary		Today's tallies plus a generated encouragement
//	@Tags			statistics
//	@Produce		json
//	@Success		200	{object}	TodaySummaryResponse
//	@Security		BearerAuth
//	@Router			/today-summary [get]
func (h *Handler) TodaySummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.stats.TodaySummary()
	if err != nil {
		slog.Error("today summary failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}

	resp := TodaySummaryResponse{Stats: sum}
	if h.eval != nil {
		ev := h.eval.EvaluateDay(r.Context(), sum)
		resp.Evaluation = ev.Text
		resp.AIEnabled = ev.AIEnabled
	}
	writeJSON(w, http.StatusOK, resp)
}

// Health handles GET /health.
//
//	@Summary		Component health check
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Router			/health [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "healthy", Database: true, Cache: true}
	if _, _, err := h.db.ListActivities(ledger.Filter{}, 1, 1); err != nil {
		resp.Status = "degraded"
		resp.Database = false
	}
	if _, err := h.svc.CachedStatistics(r.Context()); err != nil {
		resp.Status = "degraded"
		resp.Cache = false
	}
	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
