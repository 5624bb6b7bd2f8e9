package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(h *Handler, rh *RepoHandler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Activity recording and queries.
	r.Post("/activities", h.RecordActivity)
	r.Get("/activities", h.ListActivities)
	r.Get("/activities/recent", h.RecentActivities)
	r.Get("/activities/{id}", h.GetActivity)

	// Statistics.
	r.Get("/statistics", h.Statistics)
	r.Get("/statistics/cached", h.CachedStatistics)
	r.Get("/trends", h.Trends)
	r.Get("/heatmap", h.Heatmap)
	r.Get("/authors", h.Authors)
	r.Get("/today-summary", h.TodaySummary)

	// Export and cache maintenance.
	r.Get("/export", h.Export)
	r.Post("/sync", h.Sync)
	r.Get("/snapshots", h.ListSnapshots)
	r.Post("/snapshots/restore", h.RestoreSnapshot)

	// Repository management.
	r.Get("/repos", rh.ListRepos)
	r.Post("/repos", rh.AddRepo)
	r.Patch("/repos", rh.UpdateRepo)
	r.Delete("/repos", rh.DeleteRepo)
	r.Post("/repos/scan", rh.ScanRepos)
	r.Post("/repos/batch", rh.BatchAddRepos)
	r.Get("/repos/info", rh.GetRepo)
	r.Get("/repos/top", h.TopRepos)
	r.Get("/repos/summary", h.RepoSummary)
	r.Post("/repos/hooks/install", rh.InstallHook)
	r.Post("/repos/hooks/uninstall", rh.UninstallHook)
	r.Get("/repos/hooks/status", rh.HookStatus)

	// Health.
	r.Get("/health", h.Health)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
