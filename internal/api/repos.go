package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/starford/gitsee/internal/apperr"
	"github.com/starford/gitsee/internal/hooks"
	"github.com/starford/gitsee/internal/ledger"
	"github.com/starford/gitsee/internal/scanner"
)

// RepoHandler holds repository-management route handlers. Repository
// paths are absolute filesystem paths, so they travel in query
// parameters and request bodies rather than URL segments.
type RepoHandler struct {
	db        ledger.Store
	scanner   *scanner.Scanner
	installer *hooks.Installer
	scanRoots []string
}

// NewRepoHandler creates a RepoHandler. scanRoots are the default
// directories scanned when a scan request names none.
func NewRepoHandler(db ledger.Store, sc *scanner.Scanner, in *hooks.Installer, scanRoots []string) *RepoHandler {
	return &RepoHandler{db: db, scanner: sc, installer: in, scanRoots: scanRoots}
}

func repoPathParam(r *http.Request) string {
	return r.URL.Query().Get("repo_path")
}

// ScanRepos handles POST /repos/scan.
//
//	@Summary		Scan directories for Git repositories
//	@Tags			repos
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ScanRequest	false	"Directories to scan; defaults to configured roots"
//	@Success		200		{object}	ScanResponse
//	@Security		BearerAuth
//	@Router			/repos/scan [post]
func (h *RepoHandler) ScanRepos(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if r.Body != nil {
		_ = decodeJSON(w, r, &req)
	}
	roots := req.Directories
	if len(roots) == 0 {
		roots = h.scanRoots
	}

	repos, err := h.scanner.Scan(r.Context(), roots)
	if err != nil {
		slog.Error("repo scan failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, ScanResponse{Count: len(repos), Repos: repos})
}

// AddRepo handles POST /repos.
//
//	@Summary		Register a repository for monitoring
//	@Tags			repos
//	@Accept			json
//	@Produce		json
//	@Param			body	body		AddRepoRequest	true	"Repository to register"
//	@Success		201		{object}	ledger.MonitoredRepo
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/repos [post]
func (h *RepoHandler) AddRepo(w http.ResponseWriter, r *http.Request) {
	var req AddRepoRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.RepoPath == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("repo_path is required"))
		return
	}
	if !scanner.IsGitRepo(req.RepoPath) {
		writeJSON(w, http.StatusBadRequest, errorBody("not a git repository"))
		return
	}

	info := h.scanner.Inspect(r.Context(), req.RepoPath)
	if req.InstallHook {
		if err := h.installer.Install(req.RepoPath); err != nil {
			slog.Error("hook install failed", slog.String("repo", req.RepoPath), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("hook install failed"))
			return
		}
		info.IsMonitored = true
	}

	if _, err := h.db.AddRepo(ledger.MonitoredRepo{
		RepoPath:      info.Path,
		RepoName:      info.Name,
		RemoteURL:     info.RemoteURL,
		CurrentBranch: info.CurrentBranch,
		IsMonitored:   info.IsMonitored,
	}); err != nil {
		slog.Error("add repo failed", slog.String("repo", req.RepoPath), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}

	repo, err := h.db.GetRepo(info.Path)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusCreated, repo)
}

// BatchAddRepos handles POST /repos/batch.
//
//	@Summary		Register several repositories at once
//	@Tags			repos
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ScanRequest	true	"Repository paths in directories"
//	@Success		200		{object}	RepoListResponse
//	@Security		BearerAuth
//	@Router			/repos/batch [post]
func (h *RepoHandler) BatchAddRepos(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RepoPaths   []string `json:"repo_paths"`
		InstallHook bool     `json:"install_hook"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	added := []ledger.MonitoredRepo{}
	for _, p := range req.RepoPaths {
		if !scanner.IsGitRepo(p) {
			continue
		}
		info := h.scanner.Inspect(r.Context(), p)
		if req.InstallHook {
			if err := h.installer.Install(p); err != nil {
				slog.Warn("hook install failed", slog.String("repo", p), slog.String("error", err.Error()))
			} else {
				info.IsMonitored = true
			}
		}
		if _, err := h.db.AddRepo(ledger.MonitoredRepo{
			RepoPath:      info.Path,
			RepoName:      info.Name,
			RemoteURL:     info.RemoteURL,
			CurrentBranch: info.CurrentBranch,
			IsMonitored:   info.IsMonitored,
		}); err != nil {
			slog.Warn("add repo failed", slog.String("repo", p), slog.String("error", err.Error()))
			continue
		}
		if repo, err := h.db.GetRepo(p); err == nil {
			added = append(added, *repo)
		}
	}
	writeJSON(w, http.StatusOK, RepoListResponse{Repos: added, Total: len(added)})
}

// ListRepos handles GET /repos.
//
//	@Summary		List registered repositories
//	@Tags			repos
//	@Produce		json
//	@Param			monitored	query		bool	false	"Only repositories with hooks installed"
//	@Success		200			{object}	RepoListResponse
//	@Security		BearerAuth
//	@Router			/repos [get]
func (h *RepoHandler) ListRepos(w http.ResponseWriter, r *http.Request) {
	monitoredOnly, _ := strconv.ParseBool(r.URL.Query().Get("monitored"))
	repos, err := h.db.ListRepos(monitoredOnly)
	if err != nil {
		slog.Error("list repos failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, RepoListResponse{Repos: repos, Total: len(repos)})
}

// GetRepo handles GET /repos/info.
//
//	@Summary		Get one registered repository
//	@Tags			repos
//	@Produce		json
//	@Param			repo_path	query		string	true	"Repository path"
//	@Success		200			{object}	ledger.MonitoredRepo
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/repos/info [get]
func (h *RepoHandler) GetRepo(w http.ResponseWriter, r *http.Request) {
	p := repoPathParam(r)
	if p == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("repo_path is required"))
		return
	}
	repo, err := h.db.GetRepo(p)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("get repo failed", slog.String("repo", p), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, repo)
}

// UpdateRepo handles PATCH /repos.
//
//	@Summary		Update a registered repository
//	@Tags			repos
//	@Accept			json
//	@Produce		json
//	@Param			body	body		UpdateRepoRequest	true	"Fields to change"
//	@Success		200		{object}	ledger.MonitoredRepo
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/repos [patch]
func (h *RepoHandler) UpdateRepo(w http.ResponseWriter, r *http.Request) {
	var req UpdateRepoRequest
	if err := decodeJSON(w, r, &req); err != nil || req.RepoPath == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("repo_path is required"))
		return
	}

	upd := ledger.RepoUpdate{
		RepoName:      req.RepoName,
		RemoteURL:     req.RemoteURL,
		CurrentBranch: req.CurrentBranch,
		IsMonitored:   req.IsMonitored,
	}
	if err := h.db.UpdateRepo(req.RepoPath, upd); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("update repo failed", slog.String("repo", req.RepoPath), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}

	repo, err := h.db.GetRepo(req.RepoPath)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, repo)
}

// DeleteRepo handles DELETE /repos. The hook, if ours, is uninstalled
// first so the repository stops reporting.
//
//	@Summary		Unregister a repository
//	@Tags			repos
//	@Param			repo_path	query	string	true	"Repository path"
//	@Success		204			"Repository removed"
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/repos [delete]
func (h *RepoHandler) DeleteRepo(w http.ResponseWriter, r *http.Request) {
	p := repoPathParam(r)
	if p == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("repo_path is required"))
		return
	}
	if err := h.installer.Uninstall(p); err != nil {
		slog.Warn("hook uninstall failed", slog.String("repo", p), slog.String("error", err.Error()))
	}
	if err := h.db.DeleteRepo(p); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("delete repo failed", slog.String("repo", p), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// InstallHook handles POST /repos/hooks/install.
//
//	@Summary		Install reporting hooks into a repository
//	@Tags			repos
//	@Accept			json
//	@Produce		json
//	@Param			body	body		HookRequest	true	"Repository path"
//	@Success		200		{object}	hooks.Status
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/repos/hooks/install [post]
func (h *RepoHandler) InstallHook(w http.ResponseWriter, r *http.Request) {
	var req HookRequest
	if err := decodeJSON(w, r, &req); err != nil || req.RepoPath == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("repo_path is required"))
		return
	}
	if err := h.installer.Install(req.RepoPath); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	monitored := true
	if err := h.db.UpdateRepo(req.RepoPath, ledger.RepoUpdate{IsMonitored: &monitored}); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		slog.Warn("mark repo monitored failed", slog.String("repo", req.RepoPath), slog.String("error", err.Error()))
	}

	st, err := h.installer.CheckStatus(req.RepoPath)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// UninstallHook handles POST /repos/hooks/uninstall.
//
//	@Summary		Remove reporting hooks from a repository
//	@Tags			repos
//	@Accept			json
//	@Produce		json
//	@Param			body	body		HookRequest	true	"Repository path"
//	@Success		200		{object}	hooks.Status
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/repos/hooks/uninstall [post]
func (h *RepoHandler) UninstallHook(w http.ResponseWriter, r *http.Request) {
	var req HookRequest
	if err := decodeJSON(w, r, &req); err != nil || req.RepoPath == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("repo_path is required"))
		return
	}
	if err := h.installer.Uninstall(req.RepoPath); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	monitored := false
	if err := h.db.UpdateRepo(req.RepoPath, ledger.RepoUpdate{IsMonitored: &monitored}); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		slog.Warn("mark repo unmonitored failed", slog.String("repo", req.RepoPath), slog.String("error", err.Error()))
	}

	st, err := h.installer.CheckStatus(req.RepoPath)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HookStatus handles GET /repos/hooks/status.
//
//	@Summary		Report hook install state for a repository
//	@Tags			repos
//	@Produce		json
//	@Param			repo_path	query		string	true	"Repository path"
//	@Success		200			{object}	hooks.Status
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/repos/hooks/status [get]
func (h *RepoHandler) HookStatus(w http.ResponseWriter, r *http.Request) {
	p := repoPathParam(r)
	if p == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("repo_path is required"))
		return
	}
	st, err := h.installer.CheckStatus(p)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, st)
}
