package scanner

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/gitsee/internal/ledger"
)

// Watch monitors the scan roots for repositories created at runtime and
// registers them in the ledger until ctx is cancelled. New directories
// are added to the watch list as they appear; a directory becomes a
// repository the moment its .git directory is created.
func Watch(ctx context.Context, s *Scanner, db ledger.Store, roots []string, logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	for _, root := range roots {
		if err := addDirsRecursive(w, root, s.maxDepth); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return err
		}
	}

	logger.Info("scanner: watching for new repositories", slog.Int("roots", len(roots)))

	for {
		select {
		case <-ctx.Done():
			logger.Info("scanner: watcher stopped")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create == 0 {
				continue
			}

			info, statErr := os.Stat(ev.Name)
			if statErr != nil || !info.IsDir() {
				continue
			}

			// A created .git directory means its parent became a repo.
			if filepath.Base(ev.Name) == ".git" {
				registerRepo(ctx, s, db, filepath.Dir(ev.Name), logger)
				continue
			}
			if excluded(filepath.Base(ev.Name)) {
				continue
			}
			if IsGitRepo(ev.Name) {
				registerRepo(ctx, s, db, ev.Name, logger)
				continue
			}
			if addErr := addDirsRecursive(w, ev.Name, s.maxDepth); addErr != nil {
				logger.Warn("scanner: add new dir failed",
					slog.String("path", ev.Name),
					slog.String("error", addErr.Error()))
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("scanner: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

func registerRepo(ctx context.Context, s *Scanner, db ledger.Store, repoPath string, logger *slog.Logger) {
	info := s.Inspect(ctx, repoPath)
	_, err := db.AddRepo(ledger.MonitoredRepo{
		RepoPath:      info.Path,
		RepoName:      info.Name,
		RemoteURL:     info.RemoteURL,
		CurrentBranch: info.CurrentBranch,
		IsMonitored:   info.IsMonitored,
	})
	if err != nil {
		logger.Warn("scanner: register repo failed",
			slog.String("repo", repoPath),
			slog.String("error", err.Error()))
		return
	}
	logger.Info("scanner: registered new repository", slog.String("repo", repoPath))
}

// addDirsRecursive adds root and its subdirectories to the watcher,
// honoring the exclusion list, the depth bound, and repository
// boundaries (watched repos need no inner watches).
func addDirsRecursive(w *fsnotify.Watcher, root string, maxDepth int) error {
	root = filepath.Clean(root)
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsPermission(err) {
				return filepath.SkipDir
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root {
			if excluded(d.Name()) {
				return filepath.SkipDir
			}
			if rel, relErr := filepath.Rel(root, path); relErr == nil && depthOf(rel) > maxDepth {
				return filepath.SkipDir
			}
			if IsGitRepo(path) {
				return filepath.SkipDir
			}
		}
		return w.Add(path)
	})
}

func depthOf(rel string) int {
	if rel == "." {
		return 0
	}
	n := 1
	for _, c := range rel {
		if c == filepath.Separator {
			n++
		}
	}
	return n
}
