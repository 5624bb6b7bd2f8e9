// Package scanner discovers Git repositories on disk so they can be
// registered for monitoring, and watches scan roots for repositories
// created at runtime.
package scanner

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/starford/gitsee/internal/hooks"
)

// DefaultMaxDepth bounds how deep a scan descends below each root.
const DefaultMaxDepth = 5

// excludedDirs are directory names never descended into. System paths,
// dependency trees and editor state directories dominate walk time and
// never contain repositories worth monitoring.
var excludedDirs = map[string]struct{}{
	"node_modules": {}, ".venv": {}, "venv": {}, "env": {},
	"__pycache__": {}, ".vscode": {}, ".idea": {},
	"target": {}, "build": {}, "dist": {}, ".next": {}, ".nuxt": {},
	"proc": {}, "sys": {}, "dev": {},
}

// RepoInfo describes one discovered repository.
type RepoInfo struct {
	Path          string `json:"path"`
	Name          string `json:"name"`
	RemoteURL     string `json:"remote_url"`
	CurrentBranch string `json:"current_branch"`
	IsMonitored   bool   `json:"is_monitored"`
}

// Scanner walks directory trees looking for .git directories.
type Scanner struct {
	maxDepth   int
	gitTimeout time.Duration
}

// New creates a scanner descending at most maxDepth levels below each
// scan root.
func New(maxDepth int) *Scanner {
	if maxDepth < 1 {
		maxDepth = DefaultMaxDepth
	}
	return &Scanner{maxDepth: maxDepth, gitTimeout: 5 * time.Second}
}

// IsGitRepo reports whether path contains a .git directory.
func IsGitRepo(path string) bool {
	info, err := os.Stat(filepath.Join(path, ".git"))
	return err == nil && info.IsDir()
}

func excluded(name string) bool {
	if _, ok := excludedDirs[name]; ok {
		return true
	}
	return strings.HasPrefix(name, ".") && name != "."
}

// Scan walks each root and returns every repository found. Permission
// errors are skipped, repositories are not descended into, and ctx
// cancellation stops the walk early.
func (s *Scanner) Scan(ctx context.Context, roots []string) ([]RepoInfo, error) {
	seen := map[string]struct{}{}
	out := []RepoInfo{}

	for _, root := range roots {
		root = filepath.Clean(root)
		if _, err := os.Stat(root); err != nil {
			continue
		}
		if err := s.walk(ctx, root, 0, seen, &out); err != nil {
			return out, err
		}
	}
	return out, nil
}

func (s *Scanner) walk(ctx context.Context, dir string, depth int, seen map[string]struct{}, out *[]RepoInfo) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if depth > s.maxDepth {
		return nil
	}

	if IsGitRepo(dir) {
		if _, dup := seen[dir]; !dup {
			seen[dir] = struct{}{}
			*out = append(*out, s.Inspect(ctx, dir))
		}
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	for _, e := range entries {
		if !e.IsDir() || excluded(e.Name()) {
			continue
		}
		if err := s.walk(ctx, filepath.Join(dir, e.Name()), depth+1, seen, out); err != nil {
			return err
		}
	}
	return nil
}

// Inspect gathers metadata for one repository path. Git command
// failures degrade to empty fields rather than errors.
func (s *Scanner) Inspect(ctx context.Context, repoPath string) RepoInfo {
	return RepoInfo{
		Path:          repoPath,
		Name:          filepath.Base(repoPath),
		RemoteURL:     s.git(ctx, repoPath, "config", "--get", "remote.origin.url"),
		CurrentBranch: s.git(ctx, repoPath, "rev-parse", "--abbrev-ref", "HEAD"),
		IsMonitored:   hooks.Installed(repoPath),
	}
}

func (s *Scanner) git(ctx context.Context, dir string, args ...string) string {
	ctx, cancel := context.WithTimeout(ctx, s.gitTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
