// Package hooks installs and removes the Git hooks that report commit
// and push activity to the tracking server. Generated hooks carry a
// marker comment so foreign hooks are never silently overwritten.
package hooks

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Marker identifies a hook script generated by this tool.
const Marker = "GitSee"

const (
	postCommitName = "post-commit"
	prePushName    = "pre-push"
	backupSuffix   = ".gitsee.bak"
)

// Installer writes hook scripts into repositories. Scripts report to the
// HTTP API at ServerURL.
type Installer struct {
	serverURL string
	authToken string
	logger    *slog.Logger
}

// NewInstaller creates an installer whose generated hooks post to
// serverURL. authToken may be empty when the API runs unauthenticated.
func NewInstaller(serverURL, authToken string, logger *slog.Logger) *Installer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Installer{
		serverURL: strings.TrimRight(serverURL, "/"),
		authToken: authToken,
		logger:    logger,
	}
}

// Status reports per-hook install state for one repository.
type Status struct {
	RepoPath   string `json:"repo_path"`
	PostCommit bool   `json:"post_commit"`
	PrePush    bool   `json:"pre_push"`
}

// hooksDir returns the hooks directory for repoPath, verifying the path
// is actually a Git repository.
func hooksDir(repoPath string) (string, error) {
	gitDir := filepath.Join(repoPath, ".git")
	info, err := os.Stat(gitDir)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("hooks: %s is not a git repository", repoPath)
	}
	return filepath.Join(gitDir, "hooks"), nil
}

// Installed reports whether the post-commit hook in repoPath was
// generated by this tool.
func Installed(repoPath string) bool {
	data, err := os.ReadFile(filepath.Join(repoPath, ".git", "hooks", postCommitName))
	if err != nil {
		return false
	}
	return strings.Contains(string(data), Marker)
}

// Install writes the post-commit and pre-push hooks into repoPath.
// Existing foreign hooks are backed up beside the original before being
// replaced; hooks we already own are rewritten in place.
func (in *Installer) Install(repoPath string) error {
	dir, err := hooksDir(repoPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("hooks: create hooks dir: %w", err)
	}

	scripts := map[string]string{
		postCommitName: in.postCommitScript(),
		prePushName:    in.prePushScript(),
	}
	for name, body := range scripts {
		target := filepath.Join(dir, name)
		if err := backupForeign(target); err != nil {
			return err
		}
		if err := os.WriteFile(target, []byte(body), 0o755); err != nil {
			return fmt.Errorf("hooks: write %s: %w", name, err)
		}
	}

	in.logger.Info("hooks: installed", slog.String("repo", repoPath))
	return nil
}

// Uninstall removes hooks we generated from repoPath. Foreign hooks and
// missing files are left alone.
func (in *Installer) Uninstall(repoPath string) error {
	dir, err := hooksDir(repoPath)
	if err != nil {
		return err
	}

	for _, name := range []string{postCommitName, prePushName} {
		target := filepath.Join(dir, name)
		data, err := os.ReadFile(target)
		if err != nil {
			continue
		}
		if !strings.Contains(string(data), Marker) {
			continue
		}
		if err := os.Remove(target); err != nil {
			return fmt.Errorf("hooks: remove %s: %w", name, err)
		}
	}

	in.logger.Info("hooks: uninstalled", slog.String("repo", repoPath))
	return nil
}

// CheckStatus inspects which of our hooks are present in repoPath.
func (in *Installer) CheckStatus(repoPath string) (Status, error) {
	dir, err := hooksDir(repoPath)
	if err != nil {
		return Status{}, err
	}

	st := Status{RepoPath: repoPath}
	for _, name := range []string{postCommitName, prePushName} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		ours := strings.Contains(string(data), Marker)
		if name == postCommitName {
			st.PostCommit = ours
		} else {
			st.PrePush = ours
		}
	}
	return st, nil
}

// backupForeign moves an existing hook that we did not generate to a
// .gitsee.bak file next to it.
func backupForeign(target string) error {
	data, err := os.ReadFile(target)
	if err != nil {
		return nil
	}
	if strings.Contains(string(data), Marker) {
		return nil
	}
	if err := os.Rename(target, target+backupSuffix); err != nil {
		return fmt.Errorf("hooks: back up existing hook: %w", err)
	}
	return nil
}

func (in *Installer) authHeader() string {
	if in.authToken == "" {
		return ""
	}
	return fmt.Sprintf(" -H 'Authorization: Bearer %s'", in.authToken)
}

// postCommitScript reports a commit record, including diff shortstat
// numbers, to the activities endpoint. The commit message is sanitized
// with sed so embedded quotes and newlines survive JSON embedding.
func (in *Installer) postCommitScript() string {
	return fmt.Sprintf(`#!/bin/sh
# %s post-commit hook (generated, do not edit)

REPO_PATH="$(git rev-parse --show-toplevel)"
BRANCH_NAME="$(git rev-parse --abbrev-ref HEAD)"
COMMIT_HASH="$(git rev-parse HEAD)"
COMMIT_MESSAGE="$(git log -1 --pretty=%%B | sed ':a;N;$!ba;s/\\/\\\\/g;s/"/\\"/g;s/\n/\\n/g')"
AUTHOR_NAME="$(git log -1 --pretty=%%an | sed 's/\\/\\\\/g;s/"/\\"/g')"
AUTHOR_EMAIL="$(git log -1 --pretty=%%ae)"
SHORTSTAT="$(git diff --shortstat HEAD~1 HEAD 2>/dev/null || git diff --shortstat "$(git hash-object -t tree /dev/null)" HEAD)"

curl -s -m 5 -X POST%s \
  -H 'Content-Type: application/json' \
  -d "{\"activity_type\":\"commit\",\"repo_path\":\"$REPO_PATH\",\"branch_name\":\"$BRANCH_NAME\",\"commit_hash\":\"$COMMIT_HASH\",\"commit_message\":\"$COMMIT_MESSAGE\",\"author_name\":\"$AUTHOR_NAME\",\"author_email\":\"$AUTHOR_EMAIL\",\"shortstat\":\"$SHORTSTAT\"}" \
  %s/api/v1/activities >/dev/null 2>&1 || true

exit 0
`, Marker, in.authHeader(), in.serverURL)
}

// prePushScript reports a push record for the current branch head.
func (in *Installer) prePushScript() string {
	return fmt.Sprintf(`#!/bin/sh
# %s pre-push hook (generated, do not edit)

REPO_PATH="$(git rev-parse --show-toplevel)"
BRANCH_NAME="$(git rev-parse --abbrev-ref HEAD)"
COMMIT_HASH="$(git rev-parse HEAD)"
AUTHOR_NAME="$(git config user.name | sed 's/\\/\\\\/g;s/"/\\"/g')"
AUTHOR_EMAIL="$(git config user.email)"

curl -s -m 5 -X POST%s \
  -H 'Content-Type: application/json' \
  -d "{\"activity_type\":\"push\",\"repo_path\":\"$REPO_PATH\",\"branch_name\":\"$BRANCH_NAME\",\"commit_hash\":\"$COMMIT_HASH\",\"author_name\":\"$AUTHOR_NAME\",\"author_email\":\"$AUTHOR_EMAIL\"}" \
  %s/api/v1/activities >/dev/null 2>&1 || true

exit 0
`, Marker, in.authHeader(), in.serverURL)
}

// ParseShortstat extracts counters from git diff --shortstat output,
// e.g. "3 files changed, 15 insertions(+), 5 deletions(-)". Absent
// sections yield zero.
func ParseShortstat(s string) (filesChanged, insertions, deletions int) {
	for _, part := range strings.Split(s, ",") {
		fields := strings.Fields(strings.TrimSpace(part))
		if len(fields) < 2 {
			continue
		}
		n, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		switch {
		case strings.HasPrefix(fields[1], "file"):
			filesChanged = n
		case strings.HasPrefix(fields[1], "insertion"):
			insertions = n
		case strings.HasPrefix(fields[1], "deletion"):
			deletions = n
		}
	}
	return filesChanged, insertions, deletions
}
