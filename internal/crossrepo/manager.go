// Package crossrepo provides session-scoped GitHub repo workspaces: a
// shallow clone under the session temp root plus branch/commit/push/pr and
// confined file operations over it.
package crossrepo

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/calebreed/gitbridge/internal/config"
	"github.com/calebreed/gitbridge/internal/fileutil"
	"github.com/calebreed/gitbridge/internal/ghauth"
	"github.com/calebreed/gitbridge/internal/gitcmd"
	"github.com/calebreed/gitbridge/internal/logger"
	"github.com/calebreed/gitbridge/internal/session"
)

// maxReadBytes caps repo_read responses so a stray binary can't blow up a
// tool result.
const maxReadBytes = 2 << 20

// PolicyProvider supplies the current tool policy. Satisfied by
// config.PolicyWatcher.
type PolicyProvider interface {
	Policy() *config.Policy
}

// Manager implements the cross-repo operations.
type Manager struct {
	cli    *gitcmd.CLI
	tokens *ghauth.Source
	store  *session.Store
	git    config.GitConfig
	policy PolicyProvider
}

// NewManager creates a cross-repo manager.
func NewManager(cli *gitcmd.CLI, tokens *ghauth.Source, store *session.Store, git config.GitConfig, policy PolicyProvider) *Manager {
	return &Manager{
		cli:    cli,
		tokens: tokens,
		store:  store,
		git:    git,
		policy: policy,
	}
}

// Clone ensures a workspace for owner/repo exists in the session and
// returns it. Cloning is idempotent per session: a second clone of the
// same repo returns the existing workspace.
func (m *Manager) Clone(ctx context.Context, sessionID, owner, repo string) (*session.Workspace, error) {
	if err := validateRepoRef(owner, repo); err != nil {
		return nil, err
	}

	sess, err := m.store.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if ws, ok := sess.Workspace(owner, repo); ok {
		return ws, nil
	}

	token, err := m.tokens.Token(ctx, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("resolve token for %s/%s: %w", owner, repo, err)
	}

	dest := filepath.Join(sess.Root(), "repos", owner, repo)
	if err := os.MkdirAll(filepath.Dir(dest), 0700); err != nil {
		return nil, fmt.Errorf("create workspace parent: %w", err)
	}

	cloneURL := fmt.Sprintf("https://github.com/%s/%s.git", owner, repo)
	args := append(authArgs(token),
		"clone", "--depth", fmt.Sprintf("%d", m.cloneDepth()), cloneURL, dest)

	if _, err := m.cli.GitWithSecrets(ctx, filepath.Dir(dest), secretsFor(token), args...); err != nil {
		return nil, fmt.Errorf("clone %s/%s: %w", owner, repo, err)
	}

	defaultBranch := m.detectDefaultBranch(ctx, dest)

	ws := &session.Workspace{
		Owner:         owner,
		Repo:          repo,
		Path:          dest,
		DefaultBranch: defaultBranch,
		CreatedAt:     time.Now(),
		Token:         token,
	}
	ws.SetBranch(defaultBranch)
	sess.PutWorkspace(ws)

	logger.GetLogger().Info().
		Str("session", sessionID).
		Str("repo", owner+"/"+repo).
		Str("branch", defaultBranch).
		Msg("workspace cloned")

	return ws, nil
}

// Branch switches the workspace to branch, creating it if needed.
func (m *Manager) Branch(ctx context.Context, sessionID, owner, repo, branch string) (*session.Workspace, error) {
	if err := validateRefName(branch); err != nil {
		return nil, err
	}

	ws, err := m.workspace(sessionID, owner, repo)
	if err != nil {
		return nil, err
	}

	// switch to an existing branch, or create it off the current HEAD
	if _, err := m.cli.Git(ctx, ws.Path, "rev-parse", "--verify", "--quiet", "refs/heads/"+branch); err == nil {
		if _, err := m.cli.Git(ctx, ws.Path, "switch", branch); err != nil {
			return nil, fmt.Errorf("switch branch: %w", err)
		}
	} else {
		if _, err := m.cli.Git(ctx, ws.Path, "switch", "-c", branch); err != nil {
			return nil, fmt.Errorf("create branch: %w", err)
		}
	}

	ws.SetBranch(branch)
	return ws, nil
}

// Commit stages the given paths (all changes when empty) and commits.
// Returns the new HEAD SHA.
func (m *Manager) Commit(ctx context.Context, sessionID, owner, repo, message string, paths []string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", fmt.Errorf("commit message is required")
	}

	ws, err := m.workspace(sessionID, owner, repo)
	if err != nil {
		return "", err
	}

	if len(paths) == 0 {
		if _, err := m.cli.Git(ctx, ws.Path, "add", "-A"); err != nil {
			return "", fmt.Errorf("stage changes: %w", err)
		}
	} else {
		addArgs := []string{"add", "--"}
		for _, p := range paths {
			if _, err := fileutil.ResolveUnder(ws.Path, p); err != nil {
				return "", fmt.Errorf("path %q: %w", p, err)
			}
			addArgs = append(addArgs, filepath.Clean(p))
		}
		if _, err := m.cli.Git(ctx, ws.Path, addArgs...); err != nil {
			return "", fmt.Errorf("stage paths: %w", err)
		}
	}

	// Empty commits are rejected: diff --cached exits 0 when nothing staged.
	if _, err := m.cli.Git(ctx, ws.Path, "diff", "--cached", "--quiet"); err == nil {
		return "", fmt.Errorf("nothing to commit")
	}

	commitArgs := append(identityArgs(), "commit", "-m", message)
	if _, err := m.cli.Git(ctx, ws.Path, commitArgs...); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	head, err := m.cli.Git(ctx, ws.Path, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	return head.Output(), nil
}

// Push pushes the current branch to origin, setting upstream.
func (m *Manager) Push(ctx context.Context, sessionID, owner, repo string) (string, error) {
	ws, err := m.workspace(sessionID, owner, repo)
	if err != nil {
		return "", err
	}

	branch := ws.Branch()
	args := append(authArgs(ws.Token), "push", "-u", "origin", branch)
	result, err := m.cli.GitWithSecrets(ctx, ws.Path, secretsFor(ws.Token), args...)
	if err != nil {
		return "", fmt.Errorf("push %s: %w", branch, err)
	}
	out := result.Output()
	if out == "" {
		out = strings.TrimSpace(result.Stderr)
	}
	return out, nil
}

// CreatePR opens a pull request from the current branch via gh. Returns
// the PR URL. base defaults to the workspace default branch.
func (m *Manager) CreatePR(ctx context.Context, sessionID, owner, repo, title, body, base string) (string, error) {
	if strings.TrimSpace(title) == "" {
		return "", fmt.Errorf("pr title is required")
	}

	ws, err := m.workspace(sessionID, owner, repo)
	if err != nil {
		return "", err
	}
	if base == "" {
		base = ws.DefaultBranch
	}
	if err := validateRefName(base); err != nil {
		return "", err
	}

	result, err := m.cli.Gh(ctx, ws.Path, ws.Token,
		"pr", "create",
		"--title", title,
		"--body", body,
		"--base", base,
		"--head", ws.Branch(),
	)
	if err != nil {
		return "", fmt.Errorf("create pr: %w", err)
	}

	// gh prints the PR URL as the last line of stdout.
	lines := strings.Split(result.Output(), "\n")
	return strings.TrimSpace(lines[len(lines)-1]), nil
}

// Read returns the contents of a file inside the workspace.
func (m *Manager) Read(ctx context.Context, sessionID, owner, repo, path string) (string, error) {
	ws, err := m.workspace(sessionID, owner, repo)
	if err != nil {
		return "", err
	}

	full, err := fileutil.ResolveUnder(ws.Path, path)
	if err != nil {
		return "", fmt.Errorf("path %q: %w", path, err)
	}

	info, err := os.Stat(full)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > maxReadBytes {
		return "", fmt.Errorf("%s is too large (%d bytes, limit %d)", path, info.Size(), maxReadBytes)
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

// Write writes content to a file inside the workspace, creating parent
// directories as needed.
func (m *Manager) Write(ctx context.Context, sessionID, owner, repo, path, content string) error {
	ws, err := m.workspace(sessionID, owner, repo)
	if err != nil {
		return err
	}

	full, err := fileutil.ResolveUnder(ws.Path, path)
	if err != nil {
		return fmt.Errorf("path %q: %w", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// List returns the entries of a directory inside the workspace. Directory
// names carry a trailing slash. Entries are sorted.
func (m *Manager) List(ctx context.Context, sessionID, owner, repo, path string) ([]string, error) {
	ws, err := m.workspace(sessionID, owner, repo)
	if err != nil {
		return nil, err
	}

	full := ws.Path
	if path != "" && path != "." {
		full, err = fileutil.ResolveUnder(ws.Path, path)
		if err != nil {
			return nil, fmt.Errorf("path %q: %w", path, err)
		}
	}

	entries, err := os.ReadDir(full)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", path, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Exec runs an allowlisted command inside the workspace with a hard
// timeout. The captured result is returned even when the command fails.
func (m *Manager) Exec(ctx context.Context, sessionID, owner, repo string, command []string, timeout time.Duration) (gitcmd.Result, error) {
	if len(command) == 0 {
		return gitcmd.Result{ExitCode: -1}, fmt.Errorf("command is required")
	}

	policy := m.policy.Policy()
	if !policy.ExecAllowed(command[0]) {
		return gitcmd.Result{ExitCode: -1}, fmt.Errorf("command %q is not allowed by policy", command[0])
	}

	ws, err := m.workspace(sessionID, owner, repo)
	if err != nil {
		return gitcmd.Result{ExitCode: -1}, err
	}

	return m.cli.Exec(ctx, ws.Path, command[0], command[1:], policy.ExecTimeout(timeout))
}

// Discard removes one workspace: clone directory gone, cached token
// forgotten.
func (m *Manager) Discard(sessionID, owner, repo string) error {
	sess, ok := m.store.Lookup(sessionID)
	if !ok {
		return fmt.Errorf("unknown session: %s", sessionID)
	}

	ws, ok := sess.DropWorkspace(owner, repo)
	if !ok {
		return fmt.Errorf("no workspace for %s/%s in session %s", owner, repo, sessionID)
	}

	m.tokens.Forget(owner, repo)
	if err := os.RemoveAll(ws.Path); err != nil {
		return fmt.Errorf("remove workspace: %w", err)
	}
	return nil
}

// ReleaseTokens forgets cached tokens for every workspace in the session.
// Wired as the session store's end hook.
func (m *Manager) ReleaseTokens(sess *session.Session) {
	for _, ws := range sess.Workspaces() {
		m.tokens.Forget(ws.Owner, ws.Repo)
	}
}

func (m *Manager) workspace(sessionID, owner, repo string) (*session.Workspace, error) {
	if err := validateRepoRef(owner, repo); err != nil {
		return nil, err
	}
	sess, ok := m.store.Lookup(sessionID)
	if !ok {
		return nil, fmt.Errorf("unknown session: %s", sessionID)
	}
	ws, ok := sess.Workspace(owner, repo)
	if !ok {
		return nil, fmt.Errorf("no workspace for %s/%s: clone it first", owner, repo)
	}
	return ws, nil
}

func (m *Manager) cloneDepth() int {
	if m.git.CloneDepth > 0 {
		return m.git.CloneDepth
	}
	return 1
}

// detectDefaultBranch asks the clone for origin/HEAD, falling back to the
// checked-out branch.
func (m *Manager) detectDefaultBranch(ctx context.Context, dir string) string {
	if result, err := m.cli.Git(ctx, dir, "symbolic-ref", "--short", "refs/remotes/origin/HEAD"); err == nil {
		return strings.TrimPrefix(result.Output(), "origin/")
	}
	if result, err := m.cli.Git(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD"); err == nil {
		return result.Output()
	}
	return "main"
}

// authArgs builds the per-invocation auth header, the same mechanism
// actions/checkout uses. Nothing is written to git config on disk.
func authArgs(token string) []string {
	basic := base64.StdEncoding.EncodeToString([]byte("x-access-token:" + token))
	return []string{
		"-c", "http.https://github.com/.extraheader=AUTHORIZATION: basic " + basic,
	}
}

// secretsFor lists every form the token takes on a command line.
func secretsFor(token string) []string {
	return []string{
		token,
		base64.StdEncoding.EncodeToString([]byte("x-access-token:" + token)),
	}
}

// identityArgs pins a committer identity so commits work in environments
// with no global git config.
func identityArgs() []string {
	return []string{
		"-c", "user.name=gitbridge",
		"-c", "user.email=gitbridge@localhost",
	}
}
