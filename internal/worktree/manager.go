// Package worktree manages git worktrees scoped to a session. Worktree
// directories live under the session temp root and are removed when the
// session ends.
package worktree

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/calebreed/gitbridge/internal/gitcmd"
	"github.com/calebreed/gitbridge/internal/logger"
	"github.com/calebreed/gitbridge/internal/session"
)

// Manager implements the worktree operations.
type Manager struct {
	cli   *gitcmd.CLI
	store *session.Store
}

// NewManager creates a worktree manager.
func NewManager(cli *gitcmd.CLI, store *session.Store) *Manager {
	return &Manager{cli: cli, store: store}
}

// Entry is a session worktree joined with its live git state.
type Entry struct {
	Path      string    `json:"path"`
	Branch    string    `json:"branch"`
	RepoRoot  string    `json:"repo_root"`
	CreatedAt time.Time `json:"created_at"`
	Head      string    `json:"head,omitempty"`
	Dirty     bool      `json:"dirty"`
}

// Create adds a worktree for branch off the repo at repoRoot. The branch
// is created (from fromRef, default HEAD) when it does not exist yet.
func (m *Manager) Create(ctx context.Context, sessionID, repoRoot, branch, fromRef string) (*session.Worktree, error) {
	if branch == "" {
		return nil, fmt.Errorf("branch is required")
	}
	if strings.HasPrefix(branch, "-") {
		return nil, fmt.Errorf("invalid branch name: %q", branch)
	}

	root, err := m.repoTopLevel(ctx, repoRoot)
	if err != nil {
		return nil, err
	}

	sess, err := m.store.Get(sessionID)
	if err != nil {
		return nil, err
	}

	wtPath := filepath.Join(sess.Root(), "worktrees", sanitizeBranch(branch)+"-"+uuid.NewString()[:8])
	if err := os.MkdirAll(filepath.Dir(wtPath), 0700); err != nil {
		return nil, fmt.Errorf("create worktree parent: %w", err)
	}

	branchExists := false
	if _, err := m.cli.Git(ctx, root, "rev-parse", "--verify", "--quiet", "refs/heads/"+branch); err == nil {
		branchExists = true
	}

	var addArgs []string
	if branchExists {
		addArgs = []string{"worktree", "add", wtPath, branch}
	} else {
		addArgs = []string{"worktree", "add", "-b", branch, wtPath}
		if fromRef != "" {
			addArgs = append(addArgs, fromRef)
		}
	}
	if _, err := m.cli.Git(ctx, root, addArgs...); err != nil {
		return nil, fmt.Errorf("add worktree: %w", err)
	}

	wt := &session.Worktree{
		Path:      wtPath,
		Branch:    branch,
		RepoRoot:  root,
		CreatedAt: time.Now(),
	}
	sess.AddWorktree(wt)

	logger.GetLogger().Info().
		Str("session", sessionID).
		Str("branch", branch).
		Str("path", wtPath).
		Msg("worktree created")

	return wt, nil
}

// List returns the session's worktrees with current HEAD and dirty state.
func (m *Manager) List(ctx context.Context, sessionID string) ([]Entry, error) {
	sess, ok := m.store.Lookup(sessionID)
	if !ok {
		return nil, nil
	}

	records := sess.Worktrees()
	entries := make([]Entry, 0, len(records))
	for _, wt := range records {
		entry := Entry{
			Path:      wt.Path,
			Branch:    wt.Branch,
			RepoRoot:  wt.RepoRoot,
			CreatedAt: wt.CreatedAt,
		}
		if result, err := m.cli.Git(ctx, wt.Path, "rev-parse", "--short", "HEAD"); err == nil {
			entry.Head = result.Output()
		}
		if result, err := m.cli.Git(ctx, wt.Path, "status", "--porcelain"); err == nil {
			entry.Dirty = result.Output() != ""
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Remove deletes one session worktree. Only worktrees created in this
// session can be removed.
func (m *Manager) Remove(ctx context.Context, sessionID, path string, force bool) error {
	sess, ok := m.store.Lookup(sessionID)
	if !ok {
		return fmt.Errorf("unknown session: %s", sessionID)
	}

	wt, ok := sess.RemoveWorktree(path)
	if !ok {
		return fmt.Errorf("no worktree at %s in session %s", path, sessionID)
	}

	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, wt.Path)
	if _, err := m.cli.Git(ctx, wt.RepoRoot, args...); err != nil {
		// Re-record so the agent can retry with force.
		sess.AddWorktree(wt)
		return fmt.Errorf("remove worktree: %w", err)
	}
	return nil
}

// Status reports the state of one session worktree.
type Status struct {
	Branch  string   `json:"branch"`
	Head    string   `json:"head"`
	Dirty   bool     `json:"dirty"`
	Changes []string `json:"changes,omitempty"`
	Ahead   int      `json:"ahead"`
	Behind  int      `json:"behind"`
}

// Status returns branch, HEAD, pending changes, and ahead/behind counts
// for the worktree at path.
func (m *Manager) Status(ctx context.Context, sessionID, path string) (*Status, error) {
	wt, err := m.lookup(sessionID, path)
	if err != nil {
		return nil, err
	}

	status := &Status{Branch: wt.Branch}

	if result, err := m.cli.Git(ctx, wt.Path, "rev-parse", "--short", "HEAD"); err == nil {
		status.Head = result.Output()
	}

	result, err := m.cli.Git(ctx, wt.Path, "status", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	if out := result.Output(); out != "" {
		status.Dirty = true
		status.Changes = strings.Split(out, "\n")
	}

	// Ahead/behind of upstream; silently zero when no upstream is set.
	if result, err := m.cli.Git(ctx, wt.Path, "rev-list", "--left-right", "--count", "@{upstream}...HEAD"); err == nil {
		fields := strings.Fields(result.Output())
		if len(fields) == 2 {
			status.Behind, _ = strconv.Atoi(fields[0])
			status.Ahead, _ = strconv.Atoi(fields[1])
		}
	}

	return status, nil
}

// Cleanup removes every worktree in the session and prunes stale worktree
// metadata in each affected repo. Errors on individual worktrees are
// collected, not fatal.
func (m *Manager) Cleanup(ctx context.Context, sessionID string) (int, []string) {
	sess, ok := m.store.Lookup(sessionID)
	if !ok {
		return 0, nil
	}

	records := sess.ClearWorktrees()
	var problems []string
	repos := make(map[string]struct{})
	removed := 0

	for _, wt := range records {
		repos[wt.RepoRoot] = struct{}{}
		if _, err := m.cli.Git(ctx, wt.RepoRoot, "worktree", "remove", "--force", wt.Path); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", wt.Path, err))
			continue
		}
		removed++
	}

	for root := range repos {
		if _, err := m.cli.Git(ctx, root, "worktree", "prune"); err != nil {
			problems = append(problems, fmt.Sprintf("prune %s: %v", root, err))
		}
	}

	return removed, problems
}

func (m *Manager) lookup(sessionID, path string) (*session.Worktree, error) {
	sess, ok := m.store.Lookup(sessionID)
	if !ok {
		return nil, fmt.Errorf("unknown session: %s", sessionID)
	}
	for _, wt := range sess.Worktrees() {
		if wt.Path == path {
			return wt, nil
		}
	}
	return nil, fmt.Errorf("no worktree at %s in session %s", path, sessionID)
}

func (m *Manager) repoTopLevel(ctx context.Context, dir string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("repo path is required")
	}
	result, err := m.cli.Git(ctx, dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", fmt.Errorf("%s is not a git repository: %w", dir, err)
	}
	return result.Output(), nil
}

func sanitizeBranch(branch string) string {
	var b strings.Builder
	for _, r := range branch {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	s := b.String()
	if len(s) > 40 {
		s = s[:40]
	}
	return s
}
