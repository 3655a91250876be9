package worktree

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calebreed/gitbridge/internal/gitcmd"
	"github.com/calebreed/gitbridge/internal/session"
)

type fakeRunner struct {
	mu       sync.Mutex
	requests []gitcmd.Request
	respond  func(req gitcmd.Request) (gitcmd.Result, error)
}

func (f *fakeRunner) Run(ctx context.Context, req gitcmd.Request) (gitcmd.Result, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.respond != nil {
		return f.respond(req)
	}
	return gitcmd.Result{}, nil
}

func (f *fakeRunner) recorded() []gitcmd.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]gitcmd.Request, len(f.requests))
	copy(out, f.requests)
	return out
}

func hasArgs(req gitcmd.Request, want string) bool {
	return strings.Contains(strings.Join(req.Args, " "), want)
}

type fixture struct {
	mgr    *Manager
	runner *fakeRunner
	store  *session.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	runner := &fakeRunner{}
	store := session.NewStore(t.TempDir(), "", time.Hour)
	t.Cleanup(store.Shutdown)
	return &fixture{
		mgr:    NewManager(gitcmd.NewCLI(runner, "git", "gh", time.Second), store),
		runner: runner,
		store:  store,
	}
}

// addWorktree registers a worktree record without going through git.
func (f *fixture) addWorktree(t *testing.T, sessionID, path, branch, repoRoot string) *session.Worktree {
	t.Helper()
	sess, err := f.store.Get(sessionID)
	require.NoError(t, err)
	wt := &session.Worktree{Path: path, Branch: branch, RepoRoot: repoRoot, CreatedAt: time.Now()}
	sess.AddWorktree(wt)
	return wt
}

func TestCreate_NewBranch(t *testing.T) {
	f := newFixture(t)
	f.runner.respond = func(req gitcmd.Request) (gitcmd.Result, error) {
		switch {
		case hasArgs(req, "rev-parse --show-toplevel"):
			return gitcmd.Result{Stdout: "/repo\n"}, nil
		case hasArgs(req, "rev-parse --verify"):
			return gitcmd.Result{ExitCode: 1}, fmt.Errorf("exit 1")
		}
		return gitcmd.Result{}, nil
	}

	wt, err := f.mgr.Create(context.Background(), "sess-1", "/repo/sub", "feature-x", "main")
	require.NoError(t, err)
	assert.Equal(t, "feature-x", wt.Branch)
	assert.Equal(t, "/repo", wt.RepoRoot)
	assert.Contains(t, wt.Path, "worktrees")
	assert.Contains(t, wt.Path, "feature-x-")

	reqs := f.runner.recorded()
	add := reqs[len(reqs)-1]
	assert.Equal(t, []string{"worktree", "add", "-b", "feature-x", wt.Path, "main"}, add.Args)
	assert.Equal(t, "/repo", add.Dir)

	sess, _ := f.store.Lookup("sess-1")
	assert.Len(t, sess.Worktrees(), 1)
}

func TestCreate_ExistingBranch(t *testing.T) {
	f := newFixture(t)
	f.runner.respond = func(req gitcmd.Request) (gitcmd.Result, error) {
		if hasArgs(req, "rev-parse --show-toplevel") {
			return gitcmd.Result{Stdout: "/repo\n"}, nil
		}
		// rev-parse --verify succeeds: branch already exists.
		return gitcmd.Result{}, nil
	}

	wt, err := f.mgr.Create(context.Background(), "sess-1", "/repo", "existing", "")
	require.NoError(t, err)

	reqs := f.runner.recorded()
	add := reqs[len(reqs)-1]
	assert.Equal(t, []string{"worktree", "add", wt.Path, "existing"}, add.Args)
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.mgr.Create(context.Background(), "sess-1", "/repo", "", "")
	require.Error(t, err)
	_, err = f.mgr.Create(context.Background(), "sess-1", "/repo", "-flag", "")
	require.Error(t, err)
	_, err = f.mgr.Create(context.Background(), "sess-1", "", "branch", "")
	require.Error(t, err)

	f.runner.respond = func(req gitcmd.Request) (gitcmd.Result, error) {
		return gitcmd.Result{ExitCode: 128}, fmt.Errorf("exit 128: not a git repository")
	}
	_, err = f.mgr.Create(context.Background(), "sess-1", "/not-a-repo", "branch", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a git repository")
}

func TestList(t *testing.T) {
	f := newFixture(t)
	f.addWorktree(t, "sess-1", "/wt/a", "feat-a", "/repo")
	f.addWorktree(t, "sess-1", "/wt/b", "feat-b", "/repo")

	f.runner.respond = func(req gitcmd.Request) (gitcmd.Result, error) {
		switch {
		case hasArgs(req, "rev-parse --short HEAD"):
			return gitcmd.Result{Stdout: "abc1234\n"}, nil
		case hasArgs(req, "status --porcelain"):
			if req.Dir == "/wt/b" {
				return gitcmd.Result{Stdout: " M file.go\n"}, nil
			}
			return gitcmd.Result{}, nil
		}
		return gitcmd.Result{}, nil
	}

	entries, err := f.mgr.List(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "abc1234", entries[0].Head)
	assert.False(t, entries[0].Dirty)
	assert.True(t, entries[1].Dirty)

	entries, err = f.mgr.List(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRemove(t *testing.T) {
	f := newFixture(t)
	f.addWorktree(t, "sess-1", "/wt/a", "feat-a", "/repo")

	require.NoError(t, f.mgr.Remove(context.Background(), "sess-1", "/wt/a", false))

	reqs := f.runner.recorded()
	rm := reqs[len(reqs)-1]
	assert.Equal(t, []string{"worktree", "remove", "/wt/a"}, rm.Args)
	assert.Equal(t, "/repo", rm.Dir)

	sess, _ := f.store.Lookup("sess-1")
	assert.Empty(t, sess.Worktrees())

	// Unknown path and unknown session both fail.
	require.Error(t, f.mgr.Remove(context.Background(), "sess-1", "/wt/a", false))
	require.Error(t, f.mgr.Remove(context.Background(), "nope", "/wt/a", false))
}

func TestRemove_FailureKeepsRecord(t *testing.T) {
	f := newFixture(t)
	f.addWorktree(t, "sess-1", "/wt/a", "feat-a", "/repo")

	f.runner.respond = func(req gitcmd.Request) (gitcmd.Result, error) {
		return gitcmd.Result{ExitCode: 1}, fmt.Errorf("exit 1: contains modified files")
	}

	err := f.mgr.Remove(context.Background(), "sess-1", "/wt/a", false)
	require.Error(t, err)

	// The record survives so a forced retry can find it.
	sess, _ := f.store.Lookup("sess-1")
	assert.Len(t, sess.Worktrees(), 1)

	f.runner.respond = nil
	require.NoError(t, f.mgr.Remove(context.Background(), "sess-1", "/wt/a", true))
	reqs := f.runner.recorded()
	assert.Equal(t, []string{"worktree", "remove", "--force", "/wt/a"}, reqs[len(reqs)-1].Args)
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	f.addWorktree(t, "sess-1", "/wt/a", "feat-a", "/repo")

	f.runner.respond = func(req gitcmd.Request) (gitcmd.Result, error) {
		switch {
		case hasArgs(req, "rev-parse --short HEAD"):
			return gitcmd.Result{Stdout: "abc1234\n"}, nil
		case hasArgs(req, "status --porcelain"):
			return gitcmd.Result{Stdout: " M main.go\n?? new.go\n"}, nil
		case hasArgs(req, "rev-list --left-right --count"):
			return gitcmd.Result{Stdout: "2\t5\n"}, nil
		}
		return gitcmd.Result{}, nil
	}

	status, err := f.mgr.Status(context.Background(), "sess-1", "/wt/a")
	require.NoError(t, err)
	assert.Equal(t, "feat-a", status.Branch)
	assert.Equal(t, "abc1234", status.Head)
	assert.True(t, status.Dirty)
	assert.Equal(t, []string{" M main.go", "?? new.go"}, status.Changes)
	assert.Equal(t, 2, status.Behind)
	assert.Equal(t, 5, status.Ahead)

	_, err = f.mgr.Status(context.Background(), "sess-1", "/nope")
	require.Error(t, err)
}

func TestCleanup(t *testing.T) {
	f := newFixture(t)
	f.addWorktree(t, "sess-1", "/wt/a", "feat-a", "/repo1")
	f.addWorktree(t, "sess-1", "/wt/b", "feat-b", "/repo1")
	f.addWorktree(t, "sess-1", "/wt/c", "feat-c", "/repo2")

	f.runner.respond = func(req gitcmd.Request) (gitcmd.Result, error) {
		if hasArgs(req, "worktree remove") && hasArgs(req, "/wt/b") {
			return gitcmd.Result{ExitCode: 1}, fmt.Errorf("exit 1: locked")
		}
		return gitcmd.Result{}, nil
	}

	removed, problems := f.mgr.Cleanup(context.Background(), "sess-1")
	assert.Equal(t, 2, removed)
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0], "/wt/b")

	// Every affected repo was pruned.
	pruned := map[string]bool{}
	for _, req := range f.runner.recorded() {
		if hasArgs(req, "worktree prune") {
			pruned[req.Dir] = true
		}
	}
	assert.True(t, pruned["/repo1"])
	assert.True(t, pruned["/repo2"])

	sess, _ := f.store.Lookup("sess-1")
	assert.Empty(t, sess.Worktrees())
}

func TestParseStrategy(t *testing.T) {
	for in, want := range map[string]Strategy{
		"ours":   StrategyOurs,
		"theirs": StrategyTheirs,
		"manual": StrategyManual,
		"":       StrategyManual,
	} {
		got, err := ParseStrategy(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseStrategy("recursive")
	require.Error(t, err)
}

func TestMerge_OursTheirs(t *testing.T) {
	f := newFixture(t)
	f.addWorktree(t, "sess-1", "/wt/a", "feat-a", "/repo")

	f.runner.respond = func(req gitcmd.Request) (gitcmd.Result, error) {
		return gitcmd.Result{Stdout: "Merge made by the 'ort' strategy.\n"}, nil
	}

	for _, strategy := range []Strategy{StrategyOurs, StrategyTheirs} {
		result, err := f.mgr.Merge(context.Background(), "sess-1", "/wt/a", strategy)
		require.NoError(t, err)
		assert.True(t, result.Merged)
		assert.Equal(t, strategy, result.Strategy)
		assert.Equal(t, "feat-a", result.Branch)

		reqs := f.runner.recorded()
		merge := reqs[len(reqs)-1]
		assert.True(t, hasArgs(merge, "merge -X "+string(strategy)+" --no-edit feat-a"))
		assert.True(t, hasArgs(merge, "user.name=gitbridge"))
		assert.Equal(t, "/repo", merge.Dir)
	}
}

func TestMerge_OursFailureAborts(t *testing.T) {
	f := newFixture(t)
	f.addWorktree(t, "sess-1", "/wt/a", "feat-a", "/repo")

	f.runner.respond = func(req gitcmd.Request) (gitcmd.Result, error) {
		if hasArgs(req, "merge -X ours") {
			return gitcmd.Result{ExitCode: 1}, fmt.Errorf("exit 1: add/add conflict")
		}
		return gitcmd.Result{}, nil
	}

	_, err := f.mgr.Merge(context.Background(), "sess-1", "/wt/a", StrategyOurs)
	require.Error(t, err)

	var aborted bool
	for _, req := range f.runner.recorded() {
		if hasArgs(req, "merge --abort") {
			aborted = true
		}
	}
	assert.True(t, aborted)
}

func TestMerge_ManualClean(t *testing.T) {
	f := newFixture(t)
	f.addWorktree(t, "sess-1", "/wt/a", "feat-a", "/repo")

	result, err := f.mgr.Merge(context.Background(), "sess-1", "/wt/a", StrategyManual)
	require.NoError(t, err)
	assert.True(t, result.Merged)
	assert.Empty(t, result.Conflicts)

	reqs := f.runner.recorded()
	assert.True(t, hasArgs(reqs[0], "merge --no-commit --no-ff feat-a"))
	commit := reqs[len(reqs)-1]
	assert.True(t, hasArgs(commit, "commit -m Merge branch 'feat-a'"))
}

func TestMerge_ManualConflict(t *testing.T) {
	f := newFixture(t)
	f.addWorktree(t, "sess-1", "/wt/a", "feat-a", "/repo")

	f.runner.respond = func(req gitcmd.Request) (gitcmd.Result, error) {
		switch {
		case hasArgs(req, "merge --no-commit"):
			return gitcmd.Result{ExitCode: 1}, fmt.Errorf("exit 1: conflict")
		case hasArgs(req, "diff --name-only --diff-filter=U"):
			return gitcmd.Result{Stdout: "main.go\n"}, nil
		case hasArgs(req, "show :2:main.go"):
			return gitcmd.Result{Stdout: "port := 8080\n"}, nil
		case hasArgs(req, "show :3:main.go"):
			return gitcmd.Result{Stdout: "port := 9090\n"}, nil
		}
		return gitcmd.Result{}, nil
	}

	result, err := f.mgr.Merge(context.Background(), "sess-1", "/wt/a", StrategyManual)
	require.NoError(t, err)
	assert.False(t, result.Merged)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, "main.go", result.Conflicts[0].File)
	assert.Contains(t, result.Conflicts[0].Diff, "[-")
	assert.Contains(t, result.Conflicts[0].Diff, "{+")

	var aborted bool
	for _, req := range f.runner.recorded() {
		if hasArgs(req, "merge --abort") {
			aborted = true
		}
	}
	assert.True(t, aborted)
}

func TestMerge_ManualNonConflictFailure(t *testing.T) {
	f := newFixture(t)
	f.addWorktree(t, "sess-1", "/wt/a", "feat-a", "/repo")

	f.runner.respond = func(req gitcmd.Request) (gitcmd.Result, error) {
		if hasArgs(req, "merge --no-commit") {
			return gitcmd.Result{ExitCode: 128}, fmt.Errorf("exit 128: refusing to merge unrelated histories")
		}
		return gitcmd.Result{}, nil
	}

	_, err := f.mgr.Merge(context.Background(), "sess-1", "/wt/a", StrategyManual)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unrelated histories")
}

func TestMerge_ManualFailureSurvivesFailedAbort(t *testing.T) {
	f := newFixture(t)
	f.addWorktree(t, "sess-1", "/wt/a", "feat-a", "/repo")

	// When the merge never got going there is nothing to abort, so the
	// abort fails too; the original merge error must still come through.
	f.runner.respond = func(req gitcmd.Request) (gitcmd.Result, error) {
		switch {
		case hasArgs(req, "merge --no-commit"):
			return gitcmd.Result{ExitCode: 128}, fmt.Errorf("exit 128: refusing to merge unrelated histories")
		case hasArgs(req, "merge --abort"):
			return gitcmd.Result{ExitCode: 128}, fmt.Errorf("exit 128: there is no merge to abort")
		}
		return gitcmd.Result{}, nil
	}

	_, err := f.mgr.Merge(context.Background(), "sess-1", "/wt/a", StrategyManual)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unrelated histories")
	assert.NotContains(t, err.Error(), "no merge to abort")
}

func TestSanitizeBranch(t *testing.T) {
	assert.Equal(t, "feature-login", sanitizeBranch("feature/login"))
	assert.Equal(t, "a-b_c", sanitizeBranch("a b_c"))
	assert.Len(t, sanitizeBranch(strings.Repeat("x", 64)), 40)
}
