package worktree

import (
	"context"
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Strategy selects how a worktree branch is merged back.
type Strategy string

const (
	// StrategyOurs resolves conflicts in favor of the target branch.
	StrategyOurs Strategy = "ours"
	// StrategyTheirs resolves conflicts in favor of the worktree branch.
	StrategyTheirs Strategy = "theirs"
	// StrategyManual attempts the merge without committing and reports
	// conflicts for the agent to resolve; the merge is aborted.
	StrategyManual Strategy = "manual"
)

// ParseStrategy validates a strategy string.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyOurs, StrategyTheirs, StrategyManual:
		return Strategy(s), nil
	case "":
		return StrategyManual, nil
	default:
		return "", fmt.Errorf("unknown merge strategy %q (want ours, theirs, or manual)", s)
	}
}

// Conflict describes one conflicted file from a manual merge attempt.
type Conflict struct {
	File string `json:"file"`
	// Diff is a word-level inspection diff between the two sides.
	Diff string `json:"diff,omitempty"`
}

// MergeResult reports the outcome of a merge.
type MergeResult struct {
	Merged    bool       `json:"merged"`
	Branch    string     `json:"branch"`
	Strategy  Strategy   `json:"strategy"`
	Conflicts []Conflict `json:"conflicts,omitempty"`
	Output    string     `json:"output,omitempty"`
}

// maxConflictFiles bounds how many per-file diffs a merge result carries.
const maxConflictFiles = 10

// Merge merges the worktree's branch into the branch currently checked
// out at its repo root.
func (m *Manager) Merge(ctx context.Context, sessionID, path string, strategy Strategy) (*MergeResult, error) {
	wt, err := m.lookup(sessionID, path)
	if err != nil {
		return nil, err
	}

	result := &MergeResult{Branch: wt.Branch, Strategy: strategy}

	switch strategy {
	case StrategyOurs, StrategyTheirs:
		args := append(identityArgs(),
			"merge", "-X", string(strategy), "--no-edit", wt.Branch)
		out, err := m.cli.Git(ctx, wt.RepoRoot, args...)
		if err != nil {
			// -X only resolves content conflicts; structural conflicts
			// (add/add, delete/modify) still fail. Leave the repo clean.
			_, _ = m.cli.Git(ctx, wt.RepoRoot, "merge", "--abort")
			return nil, fmt.Errorf("merge %s with -X %s: %w", wt.Branch, strategy, err)
		}
		result.Merged = true
		result.Output = out.Output()
		return result, nil

	case StrategyManual:
		return m.mergeManual(ctx, wt.RepoRoot, wt.Branch, result)

	default:
		return nil, fmt.Errorf("unknown merge strategy %q", strategy)
	}
}

// mergeManual tries a no-commit merge. A clean merge is committed; a
// conflicted one is reported with inspection diffs and aborted.
func (m *Manager) mergeManual(ctx context.Context, repoRoot, branch string, result *MergeResult) (*MergeResult, error) {
	_, mergeErr := m.cli.Git(ctx, repoRoot, "merge", "--no-commit", "--no-ff", branch)
	if mergeErr == nil {
		commitArgs := append(identityArgs(),
			"commit", "-m", fmt.Sprintf("Merge branch '%s'", branch))
		if _, err := m.cli.Git(ctx, repoRoot, commitArgs...); err != nil {
			_, _ = m.cli.Git(ctx, repoRoot, "merge", "--abort")
			return nil, fmt.Errorf("commit merge: %w", err)
		}
		result.Merged = true
		return result, nil
	}

	// Conflicted: gather the unmerged files before aborting.
	files, err := m.cli.Git(ctx, repoRoot, "diff", "--name-only", "--diff-filter=U")
	if err == nil && files.Output() != "" {
		for i, file := range strings.Split(files.Output(), "\n") {
			conflict := Conflict{File: file}
			if i < maxConflictFiles {
				conflict.Diff = m.inspectConflict(ctx, repoRoot, file)
			}
			result.Conflicts = append(result.Conflicts, conflict)
		}
	}

	if len(result.Conflicts) == 0 {
		// Merge failed before anything was in progress (unrelated
		// histories, bad ref). Abort is best effort; the merge error is
		// the one worth reporting.
		_, _ = m.cli.Git(ctx, repoRoot, "merge", "--abort")
		return nil, fmt.Errorf("merge %s: %w", branch, mergeErr)
	}

	if _, err := m.cli.Git(ctx, repoRoot, "merge", "--abort"); err != nil {
		return nil, fmt.Errorf("abort conflicted merge: %w", err)
	}

	result.Merged = false
	return result, nil
}

// inspectConflict renders a compact word-level diff between the two sides
// of a conflicted file (stage 2 = ours, stage 3 = theirs).
func (m *Manager) inspectConflict(ctx context.Context, repoRoot, file string) string {
	ours, errOurs := m.cli.Git(ctx, repoRoot, "show", ":2:"+file)
	theirs, errTheirs := m.cli.Git(ctx, repoRoot, "show", ":3:"+file)
	if errOurs != nil || errTheirs != nil {
		// One side missing means add/add or delete/modify; nothing to diff.
		return ""
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(ours.Stdout, theirs.Stdout, true)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var b strings.Builder
	for _, d := range diffs {
		text := d.Text
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			b.WriteString("{+" + text + "+}")
		case diffmatchpatch.DiffDelete:
			b.WriteString("[-" + text + "-]")
		case diffmatchpatch.DiffEqual:
			b.WriteString(text)
		}
	}

	out := b.String()
	if len(out) > 4096 {
		out = out[:4096] + "\n... (truncated)"
	}
	return out
}

func identityArgs() []string {
	return []string{
		"-c", "user.name=gitbridge",
		"-c", "user.email=gitbridge@localhost",
	}
}
