// Package mcp exposes the gitbridge tool set over the Model Context
// Protocol, both as JSON-RPC over HTTP/SSE and as a stdio server.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/calebreed/gitbridge/internal/config"
	"github.com/calebreed/gitbridge/internal/crossrepo"
	"github.com/calebreed/gitbridge/internal/session"
	"github.com/calebreed/gitbridge/internal/worktree"
)

// PolicyProvider supplies the current tool policy.
type PolicyProvider interface {
	Policy() *config.Policy
}

// Tools dispatches tool calls to the cross-repo and worktree managers.
// Both MCP transports and the REST API go through it, so the policy check
// happens in exactly one place.
type Tools struct {
	repos     *crossrepo.Manager
	worktrees *worktree.Manager
	store     *session.Store
	policy    PolicyProvider
}

// NewTools creates the tool dispatcher.
func NewTools(repos *crossrepo.Manager, worktrees *worktree.Manager, store *session.Store, policy PolicyProvider) *Tools {
	return &Tools{repos: repos, worktrees: worktrees, store: store, policy: policy}
}

// CallResult is a transport-neutral tool result.
type CallResult struct {
	Text    string
	IsError bool
}

func okText(format string, args ...interface{}) CallResult {
	return CallResult{Text: fmt.Sprintf(format, args...)}
}

func errText(format string, args ...interface{}) CallResult {
	return CallResult{Text: fmt.Sprintf(format, args...), IsError: true}
}

func okJSON(v interface{}) CallResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errText("encode result: %v", err)
	}
	return CallResult{Text: string(data)}
}

// Definition describes one tool for tools/list.
type Definition struct {
	Name        string
	Description string
	// Schema is the JSON Schema for the tool's arguments.
	Schema json.RawMessage
}

// Definitions returns the tools currently exposed under the policy.
func (t *Tools) Definitions() []Definition {
	defs := allDefinitions()
	policy := t.policy.Policy()
	out := make([]Definition, 0, len(defs))
	for _, d := range defs {
		if policy.ToolEnabled(d.Name) {
			out = append(out, d)
		}
	}
	return out
}

// Call dispatches a tool call by name.
func (t *Tools) Call(ctx context.Context, name string, args map[string]interface{}) CallResult {
	if !t.policy.Policy().ToolEnabled(name) {
		return errText("tool %s is disabled by policy", name)
	}

	sessionID := getString(args, "session")
	if sessionID == "" {
		return errText("session is required")
	}

	switch name {
	case "repo_clone":
		return t.repoClone(ctx, sessionID, args)
	case "repo_branch":
		return t.repoBranch(ctx, sessionID, args)
	case "repo_commit":
		return t.repoCommit(ctx, sessionID, args)
	case "repo_push":
		return t.repoPush(ctx, sessionID, args)
	case "repo_pr":
		return t.repoPR(ctx, sessionID, args)
	case "repo_read":
		return t.repoRead(ctx, sessionID, args)
	case "repo_write":
		return t.repoWrite(ctx, sessionID, args)
	case "repo_list":
		return t.repoList(ctx, sessionID, args)
	case "repo_exec":
		return t.repoExec(ctx, sessionID, args)
	case "repo_discard":
		return t.repoDiscard(sessionID, args)
	case "worktree_create":
		return t.worktreeCreate(ctx, sessionID, args)
	case "worktree_list":
		return t.worktreeList(ctx, sessionID)
	case "worktree_remove":
		return t.worktreeRemove(ctx, sessionID, args)
	case "worktree_merge":
		return t.worktreeMerge(ctx, sessionID, args)
	case "worktree_status":
		return t.worktreeStatus(ctx, sessionID, args)
	case "worktree_cleanup":
		return t.worktreeCleanup(ctx, sessionID)
	case "session_end":
		return t.sessionEnd(sessionID)
	default:
		return errText("unknown tool: %s", name)
	}
}

func (t *Tools) repoClone(ctx context.Context, sessionID string, args map[string]interface{}) CallResult {
	owner, repo := getString(args, "owner"), getString(args, "repo")
	ws, err := t.repos.Clone(ctx, sessionID, owner, repo)
	if err != nil {
		return errText("clone failed: %v", err)
	}
	return okText("Cloned %s/%s\nPath: %s\nDefault branch: %s",
		ws.Owner, ws.Repo, ws.Path, ws.DefaultBranch)
}

func (t *Tools) repoBranch(ctx context.Context, sessionID string, args map[string]interface{}) CallResult {
	owner, repo := getString(args, "owner"), getString(args, "repo")
	branch := getString(args, "branch")
	ws, err := t.repos.Branch(ctx, sessionID, owner, repo, branch)
	if err != nil {
		return errText("branch failed: %v", err)
	}
	return okText("On branch %s in %s/%s", ws.Branch(), ws.Owner, ws.Repo)
}

func (t *Tools) repoCommit(ctx context.Context, sessionID string, args map[string]interface{}) CallResult {
	owner, repo := getString(args, "owner"), getString(args, "repo")
	message := getString(args, "message")
	paths := getStringSlice(args, "paths")
	sha, err := t.repos.Commit(ctx, sessionID, owner, repo, message, paths)
	if err != nil {
		return errText("commit failed: %v", err)
	}
	return okText("Committed %s", sha)
}

func (t *Tools) repoPush(ctx context.Context, sessionID string, args map[string]interface{}) CallResult {
	owner, repo := getString(args, "owner"), getString(args, "repo")
	out, err := t.repos.Push(ctx, sessionID, owner, repo)
	if err != nil {
		return errText("push failed: %v", err)
	}
	if out == "" {
		out = "Pushed."
	}
	return okText("%s", out)
}

func (t *Tools) repoPR(ctx context.Context, sessionID string, args map[string]interface{}) CallResult {
	owner, repo := getString(args, "owner"), getString(args, "repo")
	url, err := t.repos.CreatePR(ctx, sessionID, owner, repo,
		getString(args, "title"), getString(args, "body"), getString(args, "base"))
	if err != nil {
		return errText("pr failed: %v", err)
	}
	return okText("Pull request created: %s", url)
}

func (t *Tools) repoRead(ctx context.Context, sessionID string, args map[string]interface{}) CallResult {
	owner, repo := getString(args, "owner"), getString(args, "repo")
	content, err := t.repos.Read(ctx, sessionID, owner, repo, getString(args, "path"))
	if err != nil {
		return errText("read failed: %v", err)
	}
	return CallResult{Text: content}
}

func (t *Tools) repoWrite(ctx context.Context, sessionID string, args map[string]interface{}) CallResult {
	owner, repo := getString(args, "owner"), getString(args, "repo")
	path := getString(args, "path")
	content, ok := args["content"].(string)
	if !ok {
		return errText("content is required")
	}
	if err := t.repos.Write(ctx, sessionID, owner, repo, path, content); err != nil {
		return errText("write failed: %v", err)
	}
	return okText("Wrote %s (%d bytes)", path, len(content))
}

func (t *Tools) repoList(ctx context.Context, sessionID string, args map[string]interface{}) CallResult {
	owner, repo := getString(args, "owner"), getString(args, "repo")
	entries, err := t.repos.List(ctx, sessionID, owner, repo, getString(args, "path"))
	if err != nil {
		return errText("list failed: %v", err)
	}
	if len(entries) == 0 {
		return okText("(empty directory)")
	}
	return CallResult{Text: strings.Join(entries, "\n")}
}

func (t *Tools) repoExec(ctx context.Context, sessionID string, args map[string]interface{}) CallResult {
	owner, repo := getString(args, "owner"), getString(args, "repo")
	command := getStringSlice(args, "command")
	timeout := time.Duration(getNumber(args, "timeout_seconds")) * time.Second

	result, err := t.repos.Exec(ctx, sessionID, owner, repo, command, timeout)
	if err != nil {
		// Captured output still goes back so the agent sees what broke.
		return errText("exec failed: %v\nstdout:\n%s\nstderr:\n%s",
			err, result.Stdout, result.Stderr)
	}
	return okJSON(map[string]interface{}{
		"exit_code": result.ExitCode,
		"stdout":    result.Stdout,
		"stderr":    result.Stderr,
	})
}

func (t *Tools) repoDiscard(sessionID string, args map[string]interface{}) CallResult {
	owner, repo := getString(args, "owner"), getString(args, "repo")
	if err := t.repos.Discard(sessionID, owner, repo); err != nil {
		return errText("discard failed: %v", err)
	}
	return okText("Discarded workspace %s/%s", owner, repo)
}

func (t *Tools) worktreeCreate(ctx context.Context, sessionID string, args map[string]interface{}) CallResult {
	wt, err := t.worktrees.Create(ctx, sessionID,
		getString(args, "repo_path"), getString(args, "branch"), getString(args, "from"))
	if err != nil {
		return errText("worktree create failed: %v", err)
	}
	return okText("Worktree created\nPath: %s\nBranch: %s", wt.Path, wt.Branch)
}

func (t *Tools) worktreeList(ctx context.Context, sessionID string) CallResult {
	entries, err := t.worktrees.List(ctx, sessionID)
	if err != nil {
		return errText("worktree list failed: %v", err)
	}
	if len(entries) == 0 {
		return okText("No worktrees in this session.")
	}
	return okJSON(entries)
}

func (t *Tools) worktreeRemove(ctx context.Context, sessionID string, args map[string]interface{}) CallResult {
	path := getString(args, "path")
	force, _ := args["force"].(bool)
	if err := t.worktrees.Remove(ctx, sessionID, path, force); err != nil {
		return errText("worktree remove failed: %v", err)
	}
	return okText("Removed worktree %s", path)
}

func (t *Tools) worktreeMerge(ctx context.Context, sessionID string, args map[string]interface{}) CallResult {
	strategy, err := worktree.ParseStrategy(getString(args, "strategy"))
	if err != nil {
		return errText("%v", err)
	}
	result, err := t.worktrees.Merge(ctx, sessionID, getString(args, "path"), strategy)
	if err != nil {
		return errText("merge failed: %v", err)
	}
	return okJSON(result)
}

func (t *Tools) worktreeStatus(ctx context.Context, sessionID string, args map[string]interface{}) CallResult {
	status, err := t.worktrees.Status(ctx, sessionID, getString(args, "path"))
	if err != nil {
		return errText("status failed: %v", err)
	}
	return okJSON(status)
}

func (t *Tools) worktreeCleanup(ctx context.Context, sessionID string) CallResult {
	removed, problems := t.worktrees.Cleanup(ctx, sessionID)
	if len(problems) > 0 {
		return errText("Removed %d worktrees; problems:\n%s", removed, strings.Join(problems, "\n"))
	}
	return okText("Removed %d worktrees.", removed)
}

func (t *Tools) sessionEnd(sessionID string) CallResult {
	if err := t.store.End(sessionID); err != nil {
		return errText("session end failed: %v", err)
	}
	return okText("Session %s ended; all workspaces and worktrees removed.", sessionID)
}

func getString(args map[string]interface{}, key string) string {
	s, _ := args[key].(string)
	return s
}

func getNumber(args map[string]interface{}, key string) float64 {
	n, _ := args[key].(float64)
	return n
}

func getStringSlice(args map[string]interface{}, key string) []string {
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
