package mcp

import "encoding/json"

// allDefinitions lists every tool with its input schema. The session
// property appears on all of them: tool state is scoped to the calling
// agent's session.
func allDefinitions() []Definition {
	return []Definition{
		{
			Name:        "repo_clone",
			Description: "Clone a GitHub repository into this session's workspace. Idempotent per session.",
			Schema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"session": {"type": "string", "description": "Session identifier"},
					"owner": {"type": "string", "description": "Repository owner"},
					"repo": {"type": "string", "description": "Repository name"}
				},
				"required": ["session", "owner", "repo"]
			}`),
		},
		{
			Name:        "repo_branch",
			Description: "Switch the cloned repository to a branch, creating it if it does not exist.",
			Schema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"session": {"type": "string", "description": "Session identifier"},
					"owner": {"type": "string", "description": "Repository owner"},
					"repo": {"type": "string", "description": "Repository name"},
					"branch": {"type": "string", "description": "Branch name"}
				},
				"required": ["session", "owner", "repo", "branch"]
			}`),
		},
		{
			Name:        "repo_commit",
			Description: "Stage and commit changes in the cloned repository. Stages everything when paths is omitted.",
			Schema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"session": {"type": "string", "description": "Session identifier"},
					"owner": {"type": "string", "description": "Repository owner"},
					"repo": {"type": "string", "description": "Repository name"},
					"message": {"type": "string", "description": "Commit message"},
					"paths": {"type": "array", "items": {"type": "string"}, "description": "Paths to stage (relative to repo root)"}
				},
				"required": ["session", "owner", "repo", "message"]
			}`),
		},
		{
			Name:        "repo_push",
			Description: "Push the current branch to origin, setting upstream on first push.",
			Schema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"session": {"type": "string", "description": "Session identifier"},
					"owner": {"type": "string", "description": "Repository owner"},
					"repo": {"type": "string", "description": "Repository name"}
				},
				"required": ["session", "owner", "repo"]
			}`),
		},
		{
			Name:        "repo_pr",
			Description: "Open a pull request from the current branch via gh. Returns the PR URL.",
			Schema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"session": {"type": "string", "description": "Session identifier"},
					"owner": {"type": "string", "description": "Repository owner"},
					"repo": {"type": "string", "description": "Repository name"},
					"title": {"type": "string", "description": "PR title"},
					"body": {"type": "string", "description": "PR body"},
					"base": {"type": "string", "description": "Base branch (default: repository default branch)"}
				},
				"required": ["session", "owner", "repo", "title"]
			}`),
		},
		{
			Name:        "repo_read",
			Description: "Read a file from the cloned repository. Paths outside the clone are rejected.",
			Schema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"session": {"type": "string", "description": "Session identifier"},
					"owner": {"type": "string", "description": "Repository owner"},
					"repo": {"type": "string", "description": "Repository name"},
					"path": {"type": "string", "description": "File path relative to repo root"}
				},
				"required": ["session", "owner", "repo", "path"]
			}`),
		},
		{
			Name:        "repo_write",
			Description: "Write a file in the cloned repository. Paths outside the clone are rejected.",
			Schema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"session": {"type": "string", "description": "Session identifier"},
					"owner": {"type": "string", "description": "Repository owner"},
					"repo": {"type": "string", "description": "Repository name"},
					"path": {"type": "string", "description": "File path relative to repo root"},
					"content": {"type": "string", "description": "File content"}
				},
				"required": ["session", "owner", "repo", "path", "content"]
			}`),
		},
		{
			Name:        "repo_list",
			Description: "List a directory in the cloned repository. Directories carry a trailing slash.",
			Schema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"session": {"type": "string", "description": "Session identifier"},
					"owner": {"type": "string", "description": "Repository owner"},
					"repo": {"type": "string", "description": "Repository name"},
					"path": {"type": "string", "description": "Directory path relative to repo root (default: root)"}
				},
				"required": ["session", "owner", "repo"]
			}`),
		},
		{
			Name:        "repo_exec",
			Description: "Run an allowlisted command inside the cloned repository with a hard timeout.",
			Schema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"session": {"type": "string", "description": "Session identifier"},
					"owner": {"type": "string", "description": "Repository owner"},
					"repo": {"type": "string", "description": "Repository name"},
					"command": {"type": "array", "items": {"type": "string"}, "description": "Command and arguments, e.g. [\"go\", \"test\", \"./...\"]"},
					"timeout_seconds": {"type": "number", "description": "Timeout in seconds (clamped to the policy maximum)"}
				},
				"required": ["session", "owner", "repo", "command"]
			}`),
		},
		{
			Name:        "repo_discard",
			Description: "Remove a cloned repository workspace and forget its token.",
			Schema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"session": {"type": "string", "description": "Session identifier"},
					"owner": {"type": "string", "description": "Repository owner"},
					"repo": {"type": "string", "description": "Repository name"}
				},
				"required": ["session", "owner", "repo"]
			}`),
		},
		{
			Name:        "worktree_create",
			Description: "Create a git worktree for a branch, scoped to this session. Use instead of running 'git worktree' directly.",
			Schema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"session": {"type": "string", "description": "Session identifier"},
					"repo_path": {"type": "string", "description": "Path to the repository to attach the worktree to"},
					"branch": {"type": "string", "description": "Branch name (created if missing)"},
					"from": {"type": "string", "description": "Ref to branch from when creating (default: HEAD)"}
				},
				"required": ["session", "repo_path", "branch"]
			}`),
		},
		{
			Name:        "worktree_list",
			Description: "List this session's worktrees with HEAD and dirty state.",
			Schema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"session": {"type": "string", "description": "Session identifier"}
				},
				"required": ["session"]
			}`),
		},
		{
			Name:        "worktree_remove",
			Description: "Remove a worktree created in this session.",
			Schema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"session": {"type": "string", "description": "Session identifier"},
					"path": {"type": "string", "description": "Worktree path"},
					"force": {"type": "boolean", "description": "Remove even with uncommitted changes"}
				},
				"required": ["session", "path"]
			}`),
		},
		{
			Name:        "worktree_merge",
			Description: "Merge a worktree's branch into the branch checked out at its repo root. Strategies: ours, theirs, manual.",
			Schema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"session": {"type": "string", "description": "Session identifier"},
					"path": {"type": "string", "description": "Worktree path"},
					"strategy": {"type": "string", "enum": ["ours", "theirs", "manual"], "description": "Conflict strategy (default: manual)"}
				},
				"required": ["session", "path"]
			}`),
		},
		{
			Name:        "worktree_status",
			Description: "Show branch, HEAD, pending changes, and ahead/behind for a session worktree.",
			Schema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"session": {"type": "string", "description": "Session identifier"},
					"path": {"type": "string", "description": "Worktree path"}
				},
				"required": ["session", "path"]
			}`),
		},
		{
			Name:        "worktree_cleanup",
			Description: "Remove all worktrees created in this session and prune worktree metadata.",
			Schema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"session": {"type": "string", "description": "Session identifier"}
				},
				"required": ["session"]
			}`),
		},
		{
			Name:        "session_end",
			Description: "End the session: remove all its workspaces and worktrees and forget cached tokens.",
			Schema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"session": {"type": "string", "description": "Session identifier"}
				},
				"required": ["session"]
			}`),
		},
	}
}
