package gitcmd

import (
	"context"
	"time"
)

// CLI binds a Runner to configured git/gh binaries and a default timeout.
type CLI struct {
	runner  Runner
	gitBin  string
	ghBin   string
	timeout time.Duration
}

// NewCLI creates a CLI wrapper. Empty binary names fall back to "git"/"gh".
func NewCLI(runner Runner, gitBin, ghBin string, timeout time.Duration) *CLI {
	if gitBin == "" {
		gitBin = "git"
	}
	if ghBin == "" {
		ghBin = "gh"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &CLI{runner: runner, gitBin: gitBin, ghBin: ghBin, timeout: timeout}
}

// Git runs a git command in dir.
func (c *CLI) Git(ctx context.Context, dir string, args ...string) (Result, error) {
	return c.runner.Run(ctx, Request{
		Bin:     c.gitBin,
		Args:    args,
		Dir:     dir,
		Timeout: c.timeout,
	})
}

// GitWithSecrets runs a git command whose arguments carry credentials.
func (c *CLI) GitWithSecrets(ctx context.Context, dir string, secrets []string, args ...string) (Result, error) {
	return c.runner.Run(ctx, Request{
		Bin:     c.gitBin,
		Args:    args,
		Dir:     dir,
		Timeout: c.timeout,
		Secrets: secrets,
	})
}

// Gh runs a gh command in dir with the given token in the environment.
func (c *CLI) Gh(ctx context.Context, dir, token string, args ...string) (Result, error) {
	var env []string
	var secrets []string
	if token != "" {
		env = []string{"GH_TOKEN=" + token}
		secrets = []string{token}
	}
	return c.runner.Run(ctx, Request{
		Bin:     c.ghBin,
		Args:    args,
		Dir:     dir,
		Env:     env,
		Timeout: c.timeout,
		Secrets: secrets,
	})
}

// Exec runs an arbitrary allowlisted command in dir with its own timeout.
// Policy checks happen in the caller; this just executes.
func (c *CLI) Exec(ctx context.Context, dir, bin string, args []string, timeout time.Duration) (Result, error) {
	return c.runner.Run(ctx, Request{
		Bin:     bin,
		Args:    args,
		Dir:     dir,
		Timeout: timeout,
	})
}

// Runner exposes the underlying runner for callers that build raw requests.
func (c *CLI) Runner() Runner {
	return c.runner
}
