// Package main provides the entry point for gitbridge.
//
// gitbridge is a local companion service for AI coding agents providing:
// - Session-scoped GitHub repo workspaces (clone/branch/commit/push/pr)
// - Session-scoped git worktree management with merge strategies
// - MCP server over stdio and HTTP/SSE
// - REST API for session inspection and teardown
//
// Usage:
//
//	gitbridge                    Start the service (default)
//	gitbridge serve              Start the service
//	gitbridge mcp                Start MCP server (stdio mode)
//	gitbridge status             Show service status
//	gitbridge stop               Stop the running service
//	gitbridge version            Show version
package main

import (
	"fmt"
	"os"

	"github.com/calebreed/gitbridge/internal/api"
	"github.com/calebreed/gitbridge/internal/config"
	"github.com/calebreed/gitbridge/internal/crossrepo"
	"github.com/calebreed/gitbridge/internal/ghauth"
	"github.com/calebreed/gitbridge/internal/gitcmd"
	"github.com/calebreed/gitbridge/internal/logger"
	"github.com/calebreed/gitbridge/internal/mcp"
	"github.com/calebreed/gitbridge/internal/service"
	"github.com/calebreed/gitbridge/internal/session"
	"github.com/calebreed/gitbridge/internal/worktree"
)

// version is set via -ldflags at build time
var version = "dev"

func main() {
	api.SetVersion(version)

	if len(os.Args) < 2 {
		if err := cmdServe(); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	var err error
	switch os.Args[1] {
	case "serve", "start":
		err = cmdServe()
	case "version", "-v", "--version":
		cmdVersion()
	case "status":
		err = cmdStatus()
	case "stop":
		err = cmdStop()
	case "mcp", "mcp-server":
		err = cmdMCP()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`gitbridge - session-scoped git/GitHub tools for coding agents

Usage:
  gitbridge [command]

Commands:
  serve         Start the service (default)
  mcp           Start MCP server (stdio mode for agent integration)
  status        Show service status
  stop          Stop the running service
  version       Show version information
  help          Show this help

Environment:
  GITHUB_TOKEN / GH_TOKEN   Token used outside GitHub Actions (optional;
                            falls back to 'gh auth token')
  GITBRIDGE_EXCHANGE_URL    OIDC token-exchange endpoint for Actions runs

Configuration:
  Config file: ~/.gitbridge/config.yaml (or $APPDATA/gitbridge on Windows)
  Tool policy: ~/.gitbridge/policy.toml

Examples:
  gitbridge                      Start the service
  gitbridge mcp                  Start MCP server for an agent
  curl localhost:8435/health     Check service health
  curl localhost:8435/sessions   List live sessions`)
}

func cmdVersion() {
	fmt.Printf("gitbridge version %s\n", version)
}

// components bundles everything needed to serve tools.
type components struct {
	store   *session.Store
	tools   *mcp.Tools
	watcher *config.PolicyWatcher
	wtMgr   *worktree.Manager
}

// build wires the tool stack from config.
func build(cfg *config.Config) (*components, error) {
	watcher, err := config.NewPolicyWatcher(cfg.PolicyPath(), nil)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}

	cli := gitcmd.NewCLI(gitcmd.NewRunner(), cfg.Git.GitBin, cfg.Git.GhBin, cfg.Git.CmdTimeout)
	tokens := ghauth.NewSource(cfg.Auth, cli)

	store := session.NewStore(cfg.SessionBaseDir(), cfg.SessionIndexPath(), cfg.Service.SessionTTL)

	repoMgr := crossrepo.NewManager(cli, tokens, store, cfg.Git, watcher)
	store.OnEnd(repoMgr.ReleaseTokens)

	wtMgr := worktree.NewManager(cli, store)

	return &components{
		store:   store,
		tools:   mcp.NewTools(repoMgr, wtMgr, store, watcher),
		watcher: watcher,
		wtMgr:   wtMgr,
	}, nil
}

func cmdServe() error {
	cfg, err := config.Load(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if running, pid := service.IsRunning(cfg); running {
		return fmt.Errorf("service already running (PID %d)", pid)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	log := logger.SetupLogger(cfg)
	defer logger.Stop()

	comps, err := build(cfg)
	if err != nil {
		return err
	}

	if err := comps.watcher.Start(); err != nil {
		log.Warn().Err(err).Msg("Policy hot-reload disabled")
	}
	comps.store.StartJanitor(0)

	mcpHandler := mcp.NewHandler(comps.tools, version)
	apiServer := api.NewServer(cfg, comps.store, comps.wtMgr, mcpHandler)

	daemon := service.NewDaemon(cfg)
	daemon.OnShutdown(func() {
		comps.store.Shutdown()
		comps.watcher.Stop()
	})

	if err := daemon.Start(apiServer.Handler()); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	fmt.Printf("gitbridge v%s started on %s\n", version, cfg.Address())
	fmt.Printf("MCP: http://%s/mcp\n", cfg.Address())
	fmt.Printf("API: http://%s/sessions\n", cfg.Address())

	daemon.Wait()

	return nil
}

func cmdStatus() error {
	cfg, err := config.Load(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	running, pid := service.IsRunning(cfg)
	if !running {
		fmt.Println("gitbridge: stopped")
		return nil
	}

	fmt.Printf("gitbridge: running (PID %d)\n", pid)
	fmt.Printf("Address: %s\n", cfg.Address())

	infos, err := session.LoadIndex(cfg.SessionIndexPath())
	if err != nil || len(infos) == 0 {
		return nil
	}
	fmt.Printf("Sessions: %d\n", len(infos))
	for _, info := range infos {
		fmt.Printf("  %s  workspaces=%d worktrees=%d last-used=%s\n",
			info.ID, info.Workspaces, info.Worktrees, info.LastUsed.Format("15:04:05"))
	}

	return nil
}

func cmdStop() error {
	cfg, err := config.Load(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	running, pid := service.IsRunning(cfg)
	if !running {
		fmt.Println("gitbridge is not running")
		return nil
	}

	fmt.Printf("Stopping gitbridge (PID %d)...\n", pid)
	if err := service.StopRunning(cfg); err != nil {
		return err
	}

	fmt.Println("gitbridge stopped")
	return nil
}

func cmdMCP() error {
	cfg, err := config.Load(config.DefaultConfigPath())
	if err != nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	// Stdout belongs to the MCP protocol in stdio mode; log to file only.
	cfg.Logging.Output = []string{"file"}
	logger.SetupLogger(cfg)
	defer logger.Stop()

	comps, err := build(cfg)
	if err != nil {
		return err
	}
	defer comps.store.Shutdown()

	if err := comps.watcher.Start(); err == nil {
		defer comps.watcher.Stop()
	}

	return mcp.NewStdioServer(comps.tools, version).ServeStdio()
}
