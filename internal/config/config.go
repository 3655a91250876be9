// Package config provides configuration management for gitbridge.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the service configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	API     APIConfig     `yaml:"api"`
	Auth    AuthConfig    `yaml:"auth"`
	Git     GitConfig     `yaml:"git"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServiceConfig contains service-level settings.
type ServiceConfig struct {
	Host       string        `yaml:"host"`
	Port       int           `yaml:"port"`
	DataDir    string        `yaml:"data_dir"`
	SessionDir string        `yaml:"session_dir"`
	SessionTTL time.Duration `yaml:"session_ttl"`
}

// APIConfig contains REST API settings.
type APIConfig struct {
	Enabled      bool          `yaml:"enabled"`
	APIKey       string        `yaml:"api_key"`
	RateLimit    int           `yaml:"rate_limit"`
	RateWindow   time.Duration `yaml:"rate_window"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// AuthConfig contains GitHub token acquisition settings.
type AuthConfig struct {
	// ExchangeURL is the OIDC token-exchange endpoint used in GitHub Actions.
	ExchangeURL string `yaml:"exchange_url"`
	// Audience is the audience claim requested for the Actions OIDC JWT.
	Audience string `yaml:"audience"`
	// TokenTTL bounds how long a minted token is cached. Must stay below
	// the lifetime of a GitHub installation token (1h).
	TokenTTL time.Duration `yaml:"token_ttl"`
}

// GitConfig contains git/gh invocation settings.
type GitConfig struct {
	GitBin      string        `yaml:"git_bin"`
	GhBin       string        `yaml:"gh_bin"`
	CloneDepth  int           `yaml:"clone_depth"`
	CmdTimeout  time.Duration `yaml:"cmd_timeout"`
	ExecTimeout time.Duration `yaml:"exec_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level      string   `yaml:"level"`
	Format     string   `yaml:"format"`
	Output     []string `yaml:"output"`
	TimeFormat string   `yaml:"time_format"`
	MaxSizeMB  int      `yaml:"max_size_mb"`
	MaxBackups int      `yaml:"max_backups"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Host:       "127.0.0.1",
			Port:       8435,
			DataDir:    DefaultDataDir(),
			SessionDir: "", // empty = os.TempDir()
			SessionTTL: 4 * time.Hour,
		},
		API: APIConfig{
			Enabled:      true,
			APIKey:       "", // Empty = no auth for localhost
			RateLimit:    60,
			RateWindow:   time.Minute,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Auth: AuthConfig{
			ExchangeURL: os.Getenv("GITBRIDGE_EXCHANGE_URL"),
			Audience:    "gitbridge",
			TokenTTL:    45 * time.Minute,
		},
		Git: GitConfig{
			GitBin:      "git",
			GhBin:       "gh",
			CloneDepth:  1,
			CmdTimeout:  2 * time.Minute,
			ExecTimeout: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05.000",
			MaxSizeMB:  100,
			MaxBackups: 5,
		},
	}
}

// DefaultDataDir returns the default data directory based on OS.
func DefaultDataDir() string {
	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "gitbridge")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "AppData", "Roaming", "gitbridge")
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "gitbridge")
	default: // linux and others
		xdgData := os.Getenv("XDG_DATA_HOME")
		if xdgData != "" {
			return filepath.Join(xdgData, "gitbridge")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".gitbridge")
	}
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultDataDir(), "config.yaml")
}

// Load loads configuration from a file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if no config file exists
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand environment variables in the config
	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg.Service.DataDir = expandTilde(cfg.Service.DataDir)
	cfg.Service.SessionDir = expandTilde(cfg.Service.SessionDir)

	return cfg, nil
}

// Save saves the configuration to a file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Address returns the full address string for the HTTP server.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Service.Host, c.Service.Port)
}

// SessionBaseDir returns the root under which session workspaces are created.
func (c *Config) SessionBaseDir() string {
	if c.Service.SessionDir != "" {
		return c.Service.SessionDir
	}
	return os.TempDir()
}

// SessionIndexPath returns the path to the persisted session index.
func (c *Config) SessionIndexPath() string {
	return filepath.Join(c.Service.DataDir, "sessions.json")
}

// PolicyPath returns the path to the tool policy file.
func (c *Config) PolicyPath() string {
	return filepath.Join(c.Service.DataDir, "policy.toml")
}

// LogPath returns the path to the service log file.
func (c *Config) LogPath() string {
	return filepath.Join(c.Service.DataDir, "logs", "gitbridge.log")
}

// PIDPath returns the path to the daemon PID file.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Service.DataDir, "gitbridge.pid")
}

// EnsureDirectories creates all necessary directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Service.DataDir,
		filepath.Dir(c.LogPath()),
	}
	if c.Service.SessionDir != "" {
		dirs = append(dirs, c.Service.SessionDir)
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}

func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}
