package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "127.0.0.1", cfg.Service.Host)
	assert.Equal(t, 8435, cfg.Service.Port)
	assert.Equal(t, "127.0.0.1:8435", cfg.Address())
	assert.Equal(t, 1, cfg.Git.CloneDepth)
	assert.Equal(t, 45*time.Minute, cfg.Auth.TokenTTL)
	assert.NotEmpty(t, cfg.Service.DataDir)
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8435, cfg.Service.Port)
}

func TestLoad_OverridesAndEnvExpansion(t *testing.T) {
	t.Setenv("TEST_GITBRIDGE_HOST", "0.0.0.0")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
service:
  host: ${TEST_GITBRIDGE_HOST}
  port: 9000
  session_ttl: 1h
git:
  clone_depth: 5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.Service.Host)
	assert.Equal(t, 9000, cfg.Service.Port)
	assert.Equal(t, time.Hour, cfg.Service.SessionTTL)
	assert.Equal(t, 5, cfg.Git.CloneDepth)
	// untouched sections keep defaults
	assert.Equal(t, "gh", cfg.Git.GhBin)
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg := DefaultConfig()
	cfg.Service.Port = 9999
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, loaded.Service.Port)
}

func TestSessionBaseDir(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, os.TempDir(), cfg.SessionBaseDir())

	cfg.Service.SessionDir = "/custom"
	assert.Equal(t, "/custom", cfg.SessionBaseDir())
}

func TestDerivedPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Service.DataDir = "/data"

	assert.Equal(t, filepath.Join("/data", "sessions.json"), cfg.SessionIndexPath())
	assert.Equal(t, filepath.Join("/data", "policy.toml"), cfg.PolicyPath())
	assert.Equal(t, filepath.Join("/data", "gitbridge.pid"), cfg.PIDPath())
}
