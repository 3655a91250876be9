package ghauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calebreed/gitbridge/internal/config"
	"github.com/calebreed/gitbridge/internal/gitcmd"
)

// fakeRunner serves the gh CLI fallback in tests.
type fakeRunner struct {
	result gitcmd.Result
	err    error
	calls  int32
}

func (f *fakeRunner) Run(ctx context.Context, req gitcmd.Request) (gitcmd.Result, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.result, f.err
}

func newSource(t *testing.T, cfg config.AuthConfig, runner gitcmd.Runner, env map[string]string) *Source {
	t.Helper()
	if runner == nil {
		runner = &fakeRunner{}
	}
	s := NewSource(cfg, gitcmd.NewCLI(runner, "git", "gh", time.Second))
	s.getenv = func(key string) string { return env[key] }
	return s
}

func TestToken_FromEnv(t *testing.T) {
	s := newSource(t, config.AuthConfig{}, nil, map[string]string{
		"GITHUB_TOKEN": "ghp_env",
	})

	token, err := s.Token(context.Background(), "octo", "demo")
	require.NoError(t, err)
	assert.Equal(t, "ghp_env", token)
}

func TestToken_GHTokenFallback(t *testing.T) {
	s := newSource(t, config.AuthConfig{}, nil, map[string]string{
		"GH_TOKEN": "ghp_alt",
	})

	token, err := s.Token(context.Background(), "octo", "demo")
	require.NoError(t, err)
	assert.Equal(t, "ghp_alt", token)
}

func TestToken_GhCLIFallback(t *testing.T) {
	runner := &fakeRunner{result: gitcmd.Result{Stdout: "gho_cli\n"}}
	s := newSource(t, config.AuthConfig{}, runner, map[string]string{})

	token, err := s.Token(context.Background(), "octo", "demo")
	require.NoError(t, err)
	assert.Equal(t, "gho_cli", token)
	assert.Equal(t, int32(1), atomic.LoadInt32(&runner.calls))
}

func TestToken_Cached(t *testing.T) {
	runner := &fakeRunner{result: gitcmd.Result{Stdout: "gho_cli\n"}}
	s := newSource(t, config.AuthConfig{}, runner, map[string]string{})

	_, err := s.Token(context.Background(), "octo", "demo")
	require.NoError(t, err)
	_, err = s.Token(context.Background(), "octo", "demo")
	require.NoError(t, err)

	// Second call hits the cache, not the CLI.
	assert.Equal(t, int32(1), atomic.LoadInt32(&runner.calls))

	// A different repo mints separately.
	_, err = s.Token(context.Background(), "octo", "other")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&runner.calls))
}

func TestForget_DropsCachedToken(t *testing.T) {
	runner := &fakeRunner{result: gitcmd.Result{Stdout: "gho_cli\n"}}
	s := newSource(t, config.AuthConfig{}, runner, map[string]string{})

	_, err := s.Token(context.Background(), "octo", "demo")
	require.NoError(t, err)

	s.Forget("octo", "demo")

	_, err = s.Token(context.Background(), "octo", "demo")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&runner.calls))
}

func TestToken_OIDCExchange(t *testing.T) {
	idServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer req-token", r.Header.Get("Authorization"))
		assert.Equal(t, "gitbridge", r.URL.Query().Get("audience"))
		_ = json.NewEncoder(w).Encode(map[string]string{"value": "jwt-123"})
	}))
	defer idServer.Close()

	exchangeServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer jwt-123", r.Header.Get("Authorization"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "octo/demo", body["scope"])
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "ghs_scoped"})
	}))
	defer exchangeServer.Close()

	s := newSource(t, config.AuthConfig{
		ExchangeURL: exchangeServer.URL,
		Audience:    "gitbridge",
	}, nil, map[string]string{
		"ACTIONS_ID_TOKEN_REQUEST_URL":   idServer.URL,
		"ACTIONS_ID_TOKEN_REQUEST_TOKEN": "req-token",
		// Env token present but OIDC wins inside Actions.
		"GITHUB_TOKEN": "ghp_env",
	})

	token, err := s.Token(context.Background(), "octo", "demo")
	require.NoError(t, err)
	assert.Equal(t, "ghs_scoped", token)
}

func TestToken_OIDCExchangeFailure(t *testing.T) {
	idServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"value": "jwt-123"})
	}))
	defer idServer.Close()

	exchangeServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not allowed for this repo", http.StatusForbidden)
	}))
	defer exchangeServer.Close()

	s := newSource(t, config.AuthConfig{ExchangeURL: exchangeServer.URL}, nil, map[string]string{
		"ACTIONS_ID_TOKEN_REQUEST_URL":   idServer.URL,
		"ACTIONS_ID_TOKEN_REQUEST_TOKEN": "req-token",
	})

	_, err := s.Token(context.Background(), "octo", "demo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestToken_NoSourceAvailable(t *testing.T) {
	runner := &fakeRunner{err: assert.AnError}
	s := newSource(t, config.AuthConfig{}, runner, map[string]string{})

	_, err := s.Token(context.Background(), "octo", "demo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no token available")
}
