// Package ghauth resolves GitHub tokens for repo-scoped operations.
//
// Source order mirrors where the service runs: inside GitHub Actions the
// workflow identity is exchanged for a short-lived installation token via
// OIDC; everywhere else the ambient GITHUB_TOKEN/GH_TOKEN or the gh CLI's
// stored credential is used.
package ghauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/calebreed/gitbridge/internal/config"
	"github.com/calebreed/gitbridge/internal/gitcmd"
)

// Source mints and caches repo-scoped tokens.
type Source struct {
	cfg    config.AuthConfig
	cli    *gitcmd.CLI
	client *http.Client
	cache  *gocache.Cache
	group  singleflight.Group

	// env lookup is indirected for tests.
	getenv func(string) string
}

// NewSource creates a token source. cli is used for the gh CLI fallback.
func NewSource(cfg config.AuthConfig, cli *gitcmd.CLI) *Source {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 45 * time.Minute
	}
	return &Source{
		cfg:    cfg,
		cli:    cli,
		client: &http.Client{Timeout: 30 * time.Second},
		cache:  gocache.New(ttl, 2*ttl),
		getenv: os.Getenv,
	}
}

// Token returns a token usable for owner/repo. Cached per repo; concurrent
// mints for the same repo are collapsed into one.
func (s *Source) Token(ctx context.Context, owner, repo string) (string, error) {
	key := owner + "/" + repo

	if v, ok := s.cache.Get(key); ok {
		return v.(string), nil
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		token, err := s.mint(ctx, owner, repo)
		if err != nil {
			return nil, err
		}
		s.cache.SetDefault(key, token)
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Forget drops a cached token, e.g. when its workspace is discarded.
func (s *Source) Forget(owner, repo string) {
	s.cache.Delete(owner + "/" + repo)
}

func (s *Source) mint(ctx context.Context, owner, repo string) (string, error) {
	if s.inActions() && s.cfg.ExchangeURL != "" {
		token, err := s.exchangeOIDC(ctx, owner, repo)
		if err != nil {
			return "", fmt.Errorf("oidc exchange: %w", err)
		}
		return token, nil
	}

	if token := s.getenv("GITHUB_TOKEN"); token != "" {
		return token, nil
	}
	if token := s.getenv("GH_TOKEN"); token != "" {
		return token, nil
	}

	result, err := s.cli.Gh(ctx, ".", "", "auth", "token")
	if err != nil {
		return "", fmt.Errorf("no token available: set GITHUB_TOKEN or run 'gh auth login': %w", err)
	}
	token := result.Output()
	if token == "" {
		return "", fmt.Errorf("gh auth token returned empty output")
	}
	return token, nil
}

func (s *Source) inActions() bool {
	return s.getenv("ACTIONS_ID_TOKEN_REQUEST_URL") != "" &&
		s.getenv("ACTIONS_ID_TOKEN_REQUEST_TOKEN") != ""
}

// exchangeOIDC performs the two-step Actions flow: fetch the workflow's
// OIDC JWT, then trade it at the exchange endpoint for a repo-scoped
// installation token.
func (s *Source) exchangeOIDC(ctx context.Context, owner, repo string) (string, error) {
	jwt, err := s.fetchIDToken(ctx)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(map[string]string{
		"scope": owner + "/" + repo,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.ExchangeURL, strings.NewReader(string(body)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+jwt)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("exchange endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var payload struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode exchange response: %w", err)
	}
	if payload.Token == "" {
		return "", fmt.Errorf("exchange response missing token")
	}
	return payload.Token, nil
}

func (s *Source) fetchIDToken(ctx context.Context) (string, error) {
	reqURL := s.getenv("ACTIONS_ID_TOKEN_REQUEST_URL")
	audience := s.cfg.Audience
	if audience != "" {
		sep := "?"
		if strings.Contains(reqURL, "?") {
			sep = "&"
		}
		reqURL += sep + "audience=" + url.QueryEscape(audience)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+s.getenv("ACTIONS_ID_TOKEN_REQUEST_TOKEN"))
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("id token endpoint returned %d", resp.StatusCode)
	}

	var payload struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode id token response: %w", err)
	}
	if payload.Value == "" {
		return "", fmt.Errorf("id token response missing value")
	}
	return payload.Value, nil
}
