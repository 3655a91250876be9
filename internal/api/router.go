// Package api provides the REST API for gitbridge.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/calebreed/gitbridge/internal/config"
	"github.com/calebreed/gitbridge/internal/mcp"
	"github.com/calebreed/gitbridge/internal/session"
	"github.com/calebreed/gitbridge/internal/worktree"
)

// Server represents the API server.
type Server struct {
	cfg       *config.Config
	router    chi.Router
	store     *session.Store
	worktrees *worktree.Manager
	mcp       *mcp.Handler
}

// NewServer creates a new API server. The MCP HTTP handler is mounted
// under /mcp.
func NewServer(cfg *config.Config, store *session.Store, worktrees *worktree.Manager, mcpHandler *mcp.Handler) *Server {
	s := &Server{
		cfg:       cfg,
		store:     store,
		worktrees: worktrees,
		mcp:       mcpHandler,
	}

	s.setupRouter()
	return s
}

// setupRouter configures all routes.
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Per-IP rate limit; tool calls fan out into subprocesses, so keep
	// the window tight.
	if s.cfg.API.RateLimit > 0 {
		r.Use(httprate.Limit(
			s.cfg.API.RateLimit,
			s.cfg.API.RateWindow,
			httprate.WithKeyFuncs(httprate.KeyByIP),
		))
	}

	// Optional API key authentication
	if s.cfg.API.APIKey != "" {
		r.Use(s.apiKeyAuth)
	}

	// Health and version endpoints (no auth)
	r.Get("/health", s.handleHealth)
	r.Get("/version", s.handleVersion)

	// Session routes
	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.handleListSessions)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleEndSession)
			r.Get("/worktrees", s.handleListWorktrees)
		})
	})

	// MCP over HTTP (POST /mcp) and SSE (GET/POST /mcp/sse)
	r.Handle("/mcp", s.mcp)
	r.Handle("/mcp/sse", s.mcp)

	s.router = r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// apiKeyAuth is middleware that validates the API key.
func (s *Server) apiKeyAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip auth for health and version
		if r.URL.Path == "/health" || r.URL.Path == "/version" {
			next.ServeHTTP(w, r)
			return
		}

		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			apiKey = r.URL.Query().Get("api_key")
		}

		if apiKey != s.cfg.API.APIKey {
			writeError(w, http.StatusUnauthorized, "Invalid or missing API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}
