package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// version is set via -ldflags at build time
var version = "dev"

// SetVersion sets the version string (called from main).
func SetVersion(v string) {
	version = v
}

// HealthResponse is the response for /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// VersionResponse is the response for /version.
type VersionResponse struct {
	Version string `json:"version"`
	Service string `json:"service"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SessionDetailResponse is one session with its workspaces and worktrees.
type SessionDetailResponse struct {
	ID         string              `json:"id"`
	Root       string              `json:"root"`
	CreatedAt  string              `json:"created_at"`
	LastUsed   string              `json:"last_used"`
	Workspaces []WorkspaceResponse `json:"workspaces"`
	Worktrees  []WorktreeResponse  `json:"worktrees"`
}

// WorkspaceResponse represents a cloned repo in API responses. The token
// is deliberately absent.
type WorkspaceResponse struct {
	Owner         string `json:"owner"`
	Repo          string `json:"repo"`
	Path          string `json:"path"`
	DefaultBranch string `json:"default_branch"`
	CurrentBranch string `json:"current_branch"`
	CreatedAt     string `json:"created_at"`
}

// WorktreeResponse represents a worktree in API responses.
type WorktreeResponse struct {
	Path      string `json:"path"`
	Branch    string `json:"branch"`
	RepoRoot  string `json:"repo_root"`
	CreatedAt string `json:"created_at"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{
		Version: version,
		Service: "gitbridge",
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.List())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, ok := s.store.Lookup(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}

	info := sess.Info()
	resp := SessionDetailResponse{
		ID:        info.ID,
		Root:      info.Root,
		CreatedAt: info.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		LastUsed:  info.LastUsed.Format("2006-01-02T15:04:05Z07:00"),
	}

	for _, ws := range sess.Workspaces() {
		resp.Workspaces = append(resp.Workspaces, WorkspaceResponse{
			Owner:         ws.Owner,
			Repo:          ws.Repo,
			Path:          ws.Path,
			DefaultBranch: ws.DefaultBranch,
			CurrentBranch: ws.Branch(),
			CreatedAt:     ws.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	for _, wt := range sess.Worktrees() {
		resp.Worktrees = append(resp.Worktrees, WorktreeResponse{
			Path:      wt.Path,
			Branch:    wt.Branch,
			RepoRoot:  wt.RepoRoot,
			CreatedAt: wt.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.End(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ended", "id": id})
}

func (s *Server) handleListWorktrees(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.store.Lookup(id); !ok {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}

	entries, err := s.worktrees.List(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
