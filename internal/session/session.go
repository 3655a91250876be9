// Package session tracks per-session workspace state: cloned repos and
// git worktrees live under a session-scoped temp root and are torn down
// when the session ends.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"
)

// Workspace is one cloned repo scoped to a session. All fields except the
// current branch are fixed at clone time; the branch goes through
// Branch/SetBranch because workspace records are shared between the
// concurrent HTTP surfaces.
type Workspace struct {
	Owner         string    `json:"owner"`
	Repo          string    `json:"repo"`
	Path          string    `json:"path"`
	DefaultBranch string    `json:"default_branch"`
	CreatedAt     time.Time `json:"created_at"`

	// Token is the scoped credential for this workspace. Never serialized.
	Token string `json:"-"`

	mu            sync.Mutex
	currentBranch string
}

// Key returns the owner/repo identity of the workspace.
func (w *Workspace) Key() string {
	return w.Owner + "/" + w.Repo
}

// Branch returns the currently checked-out branch.
func (w *Workspace) Branch() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.currentBranch
}

// SetBranch records a branch switch.
func (w *Workspace) SetBranch(branch string) {
	w.mu.Lock()
	w.currentBranch = branch
	w.mu.Unlock()
}

// Worktree is one git worktree scoped to a session.
type Worktree struct {
	Path      string    `json:"path"`
	Branch    string    `json:"branch"`
	RepoRoot  string    `json:"repo_root"`
	CreatedAt time.Time `json:"created_at"`
}

// Session holds all state for one agent session.
type Session struct {
	mu         sync.RWMutex
	id         string
	root       string
	workspaces map[string]*Workspace
	worktrees  []*Worktree
	createdAt  time.Time
	lastUsed   time.Time

	// notify is invoked, outside the session lock, whenever workspace or
	// worktree records change, so the store can re-persist its index.
	notify func()
}

func (s *Session) changed() {
	if s.notify != nil {
		s.notify()
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Root returns the session's temp root. All workspaces and worktrees for
// the session live below it.
func (s *Session) Root() string {
	return s.root
}

// Workspace returns the workspace for owner/repo, if present.
func (s *Session) Workspace(owner, repo string) (*Workspace, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ws, ok := s.workspaces[owner+"/"+repo]
	return ws, ok
}

// PutWorkspace records a workspace.
func (s *Session) PutWorkspace(ws *Workspace) {
	s.mu.Lock()
	s.workspaces[ws.Key()] = ws
	s.mu.Unlock()
	s.changed()
}

// DropWorkspace forgets a workspace and returns it for teardown.
func (s *Session) DropWorkspace(owner, repo string) (*Workspace, bool) {
	s.mu.Lock()
	key := owner + "/" + repo
	ws, ok := s.workspaces[key]
	if ok {
		delete(s.workspaces, key)
	}
	s.mu.Unlock()
	if ok {
		s.changed()
	}
	return ws, ok
}

// Workspaces returns all workspaces sorted by key.
func (s *Session) Workspaces() []*Workspace {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Workspace, 0, len(s.workspaces))
	for _, ws := range s.workspaces {
		out = append(out, ws)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// AddWorktree records a worktree.
func (s *Session) AddWorktree(wt *Worktree) {
	s.mu.Lock()
	s.worktrees = append(s.worktrees, wt)
	s.mu.Unlock()
	s.changed()
}

// RemoveWorktree forgets the worktree at path.
func (s *Session) RemoveWorktree(path string) (*Worktree, bool) {
	s.mu.Lock()
	for i, wt := range s.worktrees {
		if wt.Path == path {
			s.worktrees = append(s.worktrees[:i], s.worktrees[i+1:]...)
			s.mu.Unlock()
			s.changed()
			return wt, true
		}
	}
	s.mu.Unlock()
	return nil, false
}

// Worktrees returns a copy of the worktree records.
func (s *Session) Worktrees() []*Worktree {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Worktree, len(s.worktrees))
	copy(out, s.worktrees)
	return out
}

// ClearWorktrees drops all worktree records and returns them.
func (s *Session) ClearWorktrees() []*Worktree {
	s.mu.Lock()
	out := s.worktrees
	s.worktrees = nil
	s.mu.Unlock()
	if len(out) > 0 {
		s.changed()
	}
	return out
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

// Info is the serializable summary of a session.
type Info struct {
	ID         string    `json:"id"`
	Root       string    `json:"root"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsed   time.Time `json:"last_used"`
	Workspaces int       `json:"workspaces"`
	Worktrees  int       `json:"worktrees"`
}

// Info returns the session summary.
func (s *Session) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Info{
		ID:         s.id,
		Root:       s.root,
		CreatedAt:  s.createdAt,
		LastUsed:   s.lastUsed,
		Workspaces: len(s.workspaces),
		Worktrees:  len(s.worktrees),
	}
}

// Store manages all live sessions.
type Store struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	baseDir   string
	indexPath string
	ttl       time.Duration

	stopCh  chan struct{}
	stopped sync.Once

	// onEnd is called with each session torn down, before its root is
	// removed. Used to release per-workspace tokens.
	onEnd func(*Session)
}

// NewStore creates a session store. baseDir is where session roots are
// created; indexPath, when non-empty, is where the session index is
// persisted.
func NewStore(baseDir, indexPath string, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 4 * time.Hour
	}
	return &Store{
		sessions:  make(map[string]*Session),
		baseDir:   baseDir,
		indexPath: indexPath,
		ttl:       ttl,
		stopCh:    make(chan struct{}),
	}
}

// OnEnd registers a teardown hook invoked for each ended session.
func (st *Store) OnEnd(fn func(*Session)) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.onEnd = fn
}

// Get retrieves the session, creating it (and its temp root) on first use.
func (st *Store) Get(id string) (*Session, error) {
	if id == "" {
		return nil, fmt.Errorf("session id is required")
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if s, ok := st.sessions[id]; ok {
		s.touch()
		return s, nil
	}

	root := filepath.Join(st.baseDir, "gitbridge-"+sanitizeID(id)+"-"+uuid.NewString()[:8])
	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, fmt.Errorf("create session root: %w", err)
	}

	now := time.Now()
	s := &Session{
		id:         id,
		root:       root,
		workspaces: make(map[string]*Workspace),
		createdAt:  now,
		lastUsed:   now,
		notify:     st.saveIndex,
	}
	st.sessions[id] = s
	st.saveIndexLocked()
	return s, nil
}

// Lookup returns the session without creating it. A hit counts as use for
// the idle TTL.
func (st *Store) Lookup(id string) (*Session, bool) {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	if ok {
		s.touch()
	}
	return s, ok
}

// End tears down the session: runs the teardown hook, removes the temp
// root, and forgets the session.
func (st *Store) End(id string) error {
	st.mu.Lock()
	s, ok := st.sessions[id]
	if ok {
		delete(st.sessions, id)
	}
	onEnd := st.onEnd
	st.saveIndexLocked()
	st.mu.Unlock()

	if !ok {
		return fmt.Errorf("unknown session: %s", id)
	}

	if onEnd != nil {
		onEnd(s)
	}

	if err := os.RemoveAll(s.root); err != nil {
		return fmt.Errorf("remove session root: %w", err)
	}
	return nil
}

// List returns summaries of all live sessions sorted by id.
func (st *Store) List() []Info {
	st.mu.RLock()
	sessions := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		sessions = append(sessions, s)
	}
	st.mu.RUnlock()

	infos := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// StartJanitor sweeps idle sessions in the background.
func (st *Store) StartJanitor(interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-st.stopCh:
				return
			case <-ticker.C:
				st.sweep()
			}
		}
	}()
}

// Shutdown stops the janitor and ends every session.
func (st *Store) Shutdown() {
	st.stopped.Do(func() { close(st.stopCh) })
	for _, info := range st.List() {
		_ = st.End(info.ID)
	}
}

func (st *Store) sweep() {
	cutoff := time.Now().Add(-st.ttl)
	for _, info := range st.List() {
		if info.LastUsed.Before(cutoff) {
			_ = st.End(info.ID)
		}
	}
}

// saveIndex persists the index from outside the store lock. Wired as the
// per-session change callback so record counts survive restarts.
func (st *Store) saveIndex() {
	st.mu.Lock()
	st.saveIndexLocked()
	st.mu.Unlock()
}

// saveIndexLocked persists the session index atomically. Callers hold st.mu.
func (st *Store) saveIndexLocked() {
	if st.indexPath == "" {
		return
	}

	infos := make([]Info, 0, len(st.sessions))
	for _, s := range st.sessions {
		infos = append(infos, s.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })

	data, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(st.indexPath), 0755); err != nil {
		return
	}
	// Atomic replace so a crash mid-write never corrupts the index.
	_ = renameio.WriteFile(st.indexPath, data, 0644)
}

// LoadIndex reads a previously persisted session index. The filesystem
// state behind old entries is gone after a restart; this exists so status
// surfaces can report what was live.
func LoadIndex(path string) ([]Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read session index: %w", err)
	}
	var infos []Info
	if err := json.Unmarshal(data, &infos); err != nil {
		return nil, fmt.Errorf("parse session index: %w", err)
	}
	return infos, nil
}

// sanitizeID makes a session id safe for use in a directory name.
func sanitizeID(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	s := b.String()
	if len(s) > 32 {
		s = s[:32]
	}
	return s
}
