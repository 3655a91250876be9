package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// PolicyWatcher reloads the tool policy when policy.toml changes on disk.
// Reload is debounced because editors fire several events per save.
type PolicyWatcher struct {
	path    string
	watcher *fsnotify.Watcher
	onLoad  func(*Policy)

	mu      sync.RWMutex
	current *Policy

	stopCh  chan struct{}
	running bool
}

// NewPolicyWatcher creates a watcher for the given policy path. onLoad is
// invoked with each successfully reloaded policy; it may be nil.
func NewPolicyWatcher(path string, onLoad func(*Policy)) (*PolicyWatcher, error) {
	initial, err := LoadPolicy(path)
	if err != nil {
		return nil, err
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	return &PolicyWatcher{
		path:    path,
		watcher: fsWatcher,
		onLoad:  onLoad,
		current: initial,
		stopCh:  make(chan struct{}),
	}, nil
}

// Policy returns the most recently loaded policy.
func (w *PolicyWatcher) Policy() *Policy {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Start begins watching the policy file's directory. Watching the directory
// rather than the file survives rename-based saves.
func (w *PolicyWatcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("policy watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch policy directory: %w", err)
	}

	go w.loop()
	return nil
}

// Stop stops the watcher.
func (w *PolicyWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	w.running = false
	close(w.stopCh)
	_ = w.watcher.Close()
}

func (w *PolicyWatcher) loop() {
	var timer *time.Timer
	for {
		select {
		case <-w.stopCh:
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(200*time.Millisecond, w.reload)
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *PolicyWatcher) reload() {
	policy, err := LoadPolicy(w.path)
	if err != nil {
		// Keep the previous policy on parse errors.
		return
	}

	w.mu.Lock()
	w.current = policy
	w.mu.Unlock()

	if w.onLoad != nil {
		w.onLoad(policy)
	}
}
