// Package fileutil provides file system utilities, including the path
// confinement checks used to keep agent file operations inside a workspace.
package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Exists checks if a path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsDir checks if a path is a directory.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// IsFile checks if a path is a regular file.
func IsFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// EnsureDir creates a directory if it doesn't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// ErrOutsideRoot is returned when a relative path escapes its root.
var ErrOutsideRoot = fmt.Errorf("path escapes workspace root")

// ResolveUnder joins rel onto root and guarantees the result stays inside
// root. Absolute paths, ".." escapes, and symlinks pointing outside the root
// are all rejected. root must be an absolute path.
func ResolveUnder(root, rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("empty path")
	}
	if filepath.IsAbs(rel) {
		return "", ErrOutsideRoot
	}

	joined := filepath.Join(root, rel)
	if !WithinRoot(root, joined) {
		return "", ErrOutsideRoot
	}

	// If any existing ancestor is a symlink out of the root, reject. The
	// deepest existing ancestor is enough: everything below it is not yet
	// on disk and will be created under it.
	existing := joined
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			break
		}
		existing = parent
	}
	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	resolvedRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	if !WithinRoot(resolvedRoot, resolved) {
		return "", ErrOutsideRoot
	}

	return joined, nil
}

// WithinRoot reports whether path is root itself or a descendant of root.
// Both paths must be cleaned absolute paths.
func WithinRoot(root, path string) bool {
	root = filepath.Clean(root)
	path = filepath.Clean(path)
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}
