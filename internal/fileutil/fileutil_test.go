package fileutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveUnder_ValidPaths(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name string
		rel  string
	}{
		{"simple file", "file.txt"},
		{"nested path", "a/b/c.txt"},
		{"dot segments collapse inside", "a/./b/../c.txt"},
		{"dotfile", ".github/workflows/ci.yml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			full, err := ResolveUnder(root, tt.rel)
			require.NoError(t, err)
			assert.True(t, WithinRoot(root, full))
		})
	}
}

func TestResolveUnder_RejectsEscapes(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name string
		rel  string
	}{
		{"parent escape", "../outside.txt"},
		{"deep parent escape", "a/../../outside.txt"},
		{"bare dotdot", ".."},
		{"absolute path", string(filepath.Separator) + "etc" + string(filepath.Separator) + "passwd"},
		{"empty path", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ResolveUnder(root, tt.rel)
			assert.Error(t, err)
		})
	}
}

func TestResolveUnder_RejectsSymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks require privileges on windows")
	}

	root := t.TempDir()
	outside := t.TempDir()

	// root/link -> outside
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "link")))

	_, err := ResolveUnder(root, "link/secret.txt")
	assert.ErrorIs(t, err, ErrOutsideRoot)
}

func TestResolveUnder_AllowsSymlinkInsideRoot(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks require privileges on windows")
	}

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "real"), 0755))
	require.NoError(t, os.Symlink(filepath.Join(root, "real"), filepath.Join(root, "alias")))

	_, err := ResolveUnder(root, "alias/file.txt")
	assert.NoError(t, err)
}

func TestWithinRoot(t *testing.T) {
	assert.True(t, WithinRoot("/a/b", "/a/b"))
	assert.True(t, WithinRoot("/a/b", "/a/b/c"))
	assert.False(t, WithinRoot("/a/b", "/a/bc"))
	assert.False(t, WithinRoot("/a/b", "/a"))
}

func TestExistsAndIsDir(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	assert.True(t, Exists(dir))
	assert.True(t, IsDir(dir))
	assert.False(t, IsDir(file))
	assert.True(t, IsFile(file))
	assert.False(t, Exists(filepath.Join(dir, "missing")))
}
