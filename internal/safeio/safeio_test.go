package safeio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadFileLimit(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644))
	fs, err := NewSafeFS(dir)
	require.NoError(t, err)

	b, err := fs.ReadFileLimit("a.txt", 16)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))

	_, err = fs.ReadFileLimit("a.txt", 3)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewSafeFS(dir)
	require.NoError(t, err)

	_, err = fs.Stat("../etc/passwd")
	assert.ErrorIs(t, err, ErrTraversal)
	_, err = fs.Stat("/etc/passwd")
	assert.ErrorIs(t, err, ErrTraversal)
}

func TestRejectsSymlinkEscape(t *testing.T) {
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret"), []byte("x"), 0o644))
	dir := t.TempDir()
	if err := os.Symlink(filepath.Join(outside, "secret"), filepath.Join(dir, "link")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	fs, err := NewSafeFS(dir)
	require.NoError(t, err)

	_, err = fs.ReadFileLimit("link", 0)
	assert.ErrorIs(t, err, ErrTraversal)
}

func TestNewSafeFS_NotADirectory(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(p, nil, 0o644))
	_, err := NewSafeFS(p)
	require.Error(t, err)
	_, err = NewSafeFS(filepath.Join(dir, "missing"))
	require.Error(t, err)
}
