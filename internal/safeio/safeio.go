package safeio

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

var (
	ErrTraversal = errors.New("safeio: path resolves outside root")
	ErrTooLarge  = errors.New("safeio: file exceeds read limit")
)

// SafeFS provides read-only helpers that resolve paths relative to a fixed root.
// Each pipeline run owns its own SafeFS bound to its checkout.
type SafeFS struct {
	absRoot string // absolute root with symlinks resolved
}

// NewSafeFS locks all future operations to the given root directory.
// The root path is resolved to an absolute, symlink-free directory.
func NewSafeFS(root string) (*SafeFS, error) {
	if root == "" {
		return nil, errors.New("safeio: empty root")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	abs, err = filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, errors.New("safeio: root is not a directory")
	}
	if _, err := os.ReadDir(abs); err != nil {
		return nil, err
	}
	return &SafeFS{absRoot: abs}, nil
}

func (s *SafeFS) Root() string {
	if s == nil {
		return ""
	}
	return s.absRoot
}

// Stat returns metadata for a root-relative path after symlink resolution.
func (s *SafeFS) Stat(rel string) (fs.FileInfo, error) {
	p, err := s.resolve(rel)
	if err != nil {
		return nil, err
	}
	return os.Stat(p)
}

// ReadDir lists a root-relative directory. Entries come back sorted by name.
func (s *SafeFS) ReadDir(rel string) ([]fs.DirEntry, error) {
	dir, err := s.resolve(rel)
	if err != nil {
		return nil, err
	}
	return os.ReadDir(dir)
}

// ReadFileLimit reads a root-relative file, refusing files larger than limit
// bytes without reading any content from them.
func (s *SafeFS) ReadFileLimit(rel string, limit int64) ([]byte, error) {
	p, err := s.resolve(rel)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, errors.New("safeio: path is a directory")
	}
	if limit > 0 && info.Size() > limit {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrTooLarge, rel, info.Size())
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if limit <= 0 {
		return io.ReadAll(f)
	}
	// The file may grow between stat and read; never read past the limit.
	return io.ReadAll(io.LimitReader(f, limit))
}

func (s *SafeFS) resolve(userPath string) (string, error) {
	if s == nil {
		return "", errors.New("safeio: filesystem not configured")
	}
	if userPath == "" {
		return "", errors.New("safeio: empty path")
	}
	clean := filepath.Clean(filepath.FromSlash(userPath))
	if clean == "." {
		return s.absRoot, nil
	}
	if filepath.IsAbs(clean) || (runtime.GOOS == "windows" && filepath.VolumeName(clean) != "") {
		return "", fmt.Errorf("%w: absolute path %s", ErrTraversal, userPath)
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrTraversal, userPath)
	}

	resolved, err := filepath.EvalSymlinks(filepath.Join(s.absRoot, clean))
	if err != nil {
		return "", err
	}
	if !hasPathPrefix(resolved, s.absRoot) {
		return "", fmt.Errorf("%w: %s -> %s", ErrTraversal, userPath, resolved)
	}
	return resolved, nil
}

func hasPathPrefix(path, root string) bool {
	path = filepath.Clean(path)
	root = filepath.Clean(root)
	if runtime.GOOS == "windows" {
		path = strings.ToLower(path)
		root = strings.ToLower(root)
	}
	if path == root {
		return true
	}
	sep := string(os.PathSeparator)
	if !strings.HasSuffix(root, sep) {
		root += sep
	}
	return strings.HasPrefix(path, root)
}
