// Package repo fetches shallow, size-bounded checkouts of remote repositories
// into scoped temporary directories.
package repo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"archgen/internal/pipeerr"
)

// Cloner materialises url into dir.
type Cloner interface {
	Clone(ctx context.Context, url, dir string, depth int) error
}

// ClonerFunc adapts a function to Cloner.
type ClonerFunc func(ctx context.Context, url, dir string, depth int) error

func (f ClonerFunc) Clone(ctx context.Context, url, dir string, depth int) error {
	return f(ctx, url, dir, depth)
}

// GitCloner shells out to the git binary.
type GitCloner struct {
	Binary string
}

func (g GitCloner) Clone(ctx context.Context, url, dir string, depth int) error {
	bin := g.Binary
	if bin == "" {
		bin = "git"
	}
	args := []string{"clone", "--depth", strconv.Itoa(depth), "--single-branch", "--no-tags", "--", url, dir}
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

const defaultPollInterval = 250 * time.Millisecond

// Source hands out checkouts. The zero value clones with git into the
// system temp directory and applies no size ceiling.
type Source struct {
	Cloner       Cloner
	TempRoot     string
	Prefix       string
	MaxBytes     int64
	MinDepth     int
	MaxDepth     int
	AllowedHosts []string
	// PollInterval controls how often the checkout size is sampled during a clone.
	PollInterval time.Duration
	Logger       *log.Logger
}

// Checkout is a local repository directory. Owned checkouts are deleted on Close.
type Checkout struct {
	Path  string
	Bytes int64
	owned bool
	once  sync.Once
	err   error
}

// Local wraps an existing directory. Close leaves it in place.
func Local(path string) (*Checkout, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, pipeerr.Fetch("repo.local", err, "invalid path %q", path)
	}
	st, err := os.Stat(abs)
	if err != nil {
		return nil, pipeerr.Fetch("repo.local", err, "cannot open %q", path)
	}
	if !st.IsDir() {
		return nil, pipeerr.Fetch("repo.local", fmt.Errorf("%s is not a directory", abs), "%q is not a directory", path)
	}
	return &Checkout{Path: abs}, nil
}

// Close removes an owned checkout. It is safe to call more than once.
func (c *Checkout) Close() error {
	if c == nil || !c.owned {
		return nil
	}
	c.once.Do(func() {
		c.err = os.RemoveAll(c.Path)
	})
	return c.err
}

// Fetch validates url and clones it at the given depth into a fresh temp
// directory. The directory is removed on every failure path.
func (s *Source) Fetch(ctx context.Context, url string, depth int) (*Checkout, error) {
	const op = "repo.fetch"
	lo, hi := s.depthBounds()
	if depth < lo || depth > hi {
		return nil, pipeerr.Fetch(op, ErrInvalidDepth, "clone depth must be between %d and %d, got %d", lo, hi, depth)
	}
	if err := ValidateURL(url, s.AllowedHosts); err != nil {
		return nil, err
	}

	prefix := s.Prefix
	if prefix == "" {
		prefix = "repo_analyze_"
	}
	dir, err := os.MkdirTemp(s.TempRoot, prefix)
	if err != nil {
		return nil, pipeerr.Fetch(op, err, "cannot create temporary directory")
	}
	co := &Checkout{Path: dir, owned: true}

	if err := s.clone(ctx, url, dir, depth); err != nil {
		if rmErr := co.Close(); rmErr != nil {
			s.logf("repo: cleanup of %s failed: %v", dir, rmErr)
		}
		return nil, err
	}

	size, err := DirSize(dir)
	if err != nil {
		_ = co.Close()
		return nil, pipeerr.Fetch(op, err, "cannot measure checkout")
	}
	if s.MaxBytes > 0 && size > s.MaxBytes {
		_ = co.Close()
		return nil, pipeerr.Fetch(op, ErrRepoTooLarge, "repository is %s, limit is %s", humanBytes(size), humanBytes(s.MaxBytes))
	}
	co.Bytes = size
	s.logf("repo: cloned %s (depth %d, %s) into %s", url, depth, humanBytes(size), dir)
	return co, nil
}

// clone runs the cloner while sampling the directory size, aborting the
// clone as soon as the ceiling is crossed.
func (s *Source) clone(ctx context.Context, url, dir string, depth int) error {
	const op = "repo.fetch"
	cloner := s.Cloner
	if cloner == nil {
		cloner = GitCloner{}
	}

	cloneCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var overLimit atomic.Bool
	done := make(chan struct{})
	if s.MaxBytes > 0 {
		interval := s.PollInterval
		if interval <= 0 {
			interval = defaultPollInterval
		}
		go func() {
			t := time.NewTicker(interval)
			defer t.Stop()
			for {
				select {
				case <-done:
					return
				case <-cloneCtx.Done():
					return
				case <-t.C:
					if n, err := DirSize(dir); err == nil && n > s.MaxBytes {
						overLimit.Store(true)
						cancel()
						return
					}
				}
			}
		}()
	}

	err := cloner.Clone(cloneCtx, url, dir, depth)
	close(done)
	switch {
	case overLimit.Load():
		return pipeerr.Fetch(op, ErrRepoTooLarge, "repository exceeds the %s limit", humanBytes(s.MaxBytes))
	case ctx.Err() != nil:
		return pipeerr.Canceled(op, ctx.Err())
	case err != nil:
		return pipeerr.Fetch(op, err, "clone of %s failed", url)
	}
	return nil
}

func (s *Source) depthBounds() (int, int) {
	lo, hi := s.MinDepth, s.MaxDepth
	if lo <= 0 {
		lo = 1
	}
	if hi <= 0 {
		hi = 3
	}
	return lo, hi
}

func (s *Source) logf(format string, args ...any) {
	if s.Logger != nil {
		s.Logger.Printf(format, args...)
	}
}

// DirSize sums regular file sizes under root without following symlinks.
func DirSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			// files may vanish while a clone is still writing
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
