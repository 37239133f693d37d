package repo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archgen/internal/pipeerr"
)

func write(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func tempEntries(t *testing.T, root string) []string {
	t.Helper()
	ents, err := os.ReadDir(root)
	require.NoError(t, err)
	var names []string
	for _, e := range ents {
		names = append(names, e.Name())
	}
	return names
}

func TestValidateURL(t *testing.T) {
	ok := []string{
		"https://github.com/acme/shop",
		"https://github.com/acme/shop.git",
		"http://gitlab.com/group/sub/project",
		"git://bitbucket.org/team/repo",
		"git@github.com:acme/shop.git",
		"https://git.example.com/team/repo.git",
	}
	for _, u := range ok {
		assert.NoError(t, ValidateURL(u, nil), u)
	}

	bad := map[string]error{
		"ftp://github.com/acme/shop":           ErrUnsupportedScheme,
		"file:///etc":                          ErrUnsupportedScheme,
		"github.com/acme/shop":                 ErrUnsupportedScheme,
		"https://example.com/acme/shop":        ErrUnsupportedHost,
		"https://github.com/":                  ErrMalformedURL,
		"git@github.com":                       ErrMalformedURL,
		"https://user:pw@github.com/acme/shop": ErrMalformedURL,
		"":                                     ErrMalformedURL,
	}
	for u, want := range bad {
		err := ValidateURL(u, nil)
		require.Error(t, err, u)
		assert.True(t, errors.Is(err, want), "%s: %v", u, err)
		assert.True(t, pipeerr.Is(err, pipeerr.KindFetch), u)
	}
}

func TestFetch_RejectsSchemeBeforeCheckout(t *testing.T) {
	tmp := t.TempDir()
	called := false
	s := &Source{
		TempRoot: tmp,
		Cloner: ClonerFunc(func(context.Context, string, string, int) error {
			called = true
			return nil
		}),
	}
	_, err := s.Fetch(context.Background(), "ftp://github.com/acme/shop", 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedScheme))
	assert.False(t, called)
	assert.Empty(t, tempEntries(t, tmp))
}

func TestFetch_DepthBounds(t *testing.T) {
	s := &Source{TempRoot: t.TempDir(), Cloner: ClonerFunc(func(context.Context, string, string, int) error { return nil })}
	for _, d := range []int{0, 4, -1} {
		_, err := s.Fetch(context.Background(), "https://github.com/acme/shop", d)
		assert.True(t, errors.Is(err, ErrInvalidDepth), "depth %d", d)
	}
}

func TestFetch_SuccessAndIdempotentClose(t *testing.T) {
	tmp := t.TempDir()
	var gotDepth int
	s := &Source{
		TempRoot: tmp,
		Prefix:   "repo_analyze_",
		MaxBytes: 1 << 20,
		Cloner: ClonerFunc(func(_ context.Context, _ string, dir string, depth int) error {
			gotDepth = depth
			write(t, dir, "README.md", "# shop")
			write(t, dir, "cmd/main.go", "package main")
			return nil
		}),
	}
	co, err := s.Fetch(context.Background(), "https://github.com/acme/shop", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, gotDepth)
	assert.True(t, strings.HasPrefix(filepath.Base(co.Path), "repo_analyze_"))
	assert.Equal(t, int64(len("# shop")+len("package main")), co.Bytes)

	require.NoError(t, co.Close())
	require.NoError(t, co.Close())
	_, err = os.Stat(co.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestFetch_CloneFailureRemovesDir(t *testing.T) {
	tmp := t.TempDir()
	s := &Source{
		TempRoot: tmp,
		Cloner: ClonerFunc(func(_ context.Context, _ string, dir string, _ int) error {
			write(t, dir, "partial", "x")
			return errors.New("fatal: repository not found")
		}),
	}
	_, err := s.Fetch(context.Background(), "https://github.com/acme/missing", 1)
	require.Error(t, err)
	assert.True(t, pipeerr.Is(err, pipeerr.KindFetch))
	assert.Empty(t, tempEntries(t, tmp))
}

func TestFetch_TooLargeAfterClone(t *testing.T) {
	tmp := t.TempDir()
	s := &Source{
		TempRoot: tmp,
		MaxBytes: 10,
		// sampling never fires before the clone returns
		PollInterval: time.Hour,
		Cloner: ClonerFunc(func(_ context.Context, _ string, dir string, _ int) error {
			write(t, dir, "big.bin", strings.Repeat("x", 100))
			return nil
		}),
	}
	_, err := s.Fetch(context.Background(), "https://github.com/acme/big", 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRepoTooLarge))
	assert.Empty(t, tempEntries(t, tmp))
}

func TestFetch_TooLargeAbortsRunningClone(t *testing.T) {
	tmp := t.TempDir()
	s := &Source{
		TempRoot:     tmp,
		MaxBytes:     10,
		PollInterval: 5 * time.Millisecond,
		Cloner: ClonerFunc(func(ctx context.Context, _ string, dir string, _ int) error {
			write(t, dir, "big.bin", strings.Repeat("x", 100))
			<-ctx.Done()
			return ctx.Err()
		}),
	}
	_, err := s.Fetch(context.Background(), "https://github.com/acme/big", 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRepoTooLarge))
	assert.Empty(t, tempEntries(t, tmp))
}

func TestFetch_CanceledRemovesDir(t *testing.T) {
	tmp := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Source{
		TempRoot: tmp,
		Cloner: ClonerFunc(func(ctx context.Context, _ string, _ string, _ int) error {
			cancel()
			<-ctx.Done()
			return ctx.Err()
		}),
	}
	_, err := s.Fetch(ctx, "https://github.com/acme/shop", 1)
	require.Error(t, err)
	assert.True(t, pipeerr.Is(err, pipeerr.KindCanceled))
	assert.Empty(t, tempEntries(t, tmp))
}

func TestLocal_NotOwned(t *testing.T) {
	dir := t.TempDir()
	co, err := Local(dir)
	require.NoError(t, err)
	require.NoError(t, co.Close())
	_, err = os.Stat(dir)
	assert.NoError(t, err)

	_, err = Local(filepath.Join(dir, "missing"))
	assert.True(t, pipeerr.Is(err, pipeerr.KindFetch))
}
