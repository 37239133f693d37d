package repo

import (
	"errors"
	"net/url"
	"strings"

	"archgen/internal/pipeerr"
)

var (
	ErrUnsupportedScheme = errors.New("unsupported repository URL scheme")
	ErrUnsupportedHost   = errors.New("repository host is not allowed")
	ErrMalformedURL      = errors.New("malformed repository URL")
	ErrRepoTooLarge      = errors.New("repository exceeds the size ceiling")
	ErrInvalidDepth      = errors.New("clone depth out of range")
)

var DefaultAllowedHosts = []string{"github.com", "gitlab.com", "bitbucket.org"}

// ValidateURL checks a clone URL before anything touches the filesystem.
// Accepted forms are http(s)://, git:// and scp-like git@host:owner/repo.
// The host must be allowed unless the path ends in .git.
func ValidateURL(raw string, allowedHosts []string) error {
	const op = "repo.validate_url"
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return pipeerr.Fetch(op, ErrMalformedURL, "repository URL is required")
	}
	if len(allowedHosts) == 0 {
		allowedHosts = DefaultAllowedHosts
	}

	var host, path string
	if rest, ok := strings.CutPrefix(raw, "git@"); ok {
		h, p, found := strings.Cut(rest, ":")
		if !found || h == "" || strings.Trim(p, "/") == "" {
			return pipeerr.Fetch(op, ErrMalformedURL, "invalid scp-style repository URL %q", raw)
		}
		host, path = h, p
	} else {
		u, err := url.Parse(raw)
		if err != nil {
			return pipeerr.Fetch(op, ErrMalformedURL, "invalid repository URL %q", raw)
		}
		switch strings.ToLower(u.Scheme) {
		case "http", "https", "git":
		default:
			return pipeerr.Fetch(op, ErrUnsupportedScheme, "unsupported URL scheme %q; use https://, git:// or git@", u.Scheme)
		}
		if u.Host == "" || strings.Trim(u.Path, "/") == "" {
			return pipeerr.Fetch(op, ErrMalformedURL, "repository URL %q has no host or path", raw)
		}
		if u.User != nil {
			return pipeerr.Fetch(op, ErrMalformedURL, "credentials in repository URLs are not accepted")
		}
		host, path = u.Hostname(), u.Path
	}
	if strings.HasPrefix(path, "-") || strings.HasPrefix(host, "-") {
		return pipeerr.Fetch(op, ErrMalformedURL, "invalid repository URL %q", raw)
	}

	if strings.HasSuffix(path, ".git") {
		return nil
	}
	host = strings.ToLower(host)
	for _, h := range allowedHosts {
		if host == strings.ToLower(h) || strings.HasSuffix(host, "."+strings.ToLower(h)) {
			return nil
		}
	}
	return pipeerr.Fetch(op, ErrUnsupportedHost, "host %q is not supported; allowed: %s, or a URL ending in .git", host, strings.Join(allowedHosts, ", "))
}
