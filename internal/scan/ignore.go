package scan

import (
	"path/filepath"
	"strings"
)

// vcsDirs are repository metadata, not repository content; they are
// neither descended nor listed.
var vcsDirs = map[string]bool{".git": true, ".hg": true, ".svn": true}

// ignoredDirs are listed in the tree as "name/" but never descended.
var ignoredDirs = map[string]bool{
	// dependencies
	"node_modules": true, "vendor": true, ".venv": true, "venv": true, "env": true,
	"bower_components": true,
	// build output
	"dist": true, "build": true, "target": true, "bin": true, "obj": true, "out": true,
	".gradle": true, ".next": true, "__pycache__": true,
	// tooling caches
	".idea": true, ".vscode": true, ".pytest_cache": true, ".mypy_cache": true, ".cache": true,
	".tox": true, ".terraform": true,
}

func isVCSDir(name string) bool { return vcsDirs[name] }

func isIgnoredDir(name string) bool { return ignoredDirs[name] }

func isBinary(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	// images
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".ico", ".bmp", ".tiff", ".psd":
		return true
	// video
	case ".mp4", ".m4v", ".mov", ".mkv", ".webm", ".avi":
		return true
	// audio
	case ".mp3", ".wav", ".ogg", ".flac", ".m4a":
		return true
	// archives
	case ".pdf", ".zip", ".jar", ".war", ".gz", ".tgz", ".bz2", ".xz", ".7z", ".rar":
		return true
	// compiled objects
	case ".exe", ".dll", ".dylib", ".so", ".a", ".o", ".class", ".pyc", ".pyo", ".pyd", ".wasm":
		return true
	// fonts and data blobs
	case ".woff", ".woff2", ".ttf", ".otf", ".eot", ".bin", ".db", ".sqlite":
		return true
	}
	return false
}
