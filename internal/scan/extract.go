// Package scan summarizes a repository checkout: a bounded tree listing,
// per-file classification and the manifests found along the way.
package scan

import (
	"context"
	"io/fs"
	"path"

	"archgen/internal/pipeerr"
	"archgen/internal/safeio"
	"archgen/internal/scan/manifest"
)

type FileKind string

const (
	KindSource   FileKind = "source"
	KindManifest FileKind = "manifest"
	KindIgnored  FileKind = "ignored"
	KindTooLarge FileKind = "too_large"
)

// FileEntry describes one file seen during a single extraction pass.
type FileEntry struct {
	Path string // repo-relative, forward slashes
	Size int64
	Kind FileKind
}

type Options struct {
	MaxTreeLines   int
	MaxFileBytes   int64
	MaxFilesPerDir int // 0 lists every file
	MaxDeps        int
	MaxDepth       int // 0 descends without limit
}

func DefaultOptions() Options {
	return Options{MaxTreeLines: 300, MaxFileBytes: 40 << 10, MaxFilesPerDir: 20, MaxDeps: 10}
}

type ExtractionResult struct {
	Tree         string
	Files        []FileEntry
	Manifests    []manifest.Signal
	Technologies []string
	// Modules are the top-level directories that were descended.
	Modules []string
	// Truncated is set iff entries were dropped to respect MaxTreeLines.
	Truncated bool

	FilesScanned int
	FilesSkipped int // too_large
	FilesIgnored int // binary
	// Elided counts files folded into a per-directory "more files" line.
	Elided int
	// Unreadable counts entries that could not be read or resolved; never fatal.
	Unreadable int
}

// Extract walks root and produces one ExtractionResult. Identical file sets
// always render byte-identical tree text.
func Extract(ctx context.Context, root string, opts Options) (ExtractionResult, error) {
	// Zero means unset. A cap of 1 leaves room for the marker only.
	if opts.MaxTreeLines <= 0 {
		opts.MaxTreeLines = DefaultOptions().MaxTreeLines
	}
	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = DefaultOptions().MaxFileBytes
	}
	fsys, err := safeio.NewSafeFS(root)
	if err != nil {
		return ExtractionResult{}, pipeerr.Extraction("scan.extract", err)
	}
	w := &walker{ctx: ctx, fs: fsys, opts: opts}
	if err := w.walkDir(".", 0); err != nil {
		return ExtractionResult{}, err
	}

	tree, truncated := renderTree(w.lines, opts.MaxTreeLines)
	w.res.Tree = tree
	w.res.Truncated = truncated
	w.res.Technologies = manifest.Technologies(w.res.Manifests)
	return w.res, nil
}

type walker struct {
	ctx   context.Context
	fs    *safeio.SafeFS
	opts  Options
	res   ExtractionResult
	lines []treeLine
}

func (w *walker) walkDir(rel string, depth int) error {
	if err := w.ctx.Err(); err != nil {
		return pipeerr.Canceled("scan.extract", err)
	}
	entries, err := w.fs.ReadDir(rel)
	if err != nil {
		if rel == "." {
			return pipeerr.Extraction("scan.extract", err)
		}
		w.res.Unreadable++
		return nil
	}

	files := 0
	elided := 0
	for _, e := range entries {
		name := e.Name()
		childRel := name
		if rel != "." {
			childRel = path.Join(rel, name)
		}

		isDir := e.IsDir()
		if e.Type()&fs.ModeSymlink != 0 {
			// Links are resolved through the root-locked FS; anything that
			// escapes the checkout is dropped.
			info, err := w.fs.Stat(childRel)
			if err != nil {
				w.res.Unreadable++
				continue
			}
			if info.IsDir() {
				// never follow directory links; they may cycle
				w.lines = append(w.lines, treeLine{depth: depth, text: name + "/"})
				continue
			}
			isDir = false
		}

		if isDir {
			if isVCSDir(name) {
				continue
			}
			w.lines = append(w.lines, treeLine{depth: depth, text: name + "/"})
			if isIgnoredDir(name) {
				continue
			}
			if w.opts.MaxDepth > 0 && depth+1 >= w.opts.MaxDepth {
				continue
			}
			if depth == 0 {
				w.res.Modules = append(w.res.Modules, name)
			}
			if err := w.walkDir(childRel, depth+1); err != nil {
				return err
			}
			continue
		}

		entry := w.classify(childRel, name)
		if entry == nil {
			continue
		}
		w.res.Files = append(w.res.Files, *entry)
		w.res.FilesScanned++

		if w.opts.MaxFilesPerDir > 0 && files >= w.opts.MaxFilesPerDir {
			elided++
			continue
		}
		files++
		w.lines = append(w.lines, treeLine{depth: depth, text: name})
	}
	if elided > 0 {
		w.res.Elided += elided
		w.lines = append(w.lines, treeLine{depth: depth, text: elidedMarker(elided)})
	}
	return nil
}

// classify sizes and tags a file. Content is read only for manifests that fit
// under MaxFileBytes.
func (w *walker) classify(rel, name string) *FileEntry {
	info, err := w.fs.Stat(rel)
	if err != nil {
		w.res.Unreadable++
		return nil
	}
	entry := &FileEntry{Path: rel, Size: info.Size(), Kind: KindSource}

	_, isManifest := manifest.Lookup(name)
	switch {
	case isBinary(name):
		entry.Kind = KindIgnored
		w.res.FilesIgnored++
	case info.Size() > w.opts.MaxFileBytes:
		entry.Kind = KindTooLarge
		w.res.FilesSkipped++
		if isManifest {
			w.res.Manifests = append(w.res.Manifests, manifest.Detect(rel, name, nil, w.opts.MaxDeps))
		}
	case isManifest:
		entry.Kind = KindManifest
		data, err := w.fs.ReadFileLimit(rel, w.opts.MaxFileBytes)
		if err != nil {
			w.res.Unreadable++
			data = nil
		}
		w.res.Manifests = append(w.res.Manifests, manifest.Detect(rel, name, data, w.opts.MaxDeps))
	}
	return entry
}
