// Package fingerprint computes content hashes for the CSS, JS and markup
// files under a set of watch roots. Scans are best-effort: a file that
// cannot be read is skipped, never fatal.
package fingerprint

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"livereload/snapshot"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rohanthewiz/logger"
)

const DefaultMaxDepth = 3

// DefaultExclude names the dependency folders never descended into
var DefaultExclude = []string{"node_modules"}

// Fingerprinter walks its roots and produces snapshots.
// It holds no state between scans, so one instance may serve many publishers.
type Fingerprinter struct {
	roots    []WatchRoot
	resolver Resolver
	maxDepth int
	exclude  []string
	now      func() time.Time
}

type Option func(*Fingerprinter)

// WithMaxDepth bounds traversal; depth 0 is a root's direct children
func WithMaxDepth(depth int) Option {
	return func(f *Fingerprinter) {
		if depth >= 0 {
			f.maxDepth = depth
		}
	}
}

// WithExclude replaces the exclude patterns (doublestar globs)
func WithExclude(patterns ...string) Option {
	return func(f *Fingerprinter) {
		f.exclude = nil
		for _, p := range patterns {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			if !doublestar.ValidatePattern(p) {
				logger.Warn("Ignoring invalid exclude pattern", "pattern", p)
				continue
			}
			f.exclude = append(f.exclude, p)
		}
	}
}

// WithClock sets the time source used to stamp snapshots
func WithClock(now func() time.Time) Option {
	return func(f *Fingerprinter) {
		if now != nil {
			f.now = now
		}
	}
}

// New creates a fingerprinter. A nil resolver drops every CSS/JS file from the maps.
func New(roots []WatchRoot, resolver Resolver, opts ...Option) *Fingerprinter {
	if resolver == nil {
		resolver = ResolverFunc(func(string) (string, bool) { return "", false })
	}

	f := &Fingerprinter{
		roots:    append([]WatchRoot(nil), roots...),
		resolver: resolver,
		maxDepth: DefaultMaxDepth,
		exclude:  append([]string(nil), DefaultExclude...),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Roots returns the watch roots in scan order
func (f *Fingerprinter) Roots() []WatchRoot {
	return append([]WatchRoot(nil), f.roots...)
}

// Result is a snapshot plus the per-file detail behind it
type Result struct {
	Snapshot snapshot.Snapshot
	Files    []FileFingerprint
	Bytes    int64
	Dropped  int // CSS/JS files the resolver could not map to a URI
}

// Snapshot scans all roots and returns the snapshot only
func (f *Fingerprinter) Snapshot(ctx context.Context) (snapshot.Snapshot, error) {
	res, err := f.Scan(ctx)
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	return res.Snapshot, nil
}

// Scan walks every root in order. The only error it returns is ctx's.
func (f *Fingerprinter) Scan(ctx context.Context) (Result, error) {
	res := Result{Snapshot: snapshot.New(f.now())}

	// The aggregate hashes the concatenated per-file hex digests in traversal order.
	markup := sha1.New()
	markupFiles := 0

	for _, root := range f.roots {
		files, err := f.walk(ctx, root)
		if err != nil {
			return Result{}, err
		}

		for _, fp := range files {
			res.Files = append(res.Files, fp)
			res.Bytes += fp.Size

			switch fp.Class {
			case Markup:
				_, _ = io.WriteString(markup, fp.Hash)
				markupFiles++
			case CSS, JS:
				if fp.URI == "" {
					res.Dropped++
					continue
				}
				if fp.Class == CSS {
					res.Snapshot.CSSHash[fp.URI] = fp.Hash
				} else {
					res.Snapshot.JSHash[fp.URI] = fp.Hash
				}
			}
		}
	}

	if markupFiles > 0 {
		res.Snapshot.ReloadHash = hex.EncodeToString(markup.Sum(nil))
	}
	return res, nil
}

// walk collects the matching files of one root in lexical order
func (f *Fingerprinter) walk(ctx context.Context, root WatchRoot) ([]FileFingerprint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	base, err := filepath.Abs(root.Path)
	if err == nil {
		base, err = filepath.EvalSymlinks(base)
	}
	if err != nil {
		logger.Debug("Skipping unreadable watch root", "path", root.Path, "error", err.Error())
		return nil, nil
	}

	var files []FileFingerprint
	walkErr := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			// Unreadable entry: skip it and, for directories, its subtree
			logger.Debug("Skipping unreadable path", "path", path, "error", err.Error())
			if d != nil && d.IsDir() && path != base {
				return fs.SkipDir
			}
			return nil
		}
		if path == base {
			return nil
		}

		rel, err := filepath.Rel(base, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if f.excluded(rel) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		depth := strings.Count(rel, "/")
		if d.IsDir() {
			if depth >= f.maxDepth {
				return fs.SkipDir
			}
			return nil
		}
		if depth > f.maxDepth || !root.Class.Matches(d.Name()) {
			return nil
		}

		if fp, ok := f.fingerprint(path, root.Class); ok {
			files = append(files, fp)
		}
		return nil
	})

	if walkErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logger.Debug("Watch root walk ended early", "path", base, "error", walkErr.Error())
	}
	return files, nil
}

// excluded reports whether any segment of rel (or rel itself) matches an exclude pattern
func (f *Fingerprinter) excluded(rel string) bool {
	for _, pattern := range f.exclude {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
		for _, seg := range strings.Split(rel, "/") {
			if ok, _ := doublestar.Match(pattern, seg); ok {
				return true
			}
		}
	}
	return false
}

// fingerprint hashes one file. Symlinked directories and anything that
// vanished or cannot be read are reported as not ok.
func (f *Fingerprinter) fingerprint(path string, class Class) (FileFingerprint, bool) {
	realPath, err := filepath.EvalSymlinks(path)
	if err != nil {
		logger.Debug("Skipping file with unresolvable path", "path", path, "error", err.Error())
		return FileFingerprint{}, false
	}

	fh, err := os.Open(realPath)
	if err != nil {
		logger.Debug("Skipping unreadable file", "path", realPath, "error", err.Error())
		return FileFingerprint{}, false
	}
	defer fh.Close()

	info, err := fh.Stat()
	if err != nil || !info.Mode().IsRegular() {
		return FileFingerprint{}, false
	}

	h := sha1.New()
	n, err := io.Copy(h, fh)
	if err != nil {
		logger.Debug("Skipping file that failed mid-read", "path", realPath, "error", err.Error())
		return FileFingerprint{}, false
	}

	fp := FileFingerprint{
		Path:  realPath,
		Class: class,
		Hash:  hex.EncodeToString(h.Sum(nil)),
		Size:  n,
	}
	if class != Markup {
		if uri, ok := f.resolver.Resolve(realPath); ok {
			fp.URI = uri
		}
	}
	return fp, true
}
