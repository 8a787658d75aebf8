package fingerprint

import (
	"net/url"
	"path/filepath"
	"sort"
	"strings"
)

// Resolver maps a file's real path to the URL the browser loads it from.
// ok is false when the path is not under any known public root.
type Resolver interface {
	Resolve(realPath string) (uri string, ok bool)
}

// ResolverFunc adapts a function to the Resolver interface
type ResolverFunc func(realPath string) (string, bool)

func (f ResolverFunc) Resolve(realPath string) (string, bool) {
	return f(realPath)
}

// Mount ties a directory on disk to the public base URL it is served under
type Mount struct {
	Dir     string
	BaseURL string
}

// MountResolver resolves paths against a set of mounts, longest directory first
type MountResolver struct {
	mounts []Mount
}

// NewMountResolver normalizes the mounts' directories to real, absolute paths
func NewMountResolver(mounts ...Mount) *MountResolver {
	normalized := make([]Mount, 0, len(mounts))
	for _, m := range mounts {
		if m.Dir == "" {
			continue
		}
		normalized = append(normalized, Mount{
			Dir:     realDir(m.Dir),
			BaseURL: strings.TrimRight(m.BaseURL, "/"),
		})
	}

	sort.SliceStable(normalized, func(i, j int) bool {
		return len(normalized[i].Dir) > len(normalized[j].Dir)
	})

	return &MountResolver{mounts: normalized}
}

// Resolve substitutes the owning mount's base URL for its directory prefix
func (r *MountResolver) Resolve(realPath string) (string, bool) {
	for _, m := range r.mounts {
		rel, err := filepath.Rel(m.Dir, realPath)
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}

		segments := strings.Split(filepath.ToSlash(rel), "/")
		for i, seg := range segments {
			segments[i] = url.PathEscape(seg)
		}
		return m.BaseURL + "/" + strings.Join(segments, "/"), true
	}
	return "", false
}

// Mounts returns the normalized mounts, longest directory first
func (r *MountResolver) Mounts() []Mount {
	return append([]Mount(nil), r.mounts...)
}

// realDir returns the absolute, symlink-free form of dir, falling back to
// the cleaned absolute path when it cannot be evaluated (e.g. not created yet).
func realDir(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = filepath.Clean(dir)
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real
	}
	return abs
}
