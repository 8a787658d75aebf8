package fingerprint

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMountResolver(t *testing.T) {
	root := t.TempDir()
	themes := filepath.Join(root, "themes")
	child := filepath.Join(themes, "crate-child")

	r := NewMountResolver(
		Mount{Dir: themes, BaseURL: "https://site.test/wp-content/themes/"},
		Mount{Dir: child, BaseURL: "https://cdn.site.test/child"},
	)
	realRoot := realDir(root)

	tests := []struct {
		name   string
		path   string
		want   string
		wantOK bool
	}{
		{
			name:   "file under the outer mount",
			path:   filepath.Join(realRoot, "themes", "crate", "css", "style.css"),
			want:   "https://site.test/wp-content/themes/crate/css/style.css",
			wantOK: true,
		},
		{
			name:   "longest mount wins",
			path:   filepath.Join(realRoot, "themes", "crate-child", "app.js"),
			want:   "https://cdn.site.test/child/app.js",
			wantOK: true,
		},
		{
			name:   "segments are escaped",
			path:   filepath.Join(realRoot, "themes", "crate", "my styles", "a b.css"),
			want:   "https://site.test/wp-content/themes/crate/my%20styles/a%20b.css",
			wantOK: true,
		},
		{
			name: "outside every mount",
			path: filepath.Join(realRoot, "plugins", "x.css"),
		},
		{
			name: "the mount directory itself",
			path: filepath.Join(realRoot, "themes"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := r.Resolve(tt.path)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolverFunc(t *testing.T) {
	var r Resolver = ResolverFunc(func(p string) (string, bool) { return "/x" + p, true })
	got, ok := r.Resolve("/a.css")
	assert.True(t, ok)
	assert.Equal(t, "/x/a.css", got)
}
