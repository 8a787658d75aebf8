package fingerprint

import (
	"path/filepath"
	"strings"

	"github.com/rohanthewiz/serr"
)

// Class determines which hash a file's fingerprint belongs to
type Class int

const (
	CSS Class = iota
	JS
	Markup
)

// classExtensions lists the (lowercase) extensions each class watches
var classExtensions = map[Class][]string{
	CSS:    {".css"},
	JS:     {".js"},
	Markup: {".php", ".html"},
}

func (c Class) String() string {
	switch c {
	case CSS:
		return "css"
	case JS:
		return "js"
	case Markup:
		return "markup"
	}
	return "unknown"
}

// Matches reports whether the file name has one of the class's extensions, case-insensitively
func (c Class) Matches(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, want := range classExtensions[c] {
		if ext == want {
			return true
		}
	}
	return false
}

// ParseClass maps "css", "js", "markup" (also "php", "html") to a Class
func ParseClass(s string) (Class, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "css":
		return CSS, nil
	case "js", "javascript":
		return JS, nil
	case "markup", "php", "html":
		return Markup, nil
	}
	return 0, serr.F("unknown content class %q", s)
}

// WatchRoot is a directory scanned for one class of files
type WatchRoot struct {
	Path  string
	Class Class
}

// FileFingerprint is the content hash of one matched file
type FileFingerprint struct {
	URI   string `json:"uri,omitempty"` // empty when the resolver could not map the file
	Path  string `json:"path"`
	Class Class  `json:"-"`
	Hash  string `json:"hash"`
	Size  int64  `json:"size"`
}
