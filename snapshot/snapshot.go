// Package snapshot holds the fingerprint state of all watched files at one
// point in time, plus a small holder for the latest one.
package snapshot

import (
	"maps"
	"time"
)

// Snapshot is the wire shape streamed to the browser on every tick.
// ReloadHash is empty when no markup file matched.
type Snapshot struct {
	ReloadHash string            `json:"reload_hash"`
	CSSHash    map[string]string `json:"css_hash"`
	JSHash     map[string]string `json:"js_hash"`
	Time       string            `json:"time"`
}

// New returns an empty snapshot with non-nil maps, stamped with t.
// Non-nil maps encode as {} so the client can tell "no files" from "absent".
func New(t time.Time) Snapshot {
	return Snapshot{
		CSSHash: make(map[string]string),
		JSHash:  make(map[string]string),
		Time:    t.UTC().Format(time.RFC3339),
	}
}

// Equal reports whether two snapshots describe the same file contents.
// Time is ignored.
func (s Snapshot) Equal(other Snapshot) bool {
	return s.ReloadHash == other.ReloadHash &&
		maps.Equal(s.CSSHash, other.CSSHash) &&
		maps.Equal(s.JSHash, other.JSHash)
}

// Clone returns a deep copy
func (s Snapshot) Clone() Snapshot {
	out := s
	if s.CSSHash != nil {
		out.CSSHash = maps.Clone(s.CSSHash)
	}
	if s.JSHash != nil {
		out.JSHash = maps.Clone(s.JSHash)
	}
	return out
}

// FileCount is the number of CSS and JS entries (markup is rolled up)
func (s Snapshot) FileCount() int {
	return len(s.CSSHash) + len(s.JSHash)
}
