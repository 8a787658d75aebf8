package reconcile

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/rohanthewiz/serr"
)

// Changed returns, sorted, the keys whose hash differs between baseline and
// next: removed keys, added keys, and keys mapped to a different hash.
func Changed(baseline, next map[string]string) []string {
	changed := mapset.NewThreadUnsafeSet[string]()
	for uri, hash := range baseline {
		if nextHash, ok := next[uri]; !ok || nextHash != hash {
			changed.Add(uri)
		}
	}
	for uri := range next {
		if _, ok := baseline[uri]; !ok {
			changed.Add(uri)
		}
	}
	return sorted(changed)
}

func sorted(set mapset.Set[string]) []string {
	out := set.ToSlice()
	sort.Strings(out)
	return out
}

// MatchMode decides whether a page resource is served by a changed URI
type MatchMode string

const (
	// MatchSubstring treats the resource as matching when it contains the URI.
	// Loose on purpose: resolved URLs carry query strings and host prefixes.
	MatchSubstring MatchMode = "substring"
	// MatchStrict compares URL paths only, so /css/a.css never matches /vendor/css/a.css
	MatchStrict MatchMode = "strict"
)

// ParseMatchMode accepts "", "substring" or "strict"
func ParseMatchMode(s string) (MatchMode, error) {
	switch MatchMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", MatchSubstring:
		return MatchSubstring, nil
	case MatchStrict:
		return MatchStrict, nil
	}
	return "", serr.F("unknown match mode %q", s)
}

func (m MatchMode) matches(resource, uri string) bool {
	if uri == "" || resource == "" {
		return false
	}
	if m == MatchStrict {
		return urlPath(resource) == urlPath(uri)
	}
	return strings.Contains(resource, uri)
}

// urlPath strips scheme, host, query and fragment
func urlPath(s string) string {
	if u, err := url.Parse(s); err == nil {
		return u.Path
	}
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	return s
}

// bustHref makes the browser refetch href. A trailing all-digit query token
// (left by an earlier bust) is replaced, otherwise n is appended.
func bustHref(href string, n int64) string {
	fragment := ""
	if i := strings.IndexByte(href, '#'); i >= 0 {
		href, fragment = href[:i], href[i:]
	}

	token := strconv.FormatInt(n, 10)
	base, query, _ := strings.Cut(href, "?")
	if query == "" {
		return base + "?" + token + fragment
	}

	parts := strings.Split(query, "&")
	if last := parts[len(parts)-1]; isDigits(last) {
		parts[len(parts)-1] = token
	} else {
		parts = append(parts, token)
	}
	return base + "?" + strings.Join(parts, "&") + fragment
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
