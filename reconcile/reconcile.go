// Package reconcile decides what a page should do when a new snapshot
// arrives: nothing, reload the whole page, or refetch only the stylesheets
// whose files changed. It is the reference for the browser client in
// web/assets/js/livereload.js, which runs the same steps against the DOM.
package reconcile

import (
	"maps"
	"time"

	"livereload/snapshot"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/goccy/go-json"
	"github.com/rohanthewiz/serr"
)

// State is the baseline captured when the page loaded.
// Only CSSHash moves forward, after stylesheets have been refetched.
type State struct {
	ReloadHash string            `json:"reload_hash"`
	CSSHash    map[string]string `json:"css_hash"`
	JSHash     map[string]string `json:"js_hash"`
}

// StateFrom takes the baseline from a page-load snapshot
func StateFrom(s snapshot.Snapshot) State {
	return State{
		ReloadHash: s.ReloadHash,
		CSSHash:    maps.Clone(s.CSSHash),
		JSHash:     maps.Clone(s.JSHash),
	}
}

// Page is a read-only view of the resources a page loaded: resolved
// script src and stylesheet href values, in document order.
type Page struct {
	Scripts     []string `json:"scripts"`
	Stylesheets []string `json:"stylesheets"`
}

func (p Page) clone() Page {
	return Page{
		Scripts:     append([]string(nil), p.Scripts...),
		Stylesheets: append([]string(nil), p.Stylesheets...),
	}
}

type Action int

const (
	None Action = iota
	Reload
	Restyle
)

func (a Action) String() string {
	switch a {
	case Reload:
		return "reload"
	case Restyle:
		return "restyle"
	}
	return "none"
}

func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// Patch rewrites one stylesheet element's href
type Patch struct {
	Index int    `json:"index"` // position in Page.Stylesheets
	URI   string `json:"uri"`   // the changed URI it matched
	From  string `json:"from"`
	To    string `json:"to"`
}

type Decision struct {
	Action  Action  `json:"action"`
	Reason  string  `json:"reason,omitempty"`
	Patches []Patch `json:"patches,omitempty"`
}

// Reconciler holds one page view's baseline. It is not safe for concurrent
// use; events are applied one at a time in arrival order.
type Reconciler struct {
	state    State
	page     Page
	mode     MatchMode
	nextBust int64
}

type Option func(*Reconciler)

func WithMatchMode(mode MatchMode) Option {
	return func(r *Reconciler) {
		if mode != "" {
			r.mode = mode
		}
	}
}

// WithCacheBustSeed sets the first cache-busting number; later ones count up
func WithCacheBustSeed(seed int64) Option {
	return func(r *Reconciler) {
		r.nextBust = seed
	}
}

// New copies state and page; the caller's values are never mutated
func New(state State, page Page, opts ...Option) *Reconciler {
	r := &Reconciler{
		state: State{
			ReloadHash: state.ReloadHash,
			CSSHash:    maps.Clone(state.CSSHash),
			JSHash:     maps.Clone(state.JSHash),
		},
		page:     page.clone(),
		mode:     MatchSubstring,
		nextBust: time.Now().Unix(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle decodes one event payload and applies it. A payload that does not
// decode leaves the reconciler untouched.
func (r *Reconciler) Handle(data []byte) (Decision, error) {
	var s snapshot.Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Decision{}, serr.Wrap(err, "failed to decode live reload event")
	}
	return r.Apply(s), nil
}

// Apply runs the three steps in priority order: markup change, changed
// script on this page, changed stylesheets on this page.
func (r *Reconciler) Apply(s snapshot.Snapshot) Decision {
	if s.ReloadHash != "" && s.ReloadHash != r.state.ReloadHash {
		return Decision{Action: Reload, Reason: "markup changed"}
	}

	if s.JSHash != nil {
		for _, uri := range Changed(r.state.JSHash, s.JSHash) {
			for _, src := range r.page.Scripts {
				if r.mode.matches(src, uri) {
					return Decision{Action: Reload, Reason: "script changed: " + uri}
				}
			}
		}
	}

	if s.CSSHash == nil {
		return Decision{Action: None}
	}
	changed := Changed(r.state.CSSHash, s.CSSHash)
	if len(changed) == 0 {
		return Decision{Action: None}
	}

	pending := mapset.NewThreadUnsafeSet(changed...)
	var patches []Patch
	for i, href := range r.page.Stylesheets {
		if pending.Cardinality() == 0 {
			break
		}
		for _, uri := range sorted(pending) {
			if !r.mode.matches(href, uri) {
				continue
			}
			to := bustHref(href, r.bust())
			patches = append(patches, Patch{Index: i, URI: uri, From: href, To: to})
			r.page.Stylesheets[i] = to
			pending.Remove(uri)
			break
		}
	}

	r.state.CSSHash = maps.Clone(s.CSSHash)

	if len(patches) == 0 {
		return Decision{Action: None, Reason: "changed stylesheets are not on this page"}
	}
	return Decision{Action: Restyle, Patches: patches}
}

func (r *Reconciler) bust() int64 {
	n := r.nextBust
	r.nextBust++
	return n
}

// State returns a copy of the current baseline
func (r *Reconciler) State() State {
	return State{
		ReloadHash: r.state.ReloadHash,
		CSSHash:    maps.Clone(r.state.CSSHash),
		JSHash:     maps.Clone(r.state.JSHash),
	}
}

// Page returns a copy of the page view, including patched hrefs
func (r *Reconciler) Page() Page {
	return r.page.clone()
}
