package web

import (
	"livereload/reconcile"
	"livereload/snapshot"

	"github.com/goccy/go-json"
	"github.com/rohanthewiz/element"
	"github.com/rohanthewiz/serr"
)

const (
	RoutePrefix  = "/livereload"
	WatchPath    = RoutePrefix + "/watch"
	ClientPath   = RoutePrefix + "/client.js"
	StatePath    = RoutePrefix + "/state"
	SnippetPath  = RoutePrefix + "/snippet"
	StatusPath   = RoutePrefix + "/"
	clientGlobal = "live_reload"
)

// Bootstrap is the page-load state the client script reads from window.live_reload
type Bootstrap struct {
	Endpoint   string            `json:"endpoint"`
	ReloadHash string            `json:"reload_hash"`
	CSSHash    map[string]string `json:"css_hash"`
	JSHash     map[string]string `json:"js_hash"`
	Match      string            `json:"match"`
}

// NewBootstrap captures s as the baseline. publicURL is prefixed to the
// endpoint; empty keeps it relative to the page's origin.
func NewBootstrap(publicURL string, s snapshot.Snapshot, match reconcile.MatchMode) Bootstrap {
	s = s.Clone()
	if match == "" {
		match = reconcile.MatchSubstring
	}
	return Bootstrap{
		Endpoint:   publicURL + WatchPath,
		ReloadHash: s.ReloadHash,
		CSSHash:    s.CSSHash,
		JSHash:     s.JSHash,
		Match:      string(match),
	}
}

// State returns the baseline in reconciler form
func (bs Bootstrap) State() reconcile.State {
	return reconcile.State{ReloadHash: bs.ReloadHash, CSSHash: bs.CSSHash, JSHash: bs.JSHash}
}

// RenderSnippet produces the two script tags a page needs: the inline
// bootstrap object followed by the client script
func RenderSnippet(publicURL string, bs Bootstrap) (string, error) {
	b := element.NewBuilder()
	if err := writeSnippet(b, publicURL, bs); err != nil {
		return "", err
	}
	return b.String(), nil
}

func writeSnippet(b *element.Builder, publicURL string, bs Bootstrap) error {
	// Marshal escapes <, > and & so the payload cannot close the script element
	data, err := json.Marshal(bs)
	if err != nil {
		return serr.Wrap(err, "failed to encode live reload bootstrap")
	}

	b.Script().T("window." + clientGlobal + " = " + string(data) + ";")
	b.Script("src", publicURL+ClientPath, "defer", "defer").R()
	return nil
}
