package reconcile

import (
	"io"
	"net/url"
	"strings"

	"github.com/rohanthewiz/serr"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ParsePage collects script src and stylesheet href values from an HTML
// document, resolved against base (and a <base href> if the page has one).
// base may be nil, in which case values are kept as written.
func ParsePage(r io.Reader, base *url.URL) (Page, error) {
	var page Page
	z := html.NewTokenizer(r)

	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return page, serr.Wrap(err, "failed to tokenize page")
			}
			return page, nil

		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			switch tok.DataAtom {
			case atom.Base:
				if href := attr(tok, "href"); href != "" {
					base = resolveURL(base, href)
				}
			case atom.Script:
				if src := attr(tok, "src"); src != "" {
					page.Scripts = append(page.Scripts, resolve(base, src))
				}
			case atom.Link:
				href := attr(tok, "href")
				if href != "" && isStylesheet(attr(tok, "rel")) {
					page.Stylesheets = append(page.Stylesheets, resolve(base, href))
				}
			}
		}
	}
}

func attr(tok html.Token, name string) string {
	for _, a := range tok.Attr {
		if a.Key == name {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func isStylesheet(rel string) bool {
	for _, token := range strings.Fields(rel) {
		if strings.EqualFold(token, "stylesheet") {
			return true
		}
	}
	return false
}

func resolve(base *url.URL, ref string) string {
	if u := resolveURL(base, ref); u != nil {
		return u.String()
	}
	return ref
}

func resolveURL(base *url.URL, ref string) *url.URL {
	u, err := url.Parse(ref)
	if err != nil {
		return base
	}
	if base == nil {
		return u
	}
	return base.ResolveReference(u)
}
