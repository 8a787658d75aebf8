// Package proxy serves an upstream dev site and injects the live reload
// snippet into every HTML page it returns.
package proxy

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/rweb"
	"github.com/rohanthewiz/serr"
)

// SnippetFunc renders the markup to inject for the page being served
type SnippetFunc func(ctx context.Context) (string, error)

// Proxy forwards requests to one upstream origin
type Proxy struct {
	ctx     context.Context
	target  *url.URL
	snippet SnippetFunc
	client  *http.Client
}

// New returns a proxy to target. Cancelling ctx aborts upstream requests in flight.
func New(ctx context.Context, target string, snippet SnippetFunc) (*Proxy, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, serr.Wrap(err, "invalid proxy target", "target", target)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, serr.F("proxy target %q needs a scheme and host", target)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")

	return &Proxy{
		ctx:     ctx,
		target:  u,
		snippet: snippet,
		client: &http.Client{
			Timeout:       time.Minute,
			CheckRedirect: followSlashRedirect,
		},
	}, nil
}

// followSlashRedirect hands redirects back to the browser, except the one
// that only re-adds a trailing slash: rweb trims it from the path before
// the handler runs, so passing that one on would loop.
func followSlashRedirect(req *http.Request, via []*http.Request) error {
	prev := via[len(via)-1]
	if len(via) == 1 &&
		(prev.Method == http.MethodGet || prev.Method == http.MethodHead) &&
		req.URL.Host == prev.URL.Host &&
		req.URL.Path == prev.URL.Path+"/" &&
		req.URL.RawQuery == prev.URL.RawQuery {
		return nil
	}
	return http.ErrUseLastResponse
}

var proxyMethods = []string{
	http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch,
	http.MethodDelete, http.MethodHead, http.MethodOptions,
}

// SetupRoutes forwards every path under every method to the upstream
func (p *Proxy) SetupRoutes(s *rweb.Server) {
	// The wildcard does not cover the root
	for _, path := range []string{"/", "/*path"} {
		for _, method := range proxyMethods {
			s.AddMethod(method, path, p.proxyHandler)
		}
	}
}

func (p *Proxy) proxyHandler(ctx rweb.Context) error {
	in := ctx.Request()

	// The path is still escaped as it arrived
	out := p.target.Scheme + "://" + p.target.Host + p.target.EscapedPath() + in.Path()
	if qry := in.Query(); qry != "" {
		out += "?" + qry
	}

	var body io.Reader
	if b := in.Body(); len(b) > 0 {
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(p.ctx, in.Method(), out, body)
	if err != nil {
		return serr.Wrap(err, "failed to create proxy request")
	}

	for _, header := range in.Headers() {
		if hopByHop(header.Key) {
			continue
		}
		req.Header.Add(header.Key, header.Value)
	}
	if host := in.Header("Host"); host != "" {
		req.Header.Set("X-Forwarded-Host", host)
	}
	req.Header.Set("X-Forwarded-Proto", "http")
	// Injection needs a plain body
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := p.client.Do(req)
	if err != nil {
		logger.Warn("Proxy request failed", "path", in.Path(), "error", err.Error())
		return ctx.WriteError(serr.New("upstream unavailable"), http.StatusBadGateway)
	}
	defer resp.Body.Close()

	page, err := io.ReadAll(resp.Body)
	if err != nil {
		return serr.Wrap(err, "failed to read upstream body", "path", in.Path())
	}

	if injectable(in.Method(), resp.StatusCode, resp.Header) {
		page = p.inject(page)
		resp.Header.Del("ETag")
	}
	if loc := resp.Header.Get("Location"); loc != "" {
		resp.Header.Set("Location", p.localize(loc))
	}

	for key, values := range resp.Header {
		if hopByHop(key) {
			continue
		}
		if strings.EqualFold(key, "Set-Cookie") {
			// rweb keeps one value per exact key; names are case-insensitive
			for i, v := range values {
				ctx.Response().SetHeader(keyVariant(key, i), v)
			}
			continue
		}
		ctx.Response().SetHeader(key, strings.Join(values, ", "))
	}

	ctx.Status(resp.StatusCode)
	return ctx.Bytes(page)
}

// inject adds the snippet; a failed render serves the page untouched
func (p *Proxy) inject(page []byte) []byte {
	markup, err := p.snippet(p.ctx)
	if err != nil {
		logger.LogErr(err, "failed to render live reload snippet")
		return page
	}
	return Inject(page, markup)
}

// localize makes upstream redirects land back on the proxy
func (p *Proxy) localize(loc string) string {
	u, err := url.Parse(loc)
	if err != nil || !strings.EqualFold(u.Host, p.target.Host) {
		return loc
	}
	u.Scheme, u.Host, u.User = "", "", nil
	u.Path = strings.TrimPrefix(u.Path, p.target.Path)
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String()
}

func injectable(method string, status int, header http.Header) bool {
	if method == http.MethodHead {
		return false
	}
	if status == http.StatusNoContent || status == http.StatusNotModified {
		return false
	}
	if enc := header.Get("Content-Encoding"); enc != "" && enc != "identity" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(header.Get("Content-Type"))
	return err == nil && mediaType == "text/html"
}

// hopByHopHeaders are not forwarded either way. Content-Length is
// recomputed: by net/http upstream and by rweb downstream.
var hopByHopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Connection", "Te", "Trailer",
	"Transfer-Encoding", "Upgrade", "Content-Length",
}

func hopByHop(key string) bool {
	for _, h := range hopByHopHeaders {
		if strings.EqualFold(key, h) {
			return true
		}
	}
	return false
}

// keyVariant flips the case of key's letters by the bits of n; 0 keeps key
func keyVariant(key string, n int) string {
	b := []byte(key)
	for i := 0; i < len(b) && n > 0; i++ {
		c := b[i]
		if ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') {
			if n&1 == 1 {
				b[i] ^= 0x20
			}
			n >>= 1
		}
	}
	return string(b)
}

var bodyClose = []byte("</body>")

// Inject inserts markup before the last </body>, or appends it when there is none
func Inject(page []byte, markup string) []byte {
	i := lastIndexFold(page, bodyClose)
	if i < 0 {
		return append(page, markup...)
	}

	out := make([]byte, 0, len(page)+len(markup))
	out = append(out, page[:i]...)
	out = append(out, markup...)
	return append(out, page[i:]...)
}

// lastIndexFold is bytes.LastIndex with ASCII case folding
func lastIndexFold(s, sep []byte) int {
	for i := len(s) - len(sep); i >= 0; i-- {
		if bytes.EqualFold(s[i:i+len(sep)], sep) {
			return i
		}
	}
	return -1
}
