package proxy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rohanthewiz/rweb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const snippet = `<script src="/livereload/client.js"></script>`

func staticSnippet(ctx context.Context) (string, error) {
	return snippet, nil
}

func TestInject(t *testing.T) {
	tests := []struct {
		name string
		page string
		want string
	}{
		{"before body close", "<html><body><p>x</p></body></html>", "<html><body><p>x</p>" + snippet + "</body></html>"},
		{"case insensitive", "<BODY>x</BODY>", "<BODY>x" + snippet + "</BODY>"},
		{"last body close wins", "<body><pre></body></pre></body>", "<body><pre></body></pre>" + snippet + "</body>"},
		{"no body appends", "<p>fragment</p>", "<p>fragment</p>" + snippet},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(Inject([]byte(tt.page), snippet)))
		})
	}
}

func upstream(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

// startProxy serves a proxy to target on an ephemeral port and returns its base URL.
// rweb only leaves Run on a signal, so the server lives until the test binary exits.
func startProxy(t *testing.T, target string, fn SnippetFunc) string {
	t.Helper()
	p, err := New(context.Background(), target, fn)
	require.NoError(t, err)

	ready := make(chan struct{}, 1)
	s := rweb.NewServer(rweb.ServerOptions{Address: "localhost:", ReadyChan: ready})
	p.SetupRoutes(s)
	go func() { _ = s.Run() }()

	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		t.Fatal("proxy did not start")
	}
	return "http://localhost:" + s.GetListenPort()
}

// do sends req without following redirects or decoding the body
func do(t *testing.T, req *http.Request) (*http.Response, string) {
	t.Helper()
	resp, err := http.DefaultTransport.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	return do(t, req)
}

func TestProxyInjectsIntoHTML(t *testing.T) {
	var sawEncoding string
	up := upstream(t, func(w http.ResponseWriter, r *http.Request) {
		sawEncoding = r.Header.Get("Accept-Encoding")
		w.Header().Set("Content-Type", "text/html; charset=UTF-8")
		w.Header().Set("ETag", `"v1"`)
		_, _ = io.WriteString(w, "<html><body>hello</body></html>")
	})
	front := startProxy(t, up.URL, staticSnippet)

	req, err := http.NewRequest(http.MethodGet, front+"/page", nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Encoding", "gzip")
	resp, body := do(t, req)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "identity", sawEncoding)
	assert.Equal(t, "<html><body>hello"+snippet+"</body></html>", body)
	assert.Equal(t, int64(len(body)), resp.ContentLength)
	assert.Equal(t, "text/html; charset=UTF-8", resp.Header.Get("Content-Type"))
	assert.Empty(t, resp.Header.Get("ETag"))
}

func TestProxyForwardsPathQueryAndRoot(t *testing.T) {
	var seen []string
	up := upstream(t, func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.URL.RequestURI())
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, "ok")
	})
	front := startProxy(t, up.URL, staticSnippet)

	get(t, front+"/")
	get(t, front+"/blog/a%20b?p=1&x=2")

	assert.Equal(t, []string{"/", "/blog/a%20b?p=1&x=2"}, seen)
}

func TestProxyForwardsMethodBodyAndStatus(t *testing.T) {
	var method, body, custom string
	up := upstream(t, func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		custom = r.Header.Get("X-Custom")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":1}`)
	})
	front := startProxy(t, up.URL, staticSnippet)

	req, err := http.NewRequest(http.MethodPost, front+"/wp-json/items", strings.NewReader(`{"name":"a"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Custom", "yes")
	resp, got := do(t, req)

	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, `{"name":"a"}`, body)
	assert.Equal(t, "yes", custom)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, `{"id":1}`, got)
}

func TestProxyLeavesOtherContentAlone(t *testing.T) {
	up := upstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/css")
		_, _ = io.WriteString(w, "body{color:red}</body>")
	})
	front := startProxy(t, up.URL, staticSnippet)

	_, body := get(t, front+"/style.css")
	assert.Equal(t, "body{color:red}</body>", body)
}

func TestProxyServesPageWhenSnippetFails(t *testing.T) {
	up := upstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, "<body>ok</body>")
	})
	front := startProxy(t, up.URL, func(ctx context.Context) (string, error) {
		return "", errors.New("scan failed")
	})

	resp, body := get(t, front)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<body>ok</body>", body)
}

func TestProxyUpstreamDown(t *testing.T) {
	up := httptest.NewServer(http.NotFoundHandler())
	target := up.URL
	up.Close()

	front := startProxy(t, target, staticSnippet)

	resp, _ := get(t, front)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestProxyFollowsOnlyTrailingSlashRedirect(t *testing.T) {
	var up *httptest.Server
	up = upstream(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/about":
			http.Redirect(w, r, up.URL+"/about/", http.StatusMovedPermanently)
		case "/about/":
			w.Header().Set("Content-Type", "text/html")
			_, _ = io.WriteString(w, "<body>about</body>")
		case "/login":
			http.Redirect(w, r, up.URL+"/wp-admin/?from=login", http.StatusFound)
		}
	})
	front := startProxy(t, up.URL, staticSnippet)

	// rweb sees "/about"; the upstream's slash redirect is followed in place
	resp, body := get(t, front+"/about/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<body>about"+snippet+"</body>", body)

	resp, _ = get(t, front+"/login")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/wp-admin/?from=login", resp.Header.Get("Location"))
}

func TestProxyKeepsEveryCookie(t *testing.T) {
	up := upstream(t, func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "a", Value: "1"})
		http.SetCookie(w, &http.Cookie{Name: "b", Value: "2"})
		http.SetCookie(w, &http.Cookie{Name: "c", Value: "3"})
	})
	front := startProxy(t, up.URL, staticSnippet)

	resp, _ := get(t, front+"/wp-login.php")
	names := []string{}
	for _, c := range resp.Cookies() {
		names = append(names, c.Name+"="+c.Value)
	}
	assert.ElementsMatch(t, []string{"a=1", "b=2", "c=3"}, names)
}

func TestKeyVariant(t *testing.T) {
	assert.Equal(t, "Set-Cookie", keyVariant("Set-Cookie", 0))
	assert.Equal(t, "set-Cookie", keyVariant("Set-Cookie", 1))
	assert.Equal(t, "sET-Cookie", keyVariant("Set-Cookie", 7))

	seen := map[string]bool{}
	for i := 0; i < 64; i++ {
		v := keyVariant("Set-Cookie", i)
		assert.True(t, strings.EqualFold("Set-Cookie", v))
		seen[v] = true
	}
	assert.Len(t, seen, 64)
}

func TestLocalize(t *testing.T) {
	p, err := New(context.Background(), "http://wp.test/site/", staticSnippet)
	require.NoError(t, err)

	assert.Equal(t, "/about/?x=1", p.localize("http://wp.test/site/about/?x=1"))
	assert.Equal(t, "/", p.localize("http://wp.test/site"))
	assert.Equal(t, "https://other.test/x", p.localize("https://other.test/x"))
	assert.Equal(t, "/relative", p.localize("/relative"))
}

func TestNewRejectsBadTarget(t *testing.T) {
	_, err := New(context.Background(), "localhost:8080", staticSnippet)
	assert.Error(t, err)

	_, err = New(context.Background(), "://", staticSnippet)
	assert.Error(t, err)
}
