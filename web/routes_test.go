package web

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"livereload/fingerprint"
	"livereload/reconcile"
	"livereload/snapshot"

	"github.com/goccy/go-json"
	"github.com/rohanthewiz/rweb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const themeURL = "http://site.test/theme"

func newTestLiveReload(t *testing.T) *LiveReload {
	t.Helper()
	dir := t.TempDir()
	for name, content := range map[string]string{
		"index.php":     "<?php get_header(); ?>",
		"css/style.css": "body{color:red}",
		"js/app.js":     "console.log(1)",
	} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	fp := fingerprint.New([]fingerprint.WatchRoot{
		{Path: dir, Class: fingerprint.Markup},
		{Path: filepath.Join(dir, "css"), Class: fingerprint.CSS},
		{Path: filepath.Join(dir, "js"), Class: fingerprint.JS},
	}, fingerprint.NewMountResolver(fingerprint.Mount{Dir: dir, BaseURL: themeURL}))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return New(ctx, fp, "", 100*time.Millisecond, reconcile.MatchStrict)
}

// startServer runs the routes on an ephemeral port and returns the base URL.
// rweb only leaves Run on a signal, so the server lives until the test binary exits.
func startServer(t *testing.T, lr *LiveReload) string {
	t.Helper()
	ready := make(chan struct{}, 1)
	s := rweb.NewServer(rweb.ServerOptions{Address: "localhost:", ReadyChan: ready})
	SetupRoutes(s, lr)
	go func() { _ = s.Run() }()

	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}
	return "http://localhost:" + s.GetListenPort()
}

func TestWatchRouteStreamsSnapshots(t *testing.T) {
	lr := newTestLiveReload(t)
	base := startServer(t, lr)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+WatchPath, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream"), resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))
	assert.Equal(t, "no", resp.Header.Get("X-Accel-Buffering"))

	reader := bufio.NewReader(resp.Body)
	for i := 0; i < 2; i++ {
		var data string
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			if line == "" {
				break
			}
			if v, ok := strings.CutPrefix(line, "data: "); ok {
				data = v
			}
		}

		var snap snapshot.Snapshot
		require.NoError(t, json.Unmarshal([]byte(data), &snap), "event %d: %q", i, data)
		assert.NotEmpty(t, snap.ReloadHash)
		assert.Contains(t, snap.CSSHash, themeURL+"/css/style.css")
		assert.Contains(t, snap.JSHash, themeURL+"/js/app.js")
		assert.NotEmpty(t, snap.Time)
	}
	assert.Equal(t, 1, lr.Hub().Count())

	cancel()
	assert.Eventually(t, func() bool { return lr.Hub().Count() == 0 }, 2*time.Second, 10*time.Millisecond,
		"stream is dropped once the client disconnects")
}

func TestWatchRouteRefusesDuringShutdown(t *testing.T) {
	lr := newTestLiveReload(t)
	lr.stopping = func() bool { return true }
	base := startServer(t, lr)

	resp, err := http.Get(base + WatchPath)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Zero(t, lr.Hub().Count())
}

func TestStateRoute(t *testing.T) {
	lr := newTestLiveReload(t)
	base := startServer(t, lr)

	resp, err := http.Get(base + StatePath)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var raw map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	assert.ElementsMatch(t, []string{"endpoint", "reload_hash", "css_hash", "js_hash", "match"}, keys)

	var bs Bootstrap
	require.NoError(t, json.Unmarshal(mustMarshal(t, raw), &bs))
	assert.Equal(t, WatchPath, bs.Endpoint)
	assert.Equal(t, "strict", bs.Match)
	assert.NotEmpty(t, bs.ReloadHash)
	assert.Contains(t, bs.CSSHash, themeURL+"/css/style.css")
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestClientSnippetAndStatusRoutes(t *testing.T) {
	base := startServer(t, newTestLiveReload(t))

	get := func(path string) (*http.Response, string) {
		resp, err := http.Get(base + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp, string(body)
	}

	resp, body := get(ClientPath)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "javascript")
	assert.Equal(t, ClientJS(), body)

	resp, body = get(SnippetPath)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "window.live_reload = {")
	assert.Contains(t, body, `src="/livereload/client.js"`)

	resp, body = get(RoutePrefix)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Open streams (0)")
	assert.Contains(t, body, "/css")
}
