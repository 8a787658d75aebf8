package web

import (
	"context"
	_ "embed"
	"time"

	"livereload/fingerprint"
	"livereload/platform/shutdown"
	"livereload/publisher"
	"livereload/reconcile"

	"github.com/google/uuid"
	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/rweb"
	"github.com/rohanthewiz/serr"
)

//go:embed assets/js/livereload.js
var clientJS string

// ClientJS returns the browser reconciler
func ClientJS() string {
	return clientJS
}

// LiveReload holds what the routes share: the scanner, the per-stream
// publisher settings and the open streams
type LiveReload struct {
	ctx       context.Context
	scanner   *fingerprint.Fingerprinter
	pub       *publisher.Publisher
	hub       *Hub
	publicURL string
	match     reconcile.MatchMode
	started   time.Time
	stopping  func() bool
}

// New binds the service to ctx; cancelling it ends every stream
func New(ctx context.Context, scanner *fingerprint.Fingerprinter, publicURL string, interval time.Duration, match reconcile.MatchMode) *LiveReload {
	return &LiveReload{
		ctx:       ctx,
		scanner:   scanner,
		pub:       publisher.New(scanner, publisher.WithInterval(interval)),
		hub:       NewHub(),
		publicURL: publicURL,
		match:     match,
		started:   time.Now(),
		stopping:  shutdown.CheckShutdown,
	}
}

func (lr *LiveReload) Hub() *Hub {
	return lr.hub
}

// Bootstrap scans now and returns the page-load state
func (lr *LiveReload) Bootstrap(ctx context.Context) (Bootstrap, error) {
	snap, err := lr.scanner.Snapshot(ctx)
	if err != nil {
		return Bootstrap{}, serr.Wrap(err, "failed to scan watched files")
	}
	return NewBootstrap(lr.publicURL, snap, lr.match), nil
}

// Snippet renders the script tags for a page being served now
func (lr *LiveReload) Snippet(ctx context.Context) (string, error) {
	bs, err := lr.Bootstrap(ctx)
	if err != nil {
		return "", err
	}
	return RenderSnippet(lr.publicURL, bs)
}

// SetupRoutes configures the live reload routes on s
func SetupRoutes(s *rweb.Server, lr *LiveReload) {
	s.Get(WatchPath, func(c rweb.Context) error {
		return lr.watchHandler(s, c)
	})
	s.Get(ClientPath, clientHandler)
	s.Get(StatePath, lr.stateHandler)
	s.Get(SnippetPath, lr.snippetHandler)
	s.Get(RoutePrefix, lr.statusHandler)
	s.Get(StatusPath, lr.statusHandler)
}

// watchHandler opens one stream. The publisher loop runs in its own
// goroutine, feeding rweb's SSE writer until the peer stalls or shutdown.
// No new stream opens once shutdown has begun.
func (lr *LiveReload) watchHandler(s *rweb.Server, c rweb.Context) error {
	if lr.stopping() {
		c.Response().SetHeader("Retry-After", "1")
		return c.WriteError(serr.New("live reload server is shutting down"), 503)
	}

	c.Response().SetHeader("X-Accel-Buffering", "no")
	c.Response().SetHeader("Access-Control-Allow-Origin", "*")

	id := uuid.NewString()
	sink := newChannelSink(lr.pub.Interval())
	ctx, cancel := context.WithCancel(lr.ctx)
	lr.hub.Register(id, c.Request().Header("User-Agent"), cancel)

	go func() {
		defer close(sink.ch)
		defer lr.hub.Unregister(id)

		if err := lr.pub.Run(ctx, sink, publisher.WithStreamID(id)); err != nil {
			logger.LogErr(err, "live reload stream ended with error")
		}
	}()

	s.SetupSSE(c, sink.ch, "")
	return nil
}

func clientHandler(c rweb.Context) error {
	c.Response().SetHeader("Content-Type", "application/javascript; charset=utf-8")
	c.Response().SetHeader("Cache-Control", "no-cache")
	return c.Bytes([]byte(clientJS))
}

func (lr *LiveReload) stateHandler(c rweb.Context) error {
	bs, err := lr.Bootstrap(lr.ctx)
	if err != nil {
		logger.LogErr(err, "failed to build live reload state")
		return c.WriteError(err, 500)
	}
	c.Response().SetHeader("Access-Control-Allow-Origin", "*")
	return c.WriteJSON(bs)
}

func (lr *LiveReload) snippetHandler(c rweb.Context) error {
	snippet, err := lr.Snippet(lr.ctx)
	if err != nil {
		logger.LogErr(err, "failed to render live reload snippet")
		return c.WriteError(err, 500)
	}
	c.Response().SetHeader("Content-Type", "text/plain; charset=utf-8")
	return c.Bytes([]byte(snippet))
}

func (lr *LiveReload) statusHandler(c rweb.Context) error {
	res, err := lr.scanner.Scan(lr.ctx)
	if err != nil {
		return c.WriteError(serr.Wrap(err, "failed to scan watched files"), 500)
	}

	page := StatusPage{
		Roots:     lr.scanner.Roots(),
		Result:    res,
		Streams:   lr.hub.Streams(),
		Started:   lr.started,
		PublicURL: lr.publicURL,
		Bootstrap: NewBootstrap(lr.publicURL, res.Snapshot, lr.match),
	}
	html, err := page.HTML()
	if err != nil {
		return c.WriteError(err, 500)
	}
	return c.WriteHTML(html)
}
