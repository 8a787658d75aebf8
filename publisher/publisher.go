// Package publisher streams fingerprint snapshots to one connected client.
// A Publisher is bound to a connection's lifetime: it publishes once on
// open and then once per interval until the context ends or the sink
// reports that the peer has gone.
package publisher

import (
	"context"
	"errors"
	"time"

	"livereload/snapshot"

	"github.com/google/uuid"
	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/serr"
)

const DefaultInterval = time.Second

// ErrPeerGone is returned by a Sink once the client has disconnected.
// It ends the loop without being treated as a failure.
var ErrPeerGone = errors.New("live reload peer disconnected")

// Scanner produces a fresh snapshot on every call
type Scanner interface {
	Snapshot(ctx context.Context) (snapshot.Snapshot, error)
}

// Sink delivers one encoded event to the client and flushes it
type Sink interface {
	Send(ctx context.Context, data []byte) error
}

type Publisher struct {
	scanner  Scanner
	interval time.Duration
}

type Option func(*Publisher)

// WithInterval sets the tick period; non-positive values are ignored
func WithInterval(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.interval = d
		}
	}
}

// New creates a publisher over scanner
func New(scanner Scanner, opts ...Option) *Publisher {
	p := &Publisher{scanner: scanner, interval: DefaultInterval}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Interval returns the tick period
func (p *Publisher) Interval() time.Duration {
	return p.interval
}

type runConfig struct {
	streamID string
}

type RunOption func(*runConfig)

// WithStreamID tags the loop's log lines with id instead of a fresh one
func WithStreamID(id string) RunOption {
	return func(c *runConfig) {
		if id != "" {
			c.streamID = id
		}
	}
}

// Run publishes until ctx is done or the peer disconnects, both of which
// return nil. Any other sink error ends the loop and is returned.
func (p *Publisher) Run(ctx context.Context, sink Sink, opts ...RunOption) error {
	cfg := runConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.streamID == "" {
		cfg.streamID = uuid.NewString()
	}
	streamID := cfg.streamID

	store := snapshot.NewStore()
	ticks := 0

	logger.Info("Live reload stream opened", "stream", streamID, "interval", p.interval.String())
	defer func() {
		logger.Info("Live reload stream closed", "stream", streamID, "ticks", ticks)
	}()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return nil
		}

		err := p.publish(ctx, streamID, store, sink)
		ticks++
		switch {
		case err == nil:
		case errors.Is(err, ErrPeerGone), ctx.Err() != nil:
			return nil
		default:
			return serr.Wrap(err, "failed to publish live reload event", "stream", streamID)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// publish runs a single tick: scan, compare with the previous tick, send
func (p *Publisher) publish(ctx context.Context, streamID string, store *snapshot.Store, sink Sink) error {
	snap, err := p.scanner.Snapshot(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// The stream outlives a bad scan; the next tick tries again
		logger.LogErr(err, "live reload scan failed")
		return nil
	}

	prev, changed := store.Swap(snap)
	if changed && prev.Time != "" {
		logger.Info("Watched files changed", "stream", streamID,
			"reload", prev.ReloadHash != snap.ReloadHash,
			"files", snap.FileCount())
	}

	return sink.Send(ctx, Encode(snap))
}
