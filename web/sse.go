package web

import (
	"context"
	"time"

	"livereload/publisher"

	"github.com/rohanthewiz/rweb"
)

const sseStdMsgType = "message" // JS EventSource only dispatches "message" to onmessage

// channelSink hands events to rweb's SSE writer through an unbuffered channel.
// rweb takes the next event as soon as it has flushed the previous one and
// stops receiving after its first failed flush, so a send still waiting
// after one interval means the client went away.
type channelSink struct {
	ch    chan any
	stall time.Duration
}

func newChannelSink(interval time.Duration) *channelSink {
	if interval <= 0 {
		interval = publisher.DefaultInterval
	}
	return &channelSink{ch: make(chan any), stall: interval}
}

func (s *channelSink) Send(ctx context.Context, data []byte) error {
	event := rweb.SSEvent{
		Type: sseStdMsgType,
		Data: string(data),
	}

	timer := time.NewTimer(s.stall)
	defer timer.Stop()

	select {
	case s.ch <- event:
		return nil
	case <-timer.C:
		return publisher.ErrPeerGone
	case <-ctx.Done():
		return ctx.Err()
	}
}
