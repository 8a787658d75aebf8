package web

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rohanthewiz/logger"
)

// Hub tracks open live reload streams so they can all be cancelled on shutdown
type Hub struct {
	mu      sync.RWMutex
	streams map[string]stream
}

type stream struct {
	cancel context.CancelFunc
	opened time.Time
	agent  string
}

// StreamInfo describes one open stream for the status page
type StreamInfo struct {
	ID     string
	Agent  string
	Opened time.Time
}

func NewHub() *Hub {
	return &Hub{streams: make(map[string]stream)}
}

// Register adds a stream; cancel ends its loop
func (h *Hub) Register(id, agent string, cancel context.CancelFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.streams[id] = stream{cancel: cancel, opened: time.Now(), agent: agent}
}

// Unregister removes a stream and cancels it
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	s, ok := h.streams[id]
	delete(h.streams, id)
	h.mu.Unlock()

	if ok {
		s.cancel()
	}
}

// CancelAll ends every open stream
func (h *Hub) CancelAll() {
	h.mu.Lock()
	streams := h.streams
	h.streams = make(map[string]stream)
	h.mu.Unlock()

	logger.Info("Cancelling live reload streams", "count", len(streams))
	for _, s := range streams {
		s.cancel()
	}
}

// Count returns the number of open streams
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.streams)
}

// Streams lists the open streams, oldest first
func (h *Hub) Streams() []StreamInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]StreamInfo, 0, len(h.streams))
	for id, s := range h.streams {
		out = append(out, StreamInfo{ID: id, Agent: s.agent, Opened: s.opened})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Opened.Before(out[j].Opened) })
	return out
}
