// Package wshub broadcasts pipeline output to websocket subscribers.
//
// The [Hub] is both a [sink.Sink] and an [http.Handler]: mount it on a path
// such as /events and every connected client receives the JSON envelopes of
// all subsequent events and status snapshots. Each client has its own
// bounded buffer; a client that falls behind loses messages instead of
// slowing the pipeline or other clients.
package wshub

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/voxbridge/pkg/sink"
	"github.com/MrWong99/voxbridge/pkg/types"
)

const (
	defaultClientBuffer = 64
	writeTimeout        = 5 * time.Second
)

// Option configures a [Hub].
type Option func(*Hub)

// WithClientBuffer sets the per-client message buffer.
func WithClientBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithOriginPatterns allows cross-origin clients matching the patterns.
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Hub) { h.origins = patterns }
}

// Hub fans out envelopes to websocket clients. Safe for concurrent use.
type Hub struct {
	buffer  int
	origins []string

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

var (
	_ sink.Sink    = (*Hub)(nil)
	_ http.Handler = (*Hub)(nil)
)

type client struct {
	conn *websocket.Conn
	q    *sink.Queue[[]byte]
}

// New returns an empty hub.
func New(opts ...Option) *Hub {
	h := &Hub{buffer: defaultClientBuffer, clients: make(map[*client]struct{})}
	for _, o := range opts {
		o(h)
	}
	return h
}

// ServeHTTP upgrades the request and streams envelopes until the client
// disconnects or the hub is closed. Messages from the client are ignored.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		slog.Warn("wshub: accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	ctx := conn.CloseRead(r.Context())

	c := &client{conn: conn}
	c.q = sink.NewQueue("websocket", h.buffer, func(msg []byte) {
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		defer cancel()
		if err := conn.Write(wctx, websocket.MessageText, msg); err != nil {
			slog.Debug("wshub: write failed", "remote", r.RemoteAddr, "err", err)
		}
	})

	if !h.add(c) {
		c.q.Close()
		_ = conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}
	slog.Info("wshub: client connected", "remote", r.RemoteAddr, "clients", h.Clients())

	<-ctx.Done()
	if h.remove(c) {
		c.q.Close()
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}
	slog.Info("wshub: client disconnected", "remote", r.RemoteAddr)
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

// remove reports whether c was still registered.
func (h *Hub) remove(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return false
	}
	delete(h.clients, c)
	return true
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) broadcast(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.q.Push(msg)
	}
}

// Emit broadcasts ev as a "transcript" envelope.
func (h *Hub) Emit(ev types.TranscriptEvent) {
	b, err := types.EventEnvelope(ev)
	if err != nil {
		slog.Warn("wshub: encode event", "err", err)
		return
	}
	h.broadcast(b)
}

// EmitStatus broadcasts st as a "status" envelope.
func (h *Hub) EmitStatus(st types.Status) {
	b, err := types.StatusEnvelope(st)
	if err != nil {
		slog.Warn("wshub: encode status", "err", err)
		return
	}
	h.broadcast(b)
}

// Close flushes pending messages and disconnects every client.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.q.Close()
		_ = c.conn.Close(websocket.StatusGoingAway, "shutting down")
	}
	return nil
}
