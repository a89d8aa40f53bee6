// Package redispub publishes pipeline output to Redis.
//
// Every event is published on a pub/sub channel. FINAL events are also
// appended to a capped per-session history list, and the latest status
// snapshot is stored under a key with a TTL so dashboards can poll it.
//
// Keys, for a prefix "voxbridge" and session "abc":
//
//	voxbridge:events          pub/sub channel (transcript and status envelopes)
//	voxbridge:history:abc     list of FINAL envelopes, newest last
//	voxbridge:status:abc      latest status envelope
package redispub

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrWong99/voxbridge/pkg/sink"
	"github.com/MrWong99/voxbridge/pkg/types"
)

// Config holds the connection and key settings.
type Config struct {
	Addr     string
	Username string
	Password string
	DB       int

	// Prefix namespaces every key. Default "voxbridge".
	Prefix string

	// SessionID selects the history and status keys.
	SessionID string

	// HistoryLimit caps the FINAL history list. Default 1000.
	HistoryLimit int64

	// StatusTTL is the lifetime of the status key. Default 30s.
	StatusTTL time.Duration

	// Buffer is the number of pending writes before output is dropped.
	// Default 256.
	Buffer int
}

type message struct {
	payload []byte
	final   bool
	status  bool
}

// Sink writes to Redis from a background goroutine.
type Sink struct {
	client *redis.Client
	cfg    Config
	q      *sink.Queue[message]
}

var _ sink.Sink = (*Sink)(nil)

// New connects to Redis and verifies the connection with PING.
func New(ctx context.Context, cfg Config) (*Sink, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redispub: address required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "voxbridge"
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 1000
	}
	if cfg.StatusTTL <= 0 {
		cfg.StatusTTL = 30 * time.Second
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redispub: ping: %w", err)
	}

	s := &Sink{client: client, cfg: cfg}
	s.q = sink.NewQueue("redis", cfg.Buffer, s.write)
	return s, nil
}

// Channel returns the pub/sub channel name.
func (s *Sink) Channel() string { return s.cfg.Prefix + ":events" }

// HistoryKey returns the list key holding FINAL envelopes.
func (s *Sink) HistoryKey() string { return s.cfg.Prefix + ":history:" + s.cfg.SessionID }

// StatusKey returns the key holding the latest status envelope.
func (s *Sink) StatusKey() string { return s.cfg.Prefix + ":status:" + s.cfg.SessionID }

func (s *Sink) write(m message) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.Publish(ctx, s.Channel(), m.payload)
		if m.final {
			p.RPush(ctx, s.HistoryKey(), m.payload)
			p.LTrim(ctx, s.HistoryKey(), -s.cfg.HistoryLimit, -1)
		}
		if m.status {
			p.Set(ctx, s.StatusKey(), m.payload, s.cfg.StatusTTL)
		}
		return nil
	})
	if err != nil {
		slog.Warn("redispub: write failed", "err", err)
	}
}

// Emit queues ev for publishing.
func (s *Sink) Emit(ev types.TranscriptEvent) {
	b, err := types.EventEnvelope(ev)
	if err != nil {
		slog.Warn("redispub: encode event", "err", err)
		return
	}
	s.q.Push(message{payload: b, final: ev.Kind == types.KindFinal})
}

// EmitStatus queues st for publishing and storage.
func (s *Sink) EmitStatus(st types.Status) {
	b, err := types.StatusEnvelope(st)
	if err != nil {
		slog.Warn("redispub: encode status", "err", err)
		return
	}
	s.q.Push(message{payload: b, status: true})
}

// Close flushes pending writes and closes the client.
func (s *Sink) Close() error {
	s.q.Close()
	return s.client.Close()
}
