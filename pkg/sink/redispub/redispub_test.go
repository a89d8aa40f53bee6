package redispub_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrWong99/voxbridge/pkg/sink/redispub"
	"github.com/MrWong99/voxbridge/pkg/types"
)

func newSink(t *testing.T, cfg redispub.Config) (*redispub.Sink, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	cfg.Addr = mr.Addr()
	s, err := redispub.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, mr
}

func TestSink_HistoryKeepsFinalsOnly(t *testing.T) {
	t.Parallel()

	s, mr := newSink(t, redispub.Config{SessionID: "abc", HistoryLimit: 2})
	s.Emit(types.TranscriptEvent{Kind: types.KindDraft, SegmentID: 1, SourceText: "dra"})
	for i := uint64(1); i <= 3; i++ {
		s.Emit(types.TranscriptEvent{Kind: types.KindFinal, SegmentID: i, SourceText: "final"})
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	items, err := mr.List("voxbridge:history:abc")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("history length = %d, want 2 (capped)", len(items))
	}
	var env types.Envelope
	if err := json.Unmarshal([]byte(items[1]), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Event == nil || env.Event.SegmentID != 3 || env.Event.Kind != types.KindFinal {
		t.Errorf("newest history entry = %+v", env.Event)
	}
}

func TestSink_StatusKeyWithTTL(t *testing.T) {
	t.Parallel()

	s, mr := newSink(t, redispub.Config{Prefix: "vb", SessionID: "s9", StatusTTL: time.Minute})
	s.EmitStatus(types.Status{SessionID: "s9", Environment: types.EnvNoisy})
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	raw, err := mr.Get("vb:status:s9")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	var env types.Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Status == nil || env.Status.Environment != types.EnvNoisy {
		t.Errorf("status = %+v", env.Status)
	}
	if ttl := mr.TTL("vb:status:s9"); ttl != time.Minute {
		t.Errorf("ttl = %v, want 1m", ttl)
	}
}

func TestSink_PublishesEvents(t *testing.T) {
	t.Parallel()

	s, mr := newSink(t, redispub.Config{SessionID: "pub"})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	sub := client.Subscribe(ctx, s.Channel())
	t.Cleanup(func() { _ = sub.Close() })
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	s.Emit(types.TranscriptEvent{Kind: types.KindDraft, SegmentID: 2, SourceText: "partial"})
	msg, err := sub.ReceiveMessage(ctx)
	if err != nil {
		t.Fatalf("ReceiveMessage: %v", err)
	}
	var env types.Envelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Type != "transcript" || env.Event == nil || env.Event.SourceText != "partial" {
		t.Errorf("message = %+v", env)
	}
	_ = s.Close()
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	if _, err := redispub.New(context.Background(), redispub.Config{}); err == nil {
		t.Error("New without address succeeded")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := redispub.New(ctx, redispub.Config{Addr: "127.0.0.1:1"}); err == nil {
		t.Error("New against closed port succeeded")
	}
}
