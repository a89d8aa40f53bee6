package app_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/voxbridge/internal/app"
	"github.com/MrWong99/voxbridge/internal/config"
	"github.com/MrWong99/voxbridge/pkg/audio"
	"github.com/MrWong99/voxbridge/pkg/provider/stt"
	sttmock "github.com/MrWong99/voxbridge/pkg/provider/stt/mock"
	vadmock "github.com/MrWong99/voxbridge/pkg/provider/vad/mock"
	"github.com/MrWong99/voxbridge/pkg/sink"
	sinkmock "github.com/MrWong99/voxbridge/pkg/sink/mock"
)

// ─── Test helpers ────────────────────────────────────────────────────────────

const (
	speech = int16(8000)
	quiet  = int16(33)
)

type span struct {
	amp int16
	dur time.Duration
}

// pcm renders spans as 16 kHz mono square waves.
func pcm(spans ...span) []byte {
	var buf bytes.Buffer
	for _, s := range spans {
		n := int(s.dur.Seconds() * 16000)
		for i := range n {
			v := s.amp
			if i%2 == 1 {
				v = -s.amp
			}
			_ = binary.Write(&buf, binary.LittleEndian, v)
		}
	}
	return buf.Bytes()
}

func rawSource(t *testing.T, data []byte) audio.Source {
	t.Helper()
	src, err := audio.NewRawSource(bytes.NewReader(data), audio.Format{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("NewRawSource: %v", err)
	}
	return src
}

// liveSource blocks like a capture device with nothing to say until it is
// closed.
type liveSource struct {
	closed    chan struct{}
	closeOnce sync.Once

	mu     sync.Mutex
	closes int
}

func newLiveSource() *liveSource { return &liveSource{closed: make(chan struct{})} }

func (s *liveSource) ReadFrame(ctx context.Context) (audio.AudioFrame, error) {
	select {
	case <-ctx.Done():
		return audio.AudioFrame{}, ctx.Err()
	case <-s.closed:
		return audio.AudioFrame{}, errors.New("source closed")
	}
}

func (s *liveSource) Format() audio.Format { return audio.Format{SampleRate: 16000, Channels: 1} }

func (s *liveSource) Close() error {
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *liveSource) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// testConfig loads a minimal config through the real loader so defaults
// apply.
func testConfig(t *testing.T, extra string) *config.Config {
	t.Helper()
	yaml := "session:\n  id: app-test\nproviders:\n  stt:\n    name: fake\ndraft:\n  enabled: false\npipeline:\n  recognition_timeout: 1s\n" + extra
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	return cfg
}

func testProviders(rec stt.Recognizer, out sink.Sink) *app.Providers {
	return &app.Providers{
		STT:   rec,
		VAD:   &vadmock.Engine{Session: &vadmock.Session{ProbabilityFunc: vadmock.LoudIsSpeech(0.05)}},
		Sinks: []sink.Sink{out},
	}
}

func shutdown(t *testing.T, a *app.App) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return a.Shutdown(ctx)
}

// ─── New ─────────────────────────────────────────────────────────────────────

func TestNew_RequiresProviders(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "")
	if _, err := app.New(context.Background(), cfg, &app.Providers{}); err == nil {
		t.Fatal("expected error for missing providers")
	}
	if _, err := app.New(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected error for nil providers")
	}
}

func TestNew_InvalidPipelineConfigClosesEverything(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "")
	cfg.VAD.Boundaries = []float64{-60, -50} // wrong count
	out := &sinkmock.Sink{}
	src := newLiveSource()

	_, err := app.New(context.Background(), cfg, testProviders(&sttmock.Recognizer{}, out), app.WithSource(src))
	if err == nil {
		t.Fatal("expected error for invalid vad boundaries")
	}
	if out.CloseCount() != 1 {
		t.Errorf("sink closed %d times, want 1", out.CloseCount())
	}
	if src.closeCount() != 1 {
		t.Errorf("source closed %d times, want 1", src.closeCount())
	}
}

func TestNew_OpensConfiguredRawFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "input.pcm")
	if err := os.WriteFile(path, pcm(span{quiet, 200 * time.Millisecond}), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := testConfig(t, "input:\n  path: "+path+"\n  format: raw\n")
	out := &sinkmock.Sink{}

	a, err := app.New(context.Background(), cfg, testProviders(&sttmock.Recognizer{}, out))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Run(context.Background()); err != nil {
		t.Errorf("Run: %v", err)
	}
	if err := shutdown(t, a); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestNew_MissingInputFile(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "input:\n  path: /nonexistent/voxbridge.wav\n")
	out := &sinkmock.Sink{}
	if _, err := app.New(context.Background(), cfg, testProviders(&sttmock.Recognizer{}, out)); err == nil {
		t.Fatal("expected error for missing input file")
	}
	if out.CloseCount() != 1 {
		t.Errorf("sink closed %d times, want 1", out.CloseCount())
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

func TestApp_RunToEndOfInput(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "")
	rec := &sttmock.Recognizer{Result: stt.Result{Text: "the build is green", Confidence: 0.9}}
	out := &sinkmock.Sink{}
	src := rawSource(t, pcm(
		span{quiet, time.Second},
		span{speech, 800 * time.Millisecond},
		span{quiet, 1500 * time.Millisecond},
	))

	a, err := app.New(context.Background(), cfg, testProviders(rec, out), app.WithSource(src))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after end of input")
	}

	finals := out.Finals()
	if len(finals) != 1 {
		t.Fatalf("finals = %d, want 1", len(finals))
	}
	if finals[0].SourceText != "the build is green" || finals[0].SessionID != "app-test" {
		t.Errorf("final = %+v", finals[0])
	}

	if err := shutdown(t, a); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
	if out.CloseCount() != 1 {
		t.Errorf("sink closed %d times, want 1", out.CloseCount())
	}
}

func TestApp_CancelThenShutdownDrains(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "")
	out := &sinkmock.Sink{}
	src := newLiveSource()
	a, err := app.New(context.Background(), cfg, testProviders(&sttmock.Recognizer{}, out), app.WithSource(src))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for !a.Pipeline().Running() {
		if time.Now().After(deadline) {
			t.Fatal("pipeline never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	// Cancelling Run must not abort the pipeline; Shutdown drains it.
	if !a.Pipeline().Running() {
		t.Error("pipeline stopped before Shutdown")
	}
	if err := shutdown(t, a); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
	if a.Pipeline().Running() {
		t.Error("pipeline still running after Shutdown")
	}
	if src.closeCount() == 0 {
		t.Error("source not closed")
	}
	if out.CloseCount() != 1 {
		t.Errorf("sink closed %d times, want 1", out.CloseCount())
	}
}

func TestApp_ShutdownWithoutRun(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "")
	out := &sinkmock.Sink{}
	src := newLiveSource()
	a, err := app.New(context.Background(), cfg, testProviders(&sttmock.Recognizer{}, out), app.WithSource(src))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := shutdown(t, a); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if src.closeCount() != 1 {
		t.Errorf("source closed %d times, want 1", src.closeCount())
	}
	if out.CloseCount() != 1 {
		t.Errorf("sink closed %d times, want 1", out.CloseCount())
	}

	// Idempotent.
	if err := shutdown(t, a); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
	if out.CloseCount() != 1 {
		t.Errorf("sink closed %d times after second Shutdown, want 1", out.CloseCount())
	}
}

func TestApp_ShutdownRespectsExpiredContext(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, "")
	out := &sinkmock.Sink{}
	a, err := app.New(context.Background(), cfg, testProviders(&sttmock.Recognizer{}, out), app.WithSource(newLiveSource()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.Shutdown(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Shutdown = %v, want context.Canceled", err)
	}
	if out.CloseCount() != 0 {
		t.Errorf("sink closed %d times, want 0 after expired context", out.CloseCount())
	}
}
