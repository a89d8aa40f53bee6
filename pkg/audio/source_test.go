package audio_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/voxbridge/pkg/audio"
)

func readAll(t *testing.T, src audio.Source) []audio.AudioFrame {
	t.Helper()
	var frames []audio.AudioFrame
	for {
		f, err := src.ReadFrame(context.Background())
		if errors.Is(err, io.EOF) {
			return frames
		}
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		frames = append(frames, f)
	}
}

func TestRawSource_FramesAndTimestamps(t *testing.T) {
	t.Parallel()

	// 50 ms of mono 16 kHz audio in 20 ms frames: 20 + 20 + 10.
	pcm := make([]byte, audio.BytesFor(50*time.Millisecond, 16000, 1))
	src, err := audio.NewRawSource(bytes.NewReader(pcm), audio.Format{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatal(err)
	}
	frames := readAll(t, src)
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}
	wantTS := []time.Duration{0, 20 * time.Millisecond, 40 * time.Millisecond}
	for i, f := range frames {
		if f.Timestamp != wantTS[i] {
			t.Errorf("frame %d timestamp = %v, want %v", i, f.Timestamp, wantTS[i])
		}
	}
	if d := frames[2].Duration(); d != 10*time.Millisecond {
		t.Errorf("last frame duration = %v, want 10ms", d)
	}
	if _, err := src.ReadFrame(context.Background()); !errors.Is(err, io.EOF) {
		t.Errorf("read after EOF: got %v, want io.EOF", err)
	}
}

func TestRawSource_InvalidFormat(t *testing.T) {
	t.Parallel()

	if _, err := audio.NewRawSource(bytes.NewReader(nil), audio.Format{}); err == nil {
		t.Fatal("expected error for zero format")
	}
}

func TestRawSource_CancelledContext(t *testing.T) {
	t.Parallel()

	src, _ := audio.NewRawSource(bytes.NewReader(make([]byte, 640)), audio.Format{SampleRate: 16000, Channels: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.ReadFrame(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestRawSource_Pacing(t *testing.T) {
	t.Parallel()

	pcm := make([]byte, audio.BytesFor(60*time.Millisecond, 16000, 1))
	src, _ := audio.NewRawSource(bytes.NewReader(pcm), audio.Format{SampleRate: 16000, Channels: 1},
		audio.WithFrameDuration(20*time.Millisecond), audio.WithPacing(true))

	start := time.Now()
	if n := len(readAll(t, src)); n != 3 {
		t.Fatalf("got %d frames, want 3", n)
	}
	// The third frame starts at 40 ms of stream time.
	if elapsed := time.Since(start); elapsed < 35*time.Millisecond {
		t.Errorf("paced read finished after %v, want at least 40ms", elapsed)
	}
}

func TestWAVSource_RoundTrip(t *testing.T) {
	t.Parallel()

	samples := make([]int16, 16000*2/10) // 100 ms stereo at 16 kHz
	for i := range samples {
		samples[i] = int16(i)
	}
	data := audio.EncodeWAV(samplesToBytes(samples), 16000, 2)

	src, err := audio.NewWAVSource(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("NewWAVSource: %v", err)
	}
	if got := src.Format(); got != (audio.Format{SampleRate: 16000, Channels: 2}) {
		t.Fatalf("format = %v", got)
	}
	frames := readAll(t, src)
	if len(frames) != 5 {
		t.Fatalf("got %d frames, want 5", len(frames))
	}
	var total []byte
	for _, f := range frames {
		total = append(total, f.Data...)
	}
	if !bytes.Equal(total, samplesToBytes(samples)) {
		t.Error("decoded PCM differs from encoded PCM")
	}
}

func TestWAVSource_RejectsGarbage(t *testing.T) {
	t.Parallel()

	if _, err := audio.NewWAVSource(bytes.NewReader([]byte("definitely not a wav file at all......................"))); err == nil {
		t.Fatal("expected error for non-WAV input")
	}
}

func TestOpenSource(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	wavPath := filepath.Join(dir, "in.wav")
	if err := os.WriteFile(wavPath, audio.EncodeWAV(make([]byte, 640), 16000, 1), 0o600); err != nil {
		t.Fatal(err)
	}
	rawPath := filepath.Join(dir, "in.pcm")
	if err := os.WriteFile(rawPath, make([]byte, 1280), 0o600); err != nil {
		t.Fatal(err)
	}
	raw := audio.Format{SampleRate: 8000, Channels: 1}

	wavSrc, err := audio.OpenSource(wavPath, audio.ContainerAuto, raw)
	if err != nil {
		t.Fatalf("open wav: %v", err)
	}
	defer wavSrc.Close()
	if wavSrc.Format().SampleRate != 16000 {
		t.Errorf("wav source should use the header format, got %v", wavSrc.Format())
	}

	rawSrc, err := audio.OpenSource(rawPath, audio.ContainerAuto, raw)
	if err != nil {
		t.Fatalf("open raw: %v", err)
	}
	defer rawSrc.Close()
	if n := len(readAll(t, rawSrc)); n != 4 {
		t.Errorf("raw frames = %d, want 4 (80ms at 8kHz)", n)
	}

	// An explicit container wins over the extension.
	forced, err := audio.OpenSource(wavPath, audio.ContainerRaw, raw)
	if err != nil {
		t.Fatalf("open wav as raw: %v", err)
	}
	defer forced.Close()
	if forced.Format() != raw {
		t.Errorf("forced raw source format = %v, want %v", forced.Format(), raw)
	}

	if _, err := audio.OpenSource(filepath.Join(dir, "missing.wav"), audio.ContainerAuto, raw); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := audio.OpenSource("-", audio.ContainerWAV, raw); err == nil {
		t.Error("expected error for wav on stdin")
	}
}
