package whisper_test

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/MrWong99/voxbridge/pkg/provider/stt"
	"github.com/MrWong99/voxbridge/pkg/provider/stt/whisper"
)

// ---- helpers ----------------------------------------------------------------

// inferenceRequest is what the mock server saw in one POST /inference.
type inferenceRequest struct {
	fields map[string]string
	wav    []byte
}

// newMockServer creates a test server that answers POST /inference with the
// given text and records every request.
func newMockServer(t *testing.T, responseText string) (*httptest.Server, func() []inferenceRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		seen []inferenceRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		req := inferenceRequest{fields: map[string]string{}}
		for k, v := range r.MultipartForm.Value {
			req.fields[k] = v[0]
		}
		if f, _, err := r.FormFile("file"); err == nil {
			req.wav, _ = io.ReadAll(f)
			_ = f.Close()
		}
		mu.Lock()
		seen = append(seen, req)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
	t.Cleanup(srv.Close)
	return srv, func() []inferenceRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]inferenceRequest(nil), seen...)
	}
}

// makeSpeechPCM generates a 440 Hz sine wave with the given number of 16-bit
// little-endian samples.
func makeSpeechPCM(samples int) []byte {
	const amplitude = 10_000.0
	buf := make([]byte, samples*2)
	for i := range samples {
		v := int16(amplitude * math.Sin(2*math.Pi*440*float64(i)/16000))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

// makeSilencePCM generates a zero-valued PCM buffer.
func makeSilencePCM(samples int) []byte {
	return make([]byte, samples*2)
}

// ---- construction -----------------------------------------------------------

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	if _, err := whisper.New(""); err == nil {
		t.Fatal("expected error for empty server URL, got nil")
	}
}

// ---- Recognize --------------------------------------------------------------

func TestRecognize_PostsWAVAndParsesText(t *testing.T) {
	srv, seen := newMockServer(t, "  hello world  ")
	r, err := whisper.New(srv.URL+"/", whisper.WithModel("base.en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	pcm := makeSpeechPCM(1600)
	res, err := r.Recognize(context.Background(), stt.Request{
		Audio:      pcm,
		SampleRate: 16000,
		Channels:   1,
		Language:   "de-DE",
		Keywords:   []stt.KeywordBoost{{Keyword: "Voxbridge"}, {Keyword: "Kubernetes"}},
	})
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if res.Text != "hello world" {
		t.Errorf("text = %q, want trimmed %q", res.Text, "hello world")
	}

	reqs := seen()
	if len(reqs) != 1 {
		t.Fatalf("server saw %d requests, want 1", len(reqs))
	}
	got := reqs[0]
	if got.fields["language"] != "de" {
		t.Errorf("language = %q, want base language %q", got.fields["language"], "de")
	}
	if got.fields["model"] != "base.en" {
		t.Errorf("model = %q", got.fields["model"])
	}
	if got.fields["prompt"] != "Voxbridge, Kubernetes" {
		t.Errorf("prompt = %q", got.fields["prompt"])
	}
	if _, ok := got.fields["temperature_inc"]; ok {
		t.Error("final request must keep temperature fallback")
	}
	if len(got.wav) != 44+len(pcm) || string(got.wav[:4]) != "RIFF" {
		t.Errorf("uploaded file is not the expected WAV (%d bytes)", len(got.wav))
	}
}

func TestRecognize_DraftDisablesTemperatureFallback(t *testing.T) {
	srv, seen := newMockServer(t, "partial")
	r, _ := whisper.New(srv.URL)

	_, err := r.Recognize(context.Background(), stt.Request{
		Audio: makeSpeechPCM(160), SampleRate: 16000, Channels: 1, Draft: true,
	})
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if got := seen()[0].fields["temperature_inc"]; got != "0.0" {
		t.Errorf("temperature_inc = %q, want 0.0", got)
	}
	if got := seen()[0].fields["language"]; got != "en" {
		t.Errorf("language = %q, want default en", got)
	}
}

func TestRecognize_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	r, _ := whisper.New(srv.URL)
	_, err := r.Recognize(context.Background(), stt.Request{Audio: makeSilencePCM(160), SampleRate: 16000, Channels: 1})
	if err == nil {
		t.Fatal("expected error for HTTP 500")
	}
}

func TestRecognize_EmptyAudio(t *testing.T) {
	r, _ := whisper.New("http://127.0.0.1:1")
	_, err := r.Recognize(context.Background(), stt.Request{SampleRate: 16000, Channels: 1})
	if !errors.Is(err, stt.ErrEmptyAudio) {
		t.Errorf("got %v, want ErrEmptyAudio", err)
	}
}

func TestRecognize_CancelledContext(t *testing.T) {
	srv, _ := newMockServer(t, "never")
	r, _ := whisper.New(srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Recognize(ctx, stt.Request{Audio: makeSilencePCM(160), SampleRate: 16000, Channels: 1})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}
