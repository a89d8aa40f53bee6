// Package deepgram provides a Deepgram-backed recognizer using the Deepgram
// live WebSocket API. Each Recognize call streams the segment audio over a
// fresh connection, asks the server to flush, and collects the final results.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/voxbridge/pkg/audio"
	"github.com/MrWong99/voxbridge/pkg/provider/stt"
	"github.com/coder/websocket"
)

const (
	deepgramEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"
	defaultLanguage  = "en"

	// chunkDuration is how much audio goes into one binary message.
	chunkDuration = 100 * time.Millisecond
)

var _ stt.Recognizer = (*Recognizer)(nil)

// Option is a functional option for configuring the Recognizer.
type Option func(*Recognizer)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(r *Recognizer) { r.model = model }
}

// WithDraftModel sets a faster model used for draft requests. Empty means
// drafts use the main model.
func WithDraftModel(model string) Option {
	return func(r *Recognizer) { r.draftModel = model }
}

// WithLanguage sets the default BCP-47 language code (e.g., "en", "de-DE").
func WithLanguage(language string) Option {
	return func(r *Recognizer) { r.language = language }
}

// WithEndpoint overrides the WebSocket endpoint. Used for self-hosted
// deployments and tests.
func WithEndpoint(endpoint string) Option {
	return func(r *Recognizer) { r.endpoint = endpoint }
}

// Recognizer implements stt.Recognizer backed by the Deepgram live API.
type Recognizer struct {
	apiKey     string
	endpoint   string
	model      string
	draftModel string
	language   string
}

// New creates a new Deepgram Recognizer. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Recognizer, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	r := &Recognizer{
		apiKey:   apiKey,
		endpoint: deepgramEndpoint,
		model:    defaultModel,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Recognize streams req.Audio to Deepgram and returns the concatenated final
// transcripts with their mean confidence.
func (r *Recognizer) Recognize(ctx context.Context, req stt.Request) (stt.Result, error) {
	if err := req.Validate(); err != nil {
		return stt.Result{}, fmt.Errorf("deepgram: %w", err)
	}
	wsURL, err := r.buildURL(req)
	if err != nil {
		return stt.Result{}, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+r.apiKey)
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return stt.Result{}, fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.CloseNow()

	type readResult struct {
		res stt.Result
		err error
	}
	done := make(chan readResult, 1)
	go func() {
		res, err := collect(ctx, conn)
		done <- readResult{res, err}
	}()

	chunk := audio.BytesFor(chunkDuration, req.SampleRate, req.Channels)
	for off := 0; off < len(req.Audio); off += chunk {
		end := min(off+chunk, len(req.Audio))
		if err := conn.Write(ctx, websocket.MessageBinary, req.Audio[off:end]); err != nil {
			return stt.Result{}, fmt.Errorf("deepgram: send audio: %w", err)
		}
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
		return stt.Result{}, fmt.Errorf("deepgram: close stream: %w", err)
	}

	select {
	case rr := <-done:
		if rr.err != nil {
			return stt.Result{}, rr.err
		}
		conn.Close(websocket.StatusNormalClosure, "")
		return rr.res, nil
	case <-ctx.Done():
		return stt.Result{}, ctx.Err()
	}
}

// collect reads messages until the server closes the stream after flushing.
func collect(ctx context.Context, conn *websocket.Conn) (stt.Result, error) {
	var (
		parts []string
		conf  float64
		n     int
	)
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			// Any close frame ends the stream; other errors are failures.
			if websocket.CloseStatus(err) != -1 {
				break
			}
			return stt.Result{}, fmt.Errorf("deepgram: read: %w", err)
		}
		resp, ok := parseDeepgramResponse(msg)
		if !ok {
			continue
		}
		if resp.metadata {
			break
		}
		if !resp.isFinal {
			continue
		}
		if text := strings.TrimSpace(resp.text); text != "" {
			parts = append(parts, text)
			conf += resp.confidence
			n++
		}
	}
	res := stt.Result{Text: strings.Join(parts, " ")}
	if n > 0 {
		res.Confidence = conf / float64(n)
	}
	return res, nil
}

// buildURL constructs the Deepgram endpoint URL for a request.
func (r *Recognizer) buildURL(req stt.Request) (string, error) {
	u, err := url.Parse(r.endpoint)
	if err != nil {
		return "", err
	}
	lang := req.Language
	if lang == "" {
		lang = r.language
	}
	model := r.model
	if req.Draft && r.draftModel != "" {
		model = r.draftModel
	}

	q := u.Query()
	q.Set("model", model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	q.Set("interim_results", "false")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(req.SampleRate))
	q.Set("channels", strconv.Itoa(req.Channels))
	for _, kw := range req.Keywords {
		// Deepgram keyword format: word:boost (e.g., "Kubernetes:5")
		q.Add("keywords", fmt.Sprintf("%s:%g", kw.Keyword, kw.Boost))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// deepgramResponse is the JSON structure of a Deepgram live message.
type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type parsedResponse struct {
	text       string
	confidence float64
	isFinal    bool
	metadata   bool
}

// parseDeepgramResponse parses a raw message. Metadata marks the end of the
// stream after CloseStream; other non-result types are ignored.
func parseDeepgramResponse(data []byte) (parsedResponse, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return parsedResponse{}, false
	}
	switch resp.Type {
	case "Metadata":
		return parsedResponse{metadata: true}, true
	case "Results":
	default:
		return parsedResponse{}, false
	}
	if len(resp.Channel.Alternatives) == 0 {
		return parsedResponse{}, false
	}
	alt := resp.Channel.Alternatives[0]
	return parsedResponse{text: alt.Transcript, confidence: alt.Confidence, isFinal: resp.IsFinal}, true
}
