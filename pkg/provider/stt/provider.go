// Package stt defines the Recognizer interface for speech-to-text backends.
//
// A recognizer transcribes one complete buffer of PCM audio per call. The
// pipeline calls it with the cumulative audio of an open segment for drafts
// and with the closed segment for the final result, so backends never need to
// keep per-stream state between calls.
//
// Implementations must be safe for concurrent use: several recognition
// workers call Recognize at the same time.
package stt

import (
	"context"
	"errors"
)

// ErrEmptyAudio is returned when a request carries no audio.
var ErrEmptyAudio = errors.New("stt: empty audio")

// KeywordBoost is a vocabulary hint that raises the recognition probability
// of an uncommon word such as a product or person name.
type KeywordBoost struct {
	Keyword string

	// Boost is the intensity of the boost (provider-specific scale).
	Boost float64
}

// Request is one recognition call.
type Request struct {
	// Audio is 16-bit signed little-endian PCM.
	Audio      []byte
	SampleRate int
	Channels   int

	// Language is the BCP-47 tag of the spoken language. Empty lets the
	// backend auto-detect when it supports that.
	Language string

	// Draft marks an interim pass over an open segment. Backends may trade
	// accuracy for latency on drafts.
	Draft bool

	Keywords []KeywordBoost
}

// Result is the transcription of a request.
type Result struct {
	Text string

	// Confidence in [0, 1]; zero when the backend does not report one.
	Confidence float64
}

// Recognizer is the abstraction over any speech-to-text backend.
type Recognizer interface {
	Recognize(ctx context.Context, req Request) (Result, error)
}

// Validate reports requests no backend can serve.
func (r Request) Validate() error {
	if len(r.Audio) == 0 {
		return ErrEmptyAudio
	}
	if r.SampleRate <= 0 || r.Channels <= 0 {
		return errors.New("stt: sample rate and channels must be positive")
	}
	return nil
}
