// Package vad defines the Engine interface for frame-level speech classifiers.
//
// A classifier engine turns one PCM frame into a speech probability. It does
// not decide where segments begin or end: thresholding, timing and noise
// adaptation live in the segmentation core, which treats the engine as an
// opaque scorer. Each session keeps its own state (smoothing history, model
// context) so independent streams never share it.
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle must not be shared across goroutines.
package vad

import "errors"

// ErrSessionClosed is returned by ProcessFrame after Close.
var ErrSessionClosed = errors.New("vad: session closed")

// Config holds the stream parameters a session is created for.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the
	// PCM frames passed to ProcessFrame.
	SampleRate int

	// FrameSizeMs is the nominal duration of each frame in milliseconds.
	FrameSizeMs int
}

// Result is the classification of one frame.
type Result struct {
	// Probability is the speech probability in [0, 1].
	Probability float64
}

// SessionHandle is an active classification session for one audio stream.
type SessionHandle interface {
	// ProcessFrame scores a single frame of 16-bit little-endian mono PCM. It
	// must not block.
	ProcessFrame(frame []byte) (Result, error)

	// Reset clears accumulated state without closing the session.
	Reset()

	// Close releases the session. Calling Close more than once returns nil.
	Close() error
}

// Engine is the factory for classification sessions.
//
// Implementations must be safe for concurrent use.
type Engine interface {
	NewSession(cfg Config) (SessionHandle, error)
}
