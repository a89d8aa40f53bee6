package pipeline

import "errors"

var (
	// ErrInputUnderrun is reported when the capture source stalls beyond the
	// watchdog interval. The pipeline keeps waiting.
	ErrInputUnderrun = errors.New("pipeline: input underrun")

	// ErrEngineFailure wraps recognition and translation errors, including
	// deadline expiry. The affected event is dropped.
	ErrEngineFailure = errors.New("pipeline: engine failure")

	// ErrQueueOverflow is reported when a bounded link loses an item.
	ErrQueueOverflow = errors.New("pipeline: queue overflow")

	// ErrShutdownTimeout is returned by Stop when stages had to be abandoned.
	ErrShutdownTimeout = errors.New("pipeline: shutdown timeout")

	// ErrNotRunning is returned by control operations outside Start/Stop.
	ErrNotRunning = errors.New("pipeline: not running")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("pipeline: already started")
)
