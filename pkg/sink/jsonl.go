package sink

import (
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/MrWong99/voxbridge/pkg/types"
)

// JSONLines writes one JSON envelope per line to an io.Writer, typically
// stdout. Writes happen on a background goroutine so a slow reader never
// stalls the pipeline.
type JSONLines struct {
	w        io.Writer
	statuses bool
	q        *Queue[[]byte]
	failed   atomic.Bool
}

var _ Sink = (*JSONLines)(nil)

// JSONLinesOption configures a [JSONLines] sink.
type JSONLinesOption func(*JSONLines)

// WithStatuses also writes status snapshots.
func WithStatuses(enabled bool) JSONLinesOption {
	return func(s *JSONLines) { s.statuses = enabled }
}

// NewJSONLines returns a sink buffering up to capacity lines for w. The
// writer is not closed by Close.
func NewJSONLines(w io.Writer, capacity int, opts ...JSONLinesOption) *JSONLines {
	s := &JSONLines{w: w}
	for _, o := range opts {
		o(s)
	}
	s.q = NewQueue("jsonl", capacity, s.write)
	return s
}

func (s *JSONLines) write(line []byte) {
	if _, err := s.w.Write(line); err != nil && s.failed.CompareAndSwap(false, true) {
		slog.Warn("sink: jsonl write failed, further errors suppressed", "err", err)
	}
}

// Emit queues ev as a "transcript" envelope.
func (s *JSONLines) Emit(ev types.TranscriptEvent) {
	b, err := types.EventEnvelope(ev)
	if err != nil {
		slog.Warn("sink: encode event", "err", err)
		return
	}
	s.q.Push(append(b, '\n'))
}

// EmitStatus queues st as a "status" envelope when statuses are enabled.
func (s *JSONLines) EmitStatus(st types.Status) {
	if !s.statuses {
		return
	}
	b, err := types.StatusEnvelope(st)
	if err != nil {
		slog.Warn("sink: encode status", "err", err)
		return
	}
	s.q.Push(append(b, '\n'))
}

// Close flushes buffered lines.
func (s *JSONLines) Close() error {
	s.q.Close()
	return nil
}
