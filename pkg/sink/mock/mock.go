// Package mock provides a recording test double for the sink.Sink interface.
package mock

import (
	"sync"

	"github.com/MrWong99/voxbridge/pkg/sink"
	"github.com/MrWong99/voxbridge/pkg/types"
)

// Sink records every call. It is safe for concurrent use.
type Sink struct {
	mu sync.Mutex

	// EmitFunc, if set, is called for every event after it is recorded.
	EmitFunc func(ev types.TranscriptEvent)

	// CloseErr is returned by Close.
	CloseErr error

	events   []types.TranscriptEvent
	statuses []types.Status
	closed   int
}

var _ sink.Sink = (*Sink)(nil)

// Emit records ev.
func (s *Sink) Emit(ev types.TranscriptEvent) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	fn := s.EmitFunc
	s.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

// EmitStatus records st.
func (s *Sink) EmitStatus(st types.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, st)
}

// Close records the call and returns CloseErr.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return s.CloseErr
}

// Events returns a copy of the recorded events in emission order.
func (s *Sink) Events() []types.TranscriptEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.TranscriptEvent, len(s.events))
	copy(out, s.events)
	return out
}

// Finals returns the recorded FINAL events in emission order.
func (s *Sink) Finals() []types.TranscriptEvent {
	var out []types.TranscriptEvent
	for _, ev := range s.Events() {
		if ev.Kind == types.KindFinal {
			out = append(out, ev)
		}
	}
	return out
}

// Statuses returns a copy of the recorded status snapshots.
func (s *Sink) Statuses() []types.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Status, len(s.statuses))
	copy(out, s.statuses)
	return out
}

// CloseCount returns how often Close was called.
func (s *Sink) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
