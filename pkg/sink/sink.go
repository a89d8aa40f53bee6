// Package sink defines where transcript events and status snapshots go.
//
// The pipeline never calls presentation code directly; it hands every
// released [types.TranscriptEvent] and periodic [types.Status] to a [Sink].
// Sinks must not block the caller: network-backed implementations buffer
// internally and drop on overflow (see [Queue]).
package sink

import (
	"errors"

	"github.com/MrWong99/voxbridge/pkg/types"
)

// Sink receives pipeline output. Emit and EmitStatus are never called
// concurrently and must return promptly. Close flushes buffered output
// and releases resources; no calls follow it.
type Sink interface {
	Emit(ev types.TranscriptEvent)
	EmitStatus(st types.Status)
	Close() error
}

// Multi fans out every call to all member sinks in order.
type Multi []Sink

var _ Sink = Multi(nil)

// Emit forwards ev to every sink.
func (m Multi) Emit(ev types.TranscriptEvent) {
	for _, s := range m {
		s.Emit(ev)
	}
}

// EmitStatus forwards st to every sink.
func (m Multi) EmitStatus(st types.Status) {
	for _, s := range m {
		s.EmitStatus(st)
	}
}

// Close closes every sink and joins their errors.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops everything.
type Discard struct{}

func (Discard) Emit(types.TranscriptEvent) {}
func (Discard) EmitStatus(types.Status)    {}
func (Discard) Close() error               { return nil }
