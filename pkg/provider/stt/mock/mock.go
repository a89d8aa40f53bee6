// Package mock provides a test double for the stt.Recognizer interface.
//
// Set RecognizeFunc to compute results from the request (for example from
// the audio length, to emulate a backend whose output grows with the input),
// or Result for a fixed answer.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxbridge/pkg/provider/stt"
)

// RecognizeCall records a single invocation of Recognizer.Recognize.
type RecognizeCall struct {
	Req stt.Request
}

// Recognizer is a mock implementation of stt.Recognizer.
type Recognizer struct {
	mu sync.Mutex

	// RecognizeFunc, if set, computes the result of every call.
	RecognizeFunc func(ctx context.Context, req stt.Request) (stt.Result, error)

	// Result and Err are returned when RecognizeFunc is nil.
	Result stt.Result
	Err    error

	// Calls records every call to Recognize in order.
	Calls []RecognizeCall
}

// Recognize records the call and returns the scripted result.
func (r *Recognizer) Recognize(ctx context.Context, req stt.Request) (stt.Result, error) {
	r.mu.Lock()
	r.Calls = append(r.Calls, RecognizeCall{Req: req})
	fn, res, err := r.RecognizeFunc, r.Result, r.Err
	r.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return res, err
}

// CallCount returns the number of Recognize calls. Thread-safe.
func (r *Recognizer) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Calls)
}

// DraftCalls returns how many calls were drafts. Thread-safe.
func (r *Recognizer) DraftCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.Calls {
		if c.Req.Draft {
			n++
		}
	}
	return n
}

var _ stt.Recognizer = (*Recognizer)(nil)
