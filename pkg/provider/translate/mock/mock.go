// Package mock provides a test double for the translate.Translator interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxbridge/pkg/provider/translate"
)

// Translator is a mock implementation of translate.Translator.
// When TranslateFunc is nil, Translate returns Result and Err.
type Translator struct {
	mu sync.Mutex

	TranslateFunc func(ctx context.Context, req translate.Request) (translate.Result, error)
	Result        translate.Result
	Err           error

	// Calls records every request in order.
	Calls []translate.Request
}

// Translate records the call and returns the configured response.
func (t *Translator) Translate(ctx context.Context, req translate.Request) (translate.Result, error) {
	t.mu.Lock()
	t.Calls = append(t.Calls, req)
	fn, res, err := t.TranslateFunc, t.Result, t.Err
	t.mu.Unlock()
	if fn != nil {
		return fn(ctx, req)
	}
	return res, err
}

// CallCount returns the number of Translate calls. Thread-safe.
func (t *Translator) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Calls)
}

// Requests returns a copy of the recorded requests. Thread-safe.
func (t *Translator) Requests() []translate.Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]translate.Request, len(t.Calls))
	copy(out, t.Calls)
	return out
}

var _ translate.Translator = (*Translator)(nil)
