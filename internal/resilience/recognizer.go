package resilience

import (
	"context"

	"github.com/MrWong99/voxbridge/pkg/provider/stt"
)

// RecognizerFallback implements [stt.Recognizer] with failover across
// several recognition engines.
type RecognizerFallback struct {
	group *FallbackGroup[stt.Recognizer]
}

var _ stt.Recognizer = (*RecognizerFallback)(nil)

// NewRecognizerFallback creates a [RecognizerFallback] with primary as the
// preferred engine.
func NewRecognizerFallback(primary stt.Recognizer, primaryName string, cfg FallbackConfig) *RecognizerFallback {
	return &RecognizerFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another recognizer.
func (f *RecognizerFallback) AddFallback(name string, r stt.Recognizer) {
	f.group.AddFallback(name, r)
}

// Recognize sends req to the first healthy engine.
func (f *RecognizerFallback) Recognize(ctx context.Context, req stt.Request) (stt.Result, error) {
	return Execute(ctx, f.group, func(ctx context.Context, r stt.Recognizer) (stt.Result, error) {
		return r.Recognize(ctx, req)
	})
}

// States reports the breaker state of every engine by name.
func (f *RecognizerFallback) States() map[string]State { return f.group.States() }

// Available reports whether any engine would accept a call.
func (f *RecognizerFallback) Available() bool { return f.group.Available() }
