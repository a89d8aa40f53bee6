package resilience

import (
	"context"

	"github.com/MrWong99/voxbridge/pkg/provider/translate"
)

// TranslatorFallback implements [translate.Translator] with failover across
// several translation backends.
type TranslatorFallback struct {
	group *FallbackGroup[translate.Translator]
}

var _ translate.Translator = (*TranslatorFallback)(nil)

// NewTranslatorFallback creates a [TranslatorFallback] with primary as the
// preferred backend.
func NewTranslatorFallback(primary translate.Translator, primaryName string, cfg FallbackConfig) *TranslatorFallback {
	return &TranslatorFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another translator.
func (f *TranslatorFallback) AddFallback(name string, t translate.Translator) {
	f.group.AddFallback(name, t)
}

// Translate sends req to the first healthy backend.
func (f *TranslatorFallback) Translate(ctx context.Context, req translate.Request) (translate.Result, error) {
	return Execute(ctx, f.group, func(ctx context.Context, t translate.Translator) (translate.Result, error) {
		return t.Translate(ctx, req)
	})
}

// States reports the breaker state of every backend by name.
func (f *TranslatorFallback) States() map[string]State { return f.group.States() }

// Available reports whether any backend would accept a call.
func (f *TranslatorFallback) Available() bool { return f.group.Available() }
