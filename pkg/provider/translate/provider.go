// Package translate defines the Translator interface for text translation
// backends used by the translation stage.
//
// Implementations must be safe for concurrent use and must return promptly
// when ctx is cancelled; the pipeline gives every call its own deadline.
package translate

import (
	"context"
	"errors"
)

// ErrEmptyText is returned when a request carries no text.
var ErrEmptyText = errors.New("translate: empty text")

// Request is one translation call.
type Request struct {
	Text string

	// SourceLang and TargetLang are BCP-47 tags. An empty SourceLang lets
	// the backend detect the language.
	SourceLang string
	TargetLang string

	// Draft marks text recognized from an open segment. Backends may use a
	// cheaper configuration for drafts.
	Draft bool
}

// Validate reports requests no backend can serve.
func (r Request) Validate() error {
	if r.Text == "" {
		return ErrEmptyText
	}
	if r.TargetLang == "" {
		return errors.New("translate: target language must not be empty")
	}
	return nil
}

// Result is the translation of a request.
type Result struct {
	Text string

	// Confidence in [0, 1].
	Confidence float64
}

// Translator is the abstraction over any translation backend.
type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}
