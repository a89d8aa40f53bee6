// Package llmtranslate implements translate.Translator on top of an
// llm.Provider.
//
// The model is asked for a JSON object holding the translation and a
// self-reported confidence. Replies that are not valid JSON are used verbatim
// with a reduced confidence, and a reply cut off by the token limit is capped
// at TruncatedConfidence.
package llmtranslate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/MrWong99/voxbridge/pkg/provider/llm"
	"github.com/MrWong99/voxbridge/pkg/provider/translate"
)

const (
	defaultTemperature = 0.1
	defaultMaxTokens   = 512

	// UnparsedConfidence is reported when the reply was not the requested JSON.
	UnparsedConfidence = 0.6

	// TruncatedConfidence caps replies that hit the token limit.
	TruncatedConfidence = 0.5

	// unreportedConfidence is used when the JSON omits a confidence.
	unreportedConfidence = 0.8
)

const systemPromptTemplate = `You are a live speech translator. The input is a transcript of spoken %s.

Translate it into %s.

Rules:
- Translate meaning, not word order. Keep names, numbers and units intact.
- Do not add explanations, notes or alternatives.
- The transcript may contain recognition errors; translate what was most likely said.%s

Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{"translation": "<translated text>", "confidence": <0.0-1.0>}`

const draftNote = `
- The transcript is an unfinished sentence. Translate only what is there; do not complete it.`

var _ translate.Translator = (*Translator)(nil)

// Option is a functional option for configuring a [Translator].
type Option func(*Translator)

// WithTemperature sets the LLM sampling temperature. Default: 0.1.
func WithTemperature(temp float64) Option {
	return func(t *Translator) { t.temperature = temp }
}

// WithMaxTokens caps the completion length. Default: 512.
func WithMaxTokens(n int) Option {
	return func(t *Translator) { t.maxTokens = n }
}

// WithDraftProvider sets a separate, usually faster, provider for drafts.
func WithDraftProvider(p llm.Provider) Option {
	return func(t *Translator) { t.draft = p }
}

// Translator translates text with a language model. It is safe for
// concurrent use.
type Translator struct {
	llm         llm.Provider
	draft       llm.Provider
	temperature float64
	maxTokens   int
}

// New returns a new [Translator] backed by provider.
func New(provider llm.Provider, opts ...Option) *Translator {
	t := &Translator{
		llm:         provider,
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
	}
	for _, o := range opts {
		o(t)
	}
	if t.draft == nil {
		t.draft = t.llm
	}
	return t
}

type llmResponse struct {
	Translation string   `json:"translation"`
	Confidence  *float64 `json:"confidence"`
}

// Translate implements translate.Translator.
func (t *Translator) Translate(ctx context.Context, req translate.Request) (translate.Result, error) {
	if err := req.Validate(); err != nil {
		return translate.Result{}, err
	}

	provider := t.llm
	if req.Draft {
		provider = t.draft
	}
	resp, err := provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: buildSystemPrompt(req),
		Temperature:  t.temperature,
		MaxTokens:    t.maxTokens,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: req.Text}},
	})
	if err != nil {
		return translate.Result{}, fmt.Errorf("llmtranslate: complete: %w", err)
	}

	res := parseResponse(resp.Content)
	if res.Text == "" {
		return translate.Result{}, fmt.Errorf("llmtranslate: %w", llm.ErrEmptyResponse)
	}
	if resp.FinishReason == llm.FinishLength {
		res.Confidence = min(res.Confidence, TruncatedConfidence)
	}
	return res, nil
}

// buildSystemPrompt formats the prompt for the request's language pair.
func buildSystemPrompt(req translate.Request) string {
	src := "an unknown language"
	if req.SourceLang != "" {
		src = languageName(req.SourceLang)
	}
	note := ""
	if req.Draft {
		note = draftNote
	}
	return fmt.Sprintf(systemPromptTemplate, src, languageName(req.TargetLang), note)
}

// languageName renders a BCP-47 tag as "German (de)". Unparseable tags are
// returned as-is.
func languageName(tag string) string {
	t, err := language.Parse(tag)
	if err != nil {
		return tag
	}
	name := display.English.Tags().Name(t)
	if name == "" {
		return tag
	}
	return fmt.Sprintf("%s (%s)", name, t)
}

// parseResponse decodes the JSON reply, falling back to the raw content.
func parseResponse(content string) translate.Result {
	cleaned := stripMarkdown(content)

	var r llmResponse
	if err := json.Unmarshal([]byte(cleaned), &r); err != nil || r.Translation == "" {
		return translate.Result{Text: cleaned, Confidence: UnparsedConfidence}
	}
	conf := unreportedConfidence
	if r.Confidence != nil {
		conf = max(0, min(1, *r.Confidence))
	}
	return translate.Result{Text: strings.TrimSpace(r.Translation), Confidence: conf}
}

// stripMarkdown removes optional markdown code fences (```json ... ```) that
// some models prepend and append to JSON output.
func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}
