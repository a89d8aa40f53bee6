package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/MrWong99/voxbridge/internal/config"
	"github.com/MrWong99/voxbridge/internal/resilience"
	"github.com/MrWong99/voxbridge/pkg/provider/llm"
	"github.com/MrWong99/voxbridge/pkg/provider/stt"
	"github.com/MrWong99/voxbridge/pkg/provider/translate"
	"github.com/MrWong99/voxbridge/pkg/provider/translate/llmtranslate"
	"github.com/MrWong99/voxbridge/pkg/provider/vad"
	"github.com/MrWong99/voxbridge/pkg/sink"
)

// Providers holds the engines and sinks a run is built from. Populated by
// [BuildProviders] from the config registry; tests fill it directly.
type Providers struct {
	// STT is the recognizer, usually a [resilience.RecognizerFallback].
	STT stt.Recognizer

	// Translator is nil when no target language is configured.
	Translator translate.Translator

	VAD vad.Engine

	// Sinks receive every event and status. Empty means a log sink.
	Sinks []sink.Sink

	closers []func() error
}

// Close releases engines that hold resources (native models). Sinks are
// closed by the [App] after the pipeline stopped.
func (p *Providers) Close() error {
	var errs []error
	for _, c := range p.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

func (p *Providers) track(v any) {
	if c, ok := v.(io.Closer); ok {
		p.closers = append(p.closers, c.Close)
	}
}

// BuildProviders creates every configured engine and sink through reg.
// Recognizer and LLM fallbacks are grouped behind circuit breakers. When
// cfg.Session.ID is empty a random UUID is assigned to it first, so sinks
// and the pipeline share one session id. On error everything created so far
// is closed.
func BuildProviders(ctx context.Context, cfg *config.Config, reg *config.Registry) (_ *Providers, err error) {
	if cfg.Session.ID == "" {
		cfg.Session.ID = uuid.NewString()
	}

	p := &Providers{}
	defer func() {
		if err != nil {
			_ = sink.Multi(p.Sinks).Close()
			_ = p.Close()
		}
	}()

	fbCfg := resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  cfg.Resilience.MaxFailures,
			ResetTimeout: cfg.Resilience.ResetTimeout,
			HalfOpenMax:  cfg.Resilience.HalfOpenMax,
		},
	}

	// ── Recognizer ───────────────────────────────────────────────────────
	labels := newLabeler()
	primary, err := reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		return nil, fmt.Errorf("app: create stt provider %q: %w", cfg.Providers.STT.Name, err)
	}
	p.track(primary)
	recognizers := resilience.NewRecognizerFallback(primary, labels.next(cfg.Providers.STT.Name), fbCfg)
	for _, entry := range cfg.Providers.STTFallbacks {
		r, err := reg.CreateSTT(entry)
		if err != nil {
			return nil, fmt.Errorf("app: create stt fallback %q: %w", entry.Name, err)
		}
		p.track(r)
		recognizers.AddFallback(labels.next(entry.Name), r)
	}
	p.STT = recognizers
	slog.Info("provider created", "kind", "stt", "name", cfg.Providers.STT.Name,
		"fallbacks", len(cfg.Providers.STTFallbacks))

	// ── Translator ───────────────────────────────────────────────────────
	if cfg.Session.TargetLang != "" {
		t, err := buildTranslator(cfg, reg, fbCfg)
		if err != nil {
			return nil, err
		}
		p.Translator = t
	}

	// ── VAD engine ───────────────────────────────────────────────────────
	p.VAD, err = reg.CreateVAD(cfg.Providers.VAD)
	if err != nil {
		return nil, fmt.Errorf("app: create vad provider %q: %w", cfg.Providers.VAD.Name, err)
	}
	slog.Info("provider created", "kind", "vad", "name", cfg.Providers.VAD.Name)

	// ── Sinks ────────────────────────────────────────────────────────────
	for i, sc := range cfg.Sinks {
		s, err := reg.CreateSink(ctx, sc, cfg.Session.ID)
		if err != nil {
			return nil, fmt.Errorf("app: create sink %d (%s): %w", i, sc.Kind, err)
		}
		p.Sinks = append(p.Sinks, s)
		slog.Info("sink created", "kind", sc.Kind)
	}
	return p, nil
}

func buildTranslator(cfg *config.Config, reg *config.Registry, fbCfg resilience.FallbackConfig) (translate.Translator, error) {
	labels := newLabeler()

	primary, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		return nil, fmt.Errorf("app: create llm provider %q: %w", cfg.Providers.LLM.Name, err)
	}
	var opts []llmtranslate.Option
	if cfg.Providers.DraftLLM.Name != "" {
		draft, err := reg.CreateLLM(cfg.Providers.DraftLLM)
		if err != nil {
			return nil, fmt.Errorf("app: create draft llm %q: %w", cfg.Providers.DraftLLM.Name, err)
		}
		opts = append(opts, llmtranslate.WithDraftProvider(draft))
	}

	group := resilience.NewTranslatorFallback(llmtranslate.New(primary, opts...), labels.next(cfg.Providers.LLM.Name), fbCfg)
	for _, entry := range cfg.Providers.LLMFallbacks {
		var p llm.Provider
		p, err = reg.CreateLLM(entry)
		if err != nil {
			return nil, fmt.Errorf("app: create llm fallback %q: %w", entry.Name, err)
		}
		group.AddFallback(labels.next(entry.Name), llmtranslate.New(p))
	}
	slog.Info("provider created", "kind", "llm", "name", cfg.Providers.LLM.Name,
		"model", primary.Model(), "fallbacks", len(cfg.Providers.LLMFallbacks))
	return group, nil
}

// labeler names failover entries uniquely so breaker states stay apart when
// one provider is listed twice.
type labeler map[string]int

func newLabeler() labeler { return labeler{} }

func (l labeler) next(name string) string {
	l[name]++
	if n := l[name]; n > 1 {
		return fmt.Sprintf("%s#%d", name, n)
	}
	return name
}
