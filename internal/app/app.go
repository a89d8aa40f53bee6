// Package app wires all voxbridge subsystems into a running application.
//
// The App struct owns the full lifecycle: New connects the providers, the
// pipeline and the HTTP surface, Run processes the input until it ends or
// ctx is cancelled, and Shutdown drains the pipeline and tears everything
// down in order.
//
// For testing, inject the capture source and metrics via functional options
// (WithSource, WithMetrics). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxbridge/internal/config"
	"github.com/MrWong99/voxbridge/internal/observe"
	"github.com/MrWong99/voxbridge/internal/pipeline"
	"github.com/MrWong99/voxbridge/internal/semantic"
	"github.com/MrWong99/voxbridge/internal/transcript"
	"github.com/MrWong99/voxbridge/internal/transcript/phonetic"
	"github.com/MrWong99/voxbridge/pkg/audio"
	"github.com/MrWong99/voxbridge/pkg/sink"
)

// serverShutdownTimeout bounds the HTTP server drain.
const serverShutdownTimeout = 5 * time.Second

// errInputEnded stops the run group once the pipeline delivered everything.
var errInputEnded = errors.New("input ended")

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems — initialised in New, torn down in Shutdown.
	out      sink.Multi
	gate     *semantic.Gate
	glossary *transcript.Glossary
	src      audio.Source
	pipe     *pipeline.Orchestrator
	metrics  *observe.Metrics
	logLevel *slog.LevelVar
	handler  http.Handler
	server   *http.Server

	// closers are called in order during Shutdown, after the pipeline
	// stopped.
	closers []func() error

	stopOnce    sync.Once
	shutdownErr error
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSource injects the capture source instead of opening cfg.Input.
func WithSource(src audio.Source) Option {
	return func(a *App) { a.src = src }
}

// WithMetrics sets the metric instruments. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel hands the app the level variable of the process logger so
// config reloads can change it.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App from cfg and the providers built by [BuildProviders].
// The App takes ownership of the providers and their sinks: they are closed
// by Shutdown, or before New returns an error.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (_ *App, err error) {
	if providers == nil || providers.STT == nil || providers.VAD == nil {
		return nil, errors.New("app: recognizer and vad providers are required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	defer func() {
		if err != nil {
			a.closeAll()
		}
	}()

	// ── 1. Sinks ─────────────────────────────────────────────────────────
	a.out = sink.Multi(providers.Sinks)
	if len(a.out) == 0 {
		a.out = sink.Multi{sink.NewLog(slog.Default())}
	}
	a.closers = append(a.closers, a.out.Close, providers.Close)

	// ── 2. Semantic gate and glossary ────────────────────────────────────
	a.gate = semantic.New(cfg.Gate.Verbs)
	a.glossary = newGlossary(cfg.Glossary)

	// ── 3. Capture source ────────────────────────────────────────────────
	if a.src == nil {
		src, err := openSource(cfg.Input)
		if err != nil {
			return nil, fmt.Errorf("app: open input: %w", err)
		}
		a.src = src
	}

	// ── 4. Pipeline ──────────────────────────────────────────────────────
	pcfg, err := pipelineConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("app: pipeline config: %w", err)
	}
	a.pipe, err = pipeline.New(pcfg, providers.STT, providers.VAD, a.out,
		pipeline.WithTranslator(providers.Translator),
		pipeline.WithGate(a.gate),
		pipeline.WithCorrector(a.glossary),
		pipeline.WithMetrics(a.metrics),
		pipeline.WithLogger(slog.Default()),
	)
	if err != nil {
		return nil, fmt.Errorf("app: init pipeline: %w", err)
	}

	// ── 5. HTTP surface ──────────────────────────────────────────────────
	a.handler = observe.Middleware(a.metrics)(a.routes())
	if cfg.Server.ListenAddr != "" {
		a.server = &http.Server{
			Addr:              cfg.Server.ListenAddr,
			Handler:           a.handler,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	return a, nil
}

// Handler returns the HTTP surface, wrapped in the observability middleware.
func (a *App) Handler() http.Handler { return a.handler }

// Pipeline exposes the running orchestrator.
func (a *App) Pipeline() *pipeline.Orchestrator { return a.pipe }

// ─── Init helpers ────────────────────────────────────────────────────────────

// pipelineConfig starts from the pipeline defaults and applies every
// non-zero setting of cfg.
func pipelineConfig(cfg *config.Config) (pipeline.Config, error) {
	pc := pipeline.DefaultConfig()
	pc.SessionID = cfg.Session.ID
	pc.SourceLang = cfg.Session.SourceLang
	pc.TargetLang = cfg.Session.TargetLang

	vcfg, err := cfg.VAD.Build()
	if err != nil {
		return pipeline.Config{}, err
	}
	pc.VAD = vcfg

	p := cfg.Pipeline
	setIfPositive(&pc.Workers, p.Workers)
	setIfPositive(&pc.CaptureQueue, p.CaptureQueue)
	setIfPositive(&pc.RecognitionQueue, p.RecognitionQueue)
	setIfPositive(&pc.TranslationQueue, p.TranslationQueue)
	setIfPositive(&pc.RecognitionTimeout, p.RecognitionTimeout)
	setIfPositive(&pc.TranslationTimeout, p.TranslationTimeout)
	setIfPositive(&pc.Watchdog, p.Watchdog)
	setIfPositive(&pc.StatusInterval, p.StatusInterval)

	pc.Draft.Enabled = cfg.Draft.IsEnabled()
	setIfPositive(&pc.Draft.Cadence, cfg.Draft.Cadence)

	setIfPositive(&pc.Shutdown.Timeout, cfg.Shutdown.Timeout)
	setIfPositive(&pc.Shutdown.Grace, cfg.Shutdown.Grace)
	if pc.Shutdown.Grace > pc.Shutdown.Timeout {
		pc.Shutdown.Grace = pc.Shutdown.Timeout
	}
	pc.Shutdown.ForceFinalize = cfg.Shutdown.ForceFinalize

	return pc, pc.Validate()
}

func setIfPositive[T int | time.Duration](dst *T, v T) {
	if v > 0 {
		*dst = v
	}
}

// newGlossary builds the corrector. Zero thresholds keep the matcher
// defaults.
func newGlossary(gc config.GlossaryConfig) *transcript.Glossary {
	var mopts []phonetic.Option
	if gc.PhoneticThreshold > 0 {
		mopts = append(mopts, phonetic.WithPhoneticThreshold(gc.PhoneticThreshold))
	}
	if gc.FuzzyThreshold > 0 {
		mopts = append(mopts, phonetic.WithFuzzyThreshold(gc.FuzzyThreshold))
	}
	opts := []transcript.GlossaryOption{transcript.WithMatcher(phonetic.New(mopts...))}
	if gc.Boost > 0 {
		opts = append(opts, transcript.WithBoost(gc.Boost))
	}
	return transcript.NewGlossary(gc.Terms, opts...)
}

// openSource opens the configured capture input. "-" reads raw PCM from
// stdin.
func openSource(in config.InputConfig) (audio.Source, error) {
	return audio.OpenSource(in.Path, audio.Container(in.Format),
		audio.Format{SampleRate: in.SampleRate, Channels: in.Channels},
		audio.WithFrameDuration(in.FrameDuration),
		audio.WithPacing(in.Realtime),
	)
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the pipeline and the HTTP server and blocks until the input is
// exhausted, ctx is cancelled or the server fails. It returns nil when the
// input ended normally and ctx.Err() after cancellation. Call Shutdown
// afterwards in either case.
func (a *App) Run(ctx context.Context) error {
	// The pipeline outlives ctx so Shutdown can drain it.
	if err := a.pipe.Start(context.WithoutCancel(ctx), a.src); err != nil {
		return fmt.Errorf("app: start pipeline: %w", err)
	}
	if env := a.cfg.VAD.ForceEnvironment; env != "" {
		if err := a.pipe.ForceEnvironment(ctx, env.Environment()); err != nil {
			slog.Warn("force environment failed", "environment", env, "err", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case <-a.pipe.Done():
			if err := a.pipe.Err(); err != nil {
				return fmt.Errorf("app: input: %w", err)
			}
			return errInputEnded
		case <-gctx.Done():
			return nil
		}
	})

	if a.server != nil {
		g.Go(func() error {
			slog.Info("http server listening", "addr", a.server.Addr)
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			return a.stopServer()
		})
	}

	slog.Info("app running", "session_id", a.cfg.Session.ID, "sinks", len(a.out))
	err := g.Wait()
	switch {
	case errors.Is(err, errInputEnded):
		slog.Info("input exhausted, all events delivered")
		return nil
	case err != nil:
		return err
	}
	return ctx.Err()
}

func (a *App) stopServer() error {
	ctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("app: http server shutdown: %w", err)
	}
	return nil
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the pipeline within its shutdown timeout, then closes the
// sinks, the providers and the HTTP server. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned. A pipeline drain that exceeded
// its grace period is reported as an error wrapping
// [pipeline.ErrShutdownTimeout] after everything else was closed.
func (a *App) Shutdown(ctx context.Context) error {
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		var stopErr error
		rep, err := a.pipe.Stop(ctx)
		switch {
		case errors.Is(err, pipeline.ErrNotRunning):
			// Never started: the source is still ours to close.
			a.closers = append(a.closers, a.src.Close)
		case err != nil:
			slog.Warn("pipeline stop incomplete", "err", err,
				"dropped", rep.Dropped, "abandoned", rep.Abandoned)
			stopErr = err
		default:
			slog.Info("pipeline stopped", "graceful", rep.Graceful, "duration", rep.Duration)
		}

		if a.server != nil {
			a.closers = append(a.closers, a.stopServer)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				a.shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		a.shutdownErr = stopErr
		slog.Info("shutdown complete")
	})
	return a.shutdownErr
}

// closeAll releases what New created before it failed.
func (a *App) closeAll() {
	if a.src != nil {
		a.closers = append(a.closers, a.src.Close)
	}
	for _, c := range a.closers {
		if err := c(); err != nil {
			slog.Warn("closer error", "err", err)
		}
	}
}
