// Command voxbridge transcribes and translates a live audio stream.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/voxbridge/internal/app"
	"github.com/MrWong99/voxbridge/internal/config"
	"github.com/MrWong99/voxbridge/internal/observe"
	"github.com/MrWong99/voxbridge/pkg/provider/llm"
	"github.com/MrWong99/voxbridge/pkg/provider/llm/anyllm"
	"github.com/MrWong99/voxbridge/pkg/provider/llm/openai"
	"github.com/MrWong99/voxbridge/pkg/provider/stt"
	"github.com/MrWong99/voxbridge/pkg/provider/stt/deepgram"
	"github.com/MrWong99/voxbridge/pkg/provider/stt/whisper"
	"github.com/MrWong99/voxbridge/pkg/provider/vad"
	"github.com/MrWong99/voxbridge/pkg/provider/vad/energy"
	"github.com/MrWong99/voxbridge/pkg/sink"
	"github.com/MrWong99/voxbridge/pkg/sink/postgres"
	"github.com/MrWong99/voxbridge/pkg/sink/redispub"
	"github.com/MrWong99/voxbridge/pkg/sink/wshub"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	envFile := flag.String("env-file", ".env", "optional dotenv file loaded before the config is expanded")
	flag.Parse()

	// ── Environment ───────────────────────────────────────────────────────────
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "voxbridge: load %s: %v\n", *envFile, err)
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxbridge: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxbridge: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// Logs go to stderr so a jsonl sink can own stdout.
	logLevel := new(slog.LevelVar)
	logLevel.Set(cfg.Server.LogLevel.Level())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("voxbridge starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		if err := otelShutdown(context.Background()); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := app.BuildProviders(ctx, cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	application, err := app.New(ctx, cfg, providers, app.WithLogLevel(logLevel))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	// ── Config hot reload ─────────────────────────────────────────────────────
	if *configPath != "" {
		watcher, err := config.NewWatcher(*configPath, func(_, _ *config.Config, diff config.ConfigDiff) {
			reloadCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := application.ApplyDiff(reloadCtx, diff); err != nil {
				slog.Warn("config reload partially applied", "err", err)
			}
		})
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer watcher.Stop()
		}
	}

	slog.Info("pipeline ready; press Ctrl+C to shut down", "session_id", cfg.Session.ID)

	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), max(15*time.Second, cfg.Shutdown.Timeout+5*time.Second))
	defer cancel()

	slog.Info("stopping, draining in-flight segments…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, openai.WithTimeout(d))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	// The remaining hosted providers share one pattern: optional APIKey +
	// optional BaseURL.
	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Recognizer, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if m := optString(entry.Options, "draft_model"); m != "" {
			opts = append(opts, deepgram.WithDraftModel(m))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Recognizer, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Recognizer, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	// ── VAD ───────────────────────────────────────────────────────────────────

	reg.RegisterVAD("energy", func(entry config.ProviderEntry) (vad.Engine, error) {
		var opts []energy.Option
		if v, ok := optFloat(entry.Options, "midpoint_db"); ok {
			opts = append(opts, energy.WithMidpoint(v))
		}
		if v, ok := optFloat(entry.Options, "slope_db"); ok {
			opts = append(opts, energy.WithSlope(v))
		}
		if v, ok := optFloat(entry.Options, "floor_rise_db"); ok {
			opts = append(opts, energy.WithFloorRise(v))
		}
		return energy.New(opts...), nil
	})

	// ── Sinks ─────────────────────────────────────────────────────────────────

	reg.RegisterSink(config.SinkLog, func(context.Context, config.SinkConfig, string) (sink.Sink, error) {
		return sink.NewLog(slog.Default()), nil
	})

	reg.RegisterSink(config.SinkJSONL, func(_ context.Context, sc config.SinkConfig, _ string) (sink.Sink, error) {
		opts := []sink.JSONLinesOption{sink.WithStatuses(sc.Statuses)}
		if sc.Path == "" || sc.Path == "-" {
			return sink.NewJSONLines(os.Stdout, sc.Buffer, opts...), nil
		}
		f, err := os.OpenFile(sc.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("jsonl sink: %w", err)
		}
		return &fileSink{JSONLines: sink.NewJSONLines(f, sc.Buffer, opts...), file: f}, nil
	})

	reg.RegisterSink(config.SinkWebSocket, func(_ context.Context, sc config.SinkConfig, _ string) (sink.Sink, error) {
		var opts []wshub.Option
		if sc.Buffer > 0 {
			opts = append(opts, wshub.WithClientBuffer(sc.Buffer))
		}
		if len(sc.OriginPatterns) > 0 {
			opts = append(opts, wshub.WithOriginPatterns(sc.OriginPatterns...))
		}
		return wshub.New(opts...), nil
	})

	reg.RegisterSink(config.SinkRedis, func(ctx context.Context, sc config.SinkConfig, sessionID string) (sink.Sink, error) {
		return redispub.New(ctx, redispub.Config{
			Addr:         sc.Addr,
			Username:     sc.Username,
			Password:     sc.Password,
			DB:           sc.DB,
			Prefix:       sc.Prefix,
			SessionID:    sessionID,
			HistoryLimit: sc.HistoryLimit,
			StatusTTL:    sc.StatusTTL,
			Buffer:       sc.Buffer,
		})
	})

	reg.RegisterSink(config.SinkPostgres, func(ctx context.Context, sc config.SinkConfig, _ string) (sink.Sink, error) {
		return postgres.New(ctx, sc.DSN)
	})

	for kind, names := range reg.Names() {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// fileSink closes the output file once buffered lines are flushed.
type fileSink struct {
	*sink.JSONLines
	file io.Closer
}

func (s *fileSink) Close() error {
	return errors.Join(s.JSONLines.Close(), s.file.Close())
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	// stderr keeps stdout clean for jsonl output.
	w := os.Stderr
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║        voxbridge — startup summary    ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	printRow(w, "Session", cfg.Session.ID)
	printRow(w, "Languages", languages(cfg.Session.SourceLang, cfg.Session.TargetLang))
	printRow(w, "Input", cfg.Input.Path+" ("+string(cfg.Input.Format)+")")
	printProvider(w, "STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	fmt.Fprintf(w, "║  STT fallbacks   : %-19d ║\n", len(cfg.Providers.STTFallbacks))
	printProvider(w, "LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider(w, "Draft LLM", cfg.Providers.DraftLLM.Name, cfg.Providers.DraftLLM.Model)
	printProvider(w, "VAD", cfg.Providers.VAD.Name, string(cfg.VAD.Mode))
	fmt.Fprintf(w, "║  Sinks           : %-19d ║\n", len(cfg.Sinks))
	fmt.Fprintf(w, "║  Glossary terms  : %-19d ║\n", len(cfg.Glossary.Terms))
	if cfg.Server.ListenAddr != "" {
		printRow(w, "Listen addr", cfg.Server.ListenAddr)
	} else {
		printRow(w, "Listen addr", "(disabled)")
	}
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func languages(source, target string) string {
	if source == "" {
		source = "auto"
	}
	if target == "" {
		return source + " (no translation)"
	}
	return source + " → " + target
}

func printProvider(w io.Writer, kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	printRow(w, kind, value)
}

func printRow(w io.Writer, label, value string) {
	if r := []rune(value); len(r) > 19 {
		value = string(r[:18]) + "…"
	}
	fmt.Fprintf(w, "║  %-12s    : %-19s ║\n", label, value)
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optFloat accepts YAML ints and floats.
func optFloat(opts map[string]any, key string) (float64, bool) {
	switch v := opts[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

// optDuration parses a Go duration string such as "30s".
func optDuration(opts map[string]any, key string) time.Duration {
	d, err := time.ParseDuration(optString(opts, key))
	if err != nil {
		return 0
	}
	return d
}
