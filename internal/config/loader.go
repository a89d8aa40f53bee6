package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists the built-in provider names per kind. [Validate]
// warns about names outside this list; they may still be registered by a
// third party.
var ValidProviderNames = map[string][]string{
	"stt": {"whisper", "whisper-native", "deepgram"},
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"vad": {"energy"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r, expands ${VAR} references from the
// environment, applies defaults and validates the result. Unknown fields are
// an error.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields that have a configuration-level default.
// Pipeline sizing left at zero keeps the pipeline's own defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Session.SourceLang == "" {
		cfg.Session.SourceLang = "en"
	}
	if cfg.Input.Path == "" {
		cfg.Input.Path = "-"
	}
	if cfg.Input.Format == "" {
		cfg.Input.Format = InputWAV
		if cfg.Input.Path == "-" {
			cfg.Input.Format = InputRaw
		}
	}
	if cfg.Input.SampleRate == 0 {
		cfg.Input.SampleRate = 16000
	}
	if cfg.Input.Channels == 0 {
		cfg.Input.Channels = 1
	}
	if cfg.Input.FrameDuration == 0 {
		cfg.Input.FrameDuration = 20 * time.Millisecond
	}
	if cfg.Providers.VAD.Name == "" {
		cfg.Providers.VAD.Name = "energy"
	}
	if cfg.VAD.Mode == "" {
		cfg.VAD.Mode = ModeStandard
	}
	if cfg.Draft.Cadence == 0 {
		cfg.Draft.Cadence = 2 * time.Second
	}
	if len(cfg.Sinks) == 0 {
		cfg.Sinks = []SinkConfig{{Kind: SinkLog}}
	}
}

// Validate checks that cfg is coherent. It returns every failure joined
// with [errors.Join]; adaptation bounds failures wrap
// vad.ErrAdaptationOutOfBounds.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Input
	if !cfg.Input.Format.IsValid() {
		errs = append(errs, fmt.Errorf("input.format %q is invalid; valid values: wav, raw", cfg.Input.Format))
	}
	if cfg.Input.Format == InputWAV && cfg.Input.Path == "-" {
		errs = append(errs, errors.New("input.format wav needs a seekable file; use raw for stdin"))
	}
	if cfg.Input.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("input.sample_rate must be positive, got %d", cfg.Input.SampleRate))
	}
	if cfg.Input.Channels < 1 || cfg.Input.Channels > 2 {
		errs = append(errs, fmt.Errorf("input.channels must be 1 or 2, got %d", cfg.Input.Channels))
	}
	if cfg.Input.FrameDuration < 5*time.Millisecond || cfg.Input.FrameDuration > 100*time.Millisecond {
		errs = append(errs, fmt.Errorf("input.frame_duration %v is out of range [5ms, 100ms]", cfg.Input.FrameDuration))
	}

	// Providers
	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt.name is required"))
	}
	validateProviderName("stt", cfg.Providers.STT.Name)
	for i, fb := range cfg.Providers.STTFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.stt_fallbacks[%d].name is required", i))
		}
		validateProviderName("stt", fb.Name)
	}
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("llm", cfg.Providers.DraftLLM.Name)
	for i, fb := range cfg.Providers.LLMFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.llm_fallbacks[%d].name is required", i))
		}
		validateProviderName("llm", fb.Name)
	}
	validateProviderName("vad", cfg.Providers.VAD.Name)

	// Session ↔ providers
	if cfg.Session.TargetLang != "" && cfg.Providers.LLM.Name == "" {
		errs = append(errs, fmt.Errorf("session.target_lang %q requires providers.llm", cfg.Session.TargetLang))
	}
	if cfg.Session.TargetLang == "" && cfg.Providers.LLM.Name != "" {
		slog.Warn("providers.llm is configured but session.target_lang is empty; translation is disabled")
	}

	// VAD
	if !cfg.VAD.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("vad.mode %q is invalid; valid values: sentence, standard, interview", cfg.VAD.Mode))
	}
	if cfg.VAD.ForceEnvironment != "" && !cfg.VAD.ForceEnvironment.IsValid() {
		errs = append(errs, fmt.Errorf("vad.force_environment %q is invalid; valid values: quiet, moderate, noisy, very_noisy", cfg.VAD.ForceEnvironment))
	}
	if cfg.VAD.Mode.IsValid() {
		if _, err := cfg.VAD.Build(); err != nil {
			errs = append(errs, fmt.Errorf("vad config: %w", err))
		}
	}

	// Pipeline
	p := cfg.Pipeline
	for name, v := range map[string]int{
		"workers":           p.Workers,
		"capture_queue":     p.CaptureQueue,
		"recognition_queue": p.RecognitionQueue,
		"translation_queue": p.TranslationQueue,
	} {
		if v < 0 {
			errs = append(errs, fmt.Errorf("pipeline.%s must not be negative, got %d", name, v))
		}
	}
	for name, v := range map[string]time.Duration{
		"recognition_timeout": p.RecognitionTimeout,
		"translation_timeout": p.TranslationTimeout,
		"watchdog":            p.Watchdog,
		"status_interval":     p.StatusInterval,
	} {
		if v < 0 {
			errs = append(errs, fmt.Errorf("pipeline.%s must not be negative, got %v", name, v))
		}
	}

	// Draft
	if cfg.Draft.IsEnabled() && cfg.Draft.Cadence < 100*time.Millisecond {
		errs = append(errs, fmt.Errorf("draft.cadence %v must be at least 100ms", cfg.Draft.Cadence))
	}

	// Shutdown
	if cfg.Shutdown.Timeout < 0 || cfg.Shutdown.Grace < 0 {
		errs = append(errs, errors.New("shutdown durations must not be negative"))
	}
	if cfg.Shutdown.Timeout > 0 && cfg.Shutdown.Grace > cfg.Shutdown.Timeout {
		errs = append(errs, fmt.Errorf("shutdown.grace %v exceeds shutdown.timeout %v", cfg.Shutdown.Grace, cfg.Shutdown.Timeout))
	}

	// Glossary
	g := cfg.Glossary
	if g.PhoneticThreshold < 0 || g.PhoneticThreshold > 1 {
		errs = append(errs, fmt.Errorf("glossary.phonetic_threshold %.2f is out of range [0, 1]", g.PhoneticThreshold))
	}
	if g.FuzzyThreshold < 0 || g.FuzzyThreshold > 1 {
		errs = append(errs, fmt.Errorf("glossary.fuzzy_threshold %.2f is out of range [0, 1]", g.FuzzyThreshold))
	}
	if g.Boost < 0 {
		errs = append(errs, fmt.Errorf("glossary.boost must not be negative, got %g", g.Boost))
	}

	// Resilience
	if cfg.Resilience.MaxFailures < 0 || cfg.Resilience.HalfOpenMax < 0 || cfg.Resilience.ResetTimeout < 0 {
		errs = append(errs, errors.New("resilience values must not be negative"))
	}

	// Sinks
	websockets := 0
	for i, s := range cfg.Sinks {
		prefix := fmt.Sprintf("sinks[%d]", i)
		if !s.Kind.IsValid() {
			errs = append(errs, fmt.Errorf("%s.kind %q is invalid; valid values: log, jsonl, websocket, redis, postgres", prefix, s.Kind))
			continue
		}
		if s.Buffer < 0 {
			errs = append(errs, fmt.Errorf("%s.buffer must not be negative, got %d", prefix, s.Buffer))
		}
		switch s.Kind {
		case SinkRedis:
			if s.Addr == "" {
				errs = append(errs, fmt.Errorf("%s.addr is required for redis", prefix))
			}
		case SinkPostgres:
			if s.DSN == "" {
				errs = append(errs, fmt.Errorf("%s.dsn is required for postgres", prefix))
			}
		case SinkWebSocket:
			websockets++
			if cfg.Server.ListenAddr == "" {
				errs = append(errs, fmt.Errorf("%s: websocket sink requires server.listen_addr", prefix))
			}
		}
	}
	if websockets > 1 {
		errs = append(errs, fmt.Errorf("at most one websocket sink is supported, got %d", websockets))
	}

	return errors.Join(errs...)
}

// validateProviderName warns when name is not one of the built-in names of
// kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
