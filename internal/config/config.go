// Package config provides the configuration schema, loader, provider
// registry and hot-reload watcher for voxbridge.
package config

import (
	"log/slog"
	"time"

	"github.com/MrWong99/voxbridge/pkg/types"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level maps l to a [slog.Level]. Unknown values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Mode selects the segment pacing profile.
type Mode string

const (
	ModeSentence  Mode = "sentence"
	ModeStandard  Mode = "standard"
	ModeInterview Mode = "interview"
)

// IsValid reports whether m is a recognised segment mode.
func (m Mode) IsValid() bool {
	switch m {
	case ModeSentence, ModeStandard, ModeInterview:
		return true
	}
	return false
}

// EnvironmentName is the configuration spelling of a stable environment.
type EnvironmentName string

const (
	EnvQuiet     EnvironmentName = "quiet"
	EnvModerate  EnvironmentName = "moderate"
	EnvNoisy     EnvironmentName = "noisy"
	EnvVeryNoisy EnvironmentName = "very_noisy"
)

// IsValid reports whether e names a stable environment.
func (e EnvironmentName) IsValid() bool {
	_, ok := environments[e]
	return ok
}

// Environment returns the corresponding [types.Environment], or "" for an
// unknown name.
func (e EnvironmentName) Environment() types.Environment {
	return environments[e]
}

var environments = map[EnvironmentName]types.Environment{
	EnvQuiet:     types.EnvQuiet,
	EnvModerate:  types.EnvModerate,
	EnvNoisy:     types.EnvNoisy,
	EnvVeryNoisy: types.EnvVeryNoisy,
}

// InputFormat selects how the capture stream is decoded.
type InputFormat string

const (
	InputWAV InputFormat = "wav"
	InputRaw InputFormat = "raw"
)

// IsValid reports whether f is a recognised input format.
func (f InputFormat) IsValid() bool {
	return f == InputWAV || f == InputRaw
}

// SinkKind selects an output sink implementation.
type SinkKind string

const (
	SinkLog       SinkKind = "log"
	SinkJSONL     SinkKind = "jsonl"
	SinkWebSocket SinkKind = "websocket"
	SinkRedis     SinkKind = "redis"
	SinkPostgres  SinkKind = "postgres"
)

// IsValid reports whether k is a recognised sink kind.
func (k SinkKind) IsValid() bool {
	switch k {
	case SinkLog, SinkJSONL, SinkWebSocket, SinkRedis, SinkPostgres:
		return true
	}
	return false
}

// Config is the root configuration structure. It is loaded from YAML with
// [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Session    SessionConfig    `yaml:"session"`
	Input      InputConfig      `yaml:"input"`
	Providers  ProvidersConfig  `yaml:"providers"`
	VAD        VADConfig        `yaml:"vad"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Draft      DraftConfig      `yaml:"draft"`
	Shutdown   ShutdownConfig   `yaml:"shutdown"`
	Gate       GateConfig       `yaml:"gate"`
	Glossary   GlossaryConfig   `yaml:"glossary"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Sinks      []SinkConfig     `yaml:"sinks"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the HTTP surface (":8080"). Empty
	// disables the HTTP server.
	ListenAddr string `yaml:"listen_addr"`

	LogLevel LogLevel `yaml:"log_level"`
}

// SessionConfig identifies one run and its languages.
type SessionConfig struct {
	// ID labels every event and status. Empty generates a random UUID.
	ID string `yaml:"id"`

	// SourceLang is the BCP-47 tag of the spoken language.
	SourceLang string `yaml:"source_lang"`

	// TargetLang enables translation when set.
	TargetLang string `yaml:"target_lang"`
}

// InputConfig describes the capture source.
type InputConfig struct {
	// Path is a file path, or "-" for stdin.
	Path string `yaml:"path"`

	Format InputFormat `yaml:"format"`

	// SampleRate and Channels describe raw input. WAV headers override them.
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`

	// FrameDuration is the size of each capture frame. Default 20ms.
	FrameDuration time.Duration `yaml:"frame_duration"`

	// Realtime paces reads at the audio clock, as a live device would.
	Realtime bool `yaml:"realtime"`
}

// ProvidersConfig selects the engines behind each stage. Each fallback list
// is tried in order after its primary fails or has an open breaker.
type ProvidersConfig struct {
	STT          ProviderEntry   `yaml:"stt"`
	STTFallbacks []ProviderEntry `yaml:"stt_fallbacks"`

	// LLM backs the translator. Required when session.target_lang is set.
	LLM          ProviderEntry   `yaml:"llm"`
	LLMFallbacks []ProviderEntry `yaml:"llm_fallbacks"`

	// DraftLLM optionally serves draft translations with a cheaper model.
	DraftLLM ProviderEntry `yaml:"draft_llm"`

	// VAD selects the frame classifier. Default "energy".
	VAD ProviderEntry `yaml:"vad"`
}

// ProviderEntry is the common configuration block of every provider. Name
// selects the factory in the [Registry].
type ProviderEntry struct {
	Name    string `yaml:"name"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// VADConfig tunes segmentation and noise adaptation. Zero values keep the
// built-in defaults.
type VADConfig struct {
	Mode Mode `yaml:"mode"`

	// Presets maps environments to timing presets (quiet, office, noisy).
	Presets map[EnvironmentName]string `yaml:"presets"`

	// Timing overrides applied to every environment.
	MinSpeech  time.Duration `yaml:"min_speech"`
	MinSilence time.Duration `yaml:"min_silence"`
	MaxSegment time.Duration `yaml:"max_segment"`
	SpeechPad  time.Duration `yaml:"speech_pad"`

	// ThresholdMin and ThresholdMax bound the adaptive speech threshold.
	ThresholdMin float64 `yaml:"threshold_min"`
	ThresholdMax float64 `yaml:"threshold_max"`

	// Boundaries are the three zone boundaries in dBFS, quietest first.
	Boundaries []float64 `yaml:"boundaries"`

	// ZoneThresholds are the four zone target thresholds, quietest first.
	ZoneThresholds []float64 `yaml:"zone_thresholds"`

	NoiseHistory int     `yaml:"noise_history"`
	Percentile   float64 `yaml:"percentile"`
	AlphaNormal  float64 `yaml:"alpha_normal"`
	AlphaFast    float64 `yaml:"alpha_fast"`
	BetaNormal   float64 `yaml:"beta_normal"`
	BetaFast     float64 `yaml:"beta_fast"`

	// TransitionDeltaDB and TransitionSustain decide when a floor change
	// starts an environment transition.
	TransitionDeltaDB float64       `yaml:"transition_delta_db"`
	TransitionSustain time.Duration `yaml:"transition_sustain"`
	HysteresisDB      float64       `yaml:"hysteresis_db"`

	// PreFilterRatio skips classification of frames below ratio times the
	// floor RMS. Negative disables the pre-filter.
	PreFilterRatio float64 `yaml:"prefilter_ratio"`

	// ForceEnvironment pins the environment. Hot-reloadable.
	ForceEnvironment EnvironmentName `yaml:"force_environment"`
}

// PipelineConfig sizes the stages and their queues.
type PipelineConfig struct {
	Workers            int           `yaml:"workers"`
	CaptureQueue       int           `yaml:"capture_queue"`
	RecognitionQueue   int           `yaml:"recognition_queue"`
	TranslationQueue   int           `yaml:"translation_queue"`
	RecognitionTimeout time.Duration `yaml:"recognition_timeout"`
	TranslationTimeout time.Duration `yaml:"translation_timeout"`
	Watchdog           time.Duration `yaml:"watchdog"`
	StatusInterval     time.Duration `yaml:"status_interval"`
}

// DraftConfig controls interim results. Hot-reloadable.
type DraftConfig struct {
	// Enabled defaults to true.
	Enabled *bool         `yaml:"enabled"`
	Cadence time.Duration `yaml:"cadence"`
}

// IsEnabled reports the effective enabled flag.
func (d DraftConfig) IsEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}

// ShutdownConfig bounds the stop sequence.
type ShutdownConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	Grace         time.Duration `yaml:"grace"`
	ForceFinalize bool          `yaml:"force_finalize"`
}

// GateConfig extends the built-in verb lexicons of the semantic gate,
// keyed by language. Hot-reloadable.
type GateConfig struct {
	Verbs map[string][]string `yaml:"verbs"`
}

// GlossaryConfig lists domain terms for correction. Hot-reloadable terms.
type GlossaryConfig struct {
	Terms             []string `yaml:"terms"`
	Boost             float64  `yaml:"boost"`
	PhoneticThreshold float64  `yaml:"phonetic_threshold"`
	FuzzyThreshold    float64  `yaml:"fuzzy_threshold"`
}

// ResilienceConfig tunes the per-engine circuit breakers.
type ResilienceConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
	HalfOpenMax  int           `yaml:"half_open_max"`
}

// SinkConfig configures one output sink. Which fields apply depends on Kind.
type SinkConfig struct {
	Kind SinkKind `yaml:"kind"`

	// Path is the jsonl output file; "-" or empty writes to stdout.
	Path string `yaml:"path"`

	// Statuses includes status snapshots in jsonl output.
	Statuses bool `yaml:"statuses"`

	// Buffer is the number of events held while the sink is slow.
	Buffer int `yaml:"buffer"`

	// Redis.
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	Prefix       string        `yaml:"prefix"`
	HistoryLimit int64         `yaml:"history_limit"`
	StatusTTL    time.Duration `yaml:"status_ttl"`

	// Postgres.
	DSN string `yaml:"dsn"`

	// Websocket.
	OriginPatterns []string `yaml:"origin_patterns"`
}
