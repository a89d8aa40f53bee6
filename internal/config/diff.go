package config

import (
	"maps"
	"reflect"
	"slices"
	"time"
)

// ConfigDiff describes what changed between two configs. Only fields that
// can be applied to a running pipeline are tracked; everything else needs a
// restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// EnvironmentChanged is set when vad.force_environment changed. An empty
	// NewEnvironment returns to automatic classification.
	EnvironmentChanged bool
	NewEnvironment     EnvironmentName

	DraftChanged    bool
	NewDraftEnabled bool
	NewDraftCadence time.Duration

	GateChanged bool
	NewVerbs    map[string][]string

	GlossaryChanged bool
	NewTerms        []string

	// RestartRequired lists top-level sections whose changes are ignored
	// until restart.
	RestartRequired []string
}

// Changed reports whether any hot-reloadable field changed.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.EnvironmentChanged || d.DraftChanged || d.GateChanged || d.GlossaryChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.VAD.ForceEnvironment != new.VAD.ForceEnvironment {
		d.EnvironmentChanged = true
		d.NewEnvironment = new.VAD.ForceEnvironment
	}

	if old.Draft.IsEnabled() != new.Draft.IsEnabled() || old.Draft.Cadence != new.Draft.Cadence {
		d.DraftChanged = true
		d.NewDraftEnabled = new.Draft.IsEnabled()
		d.NewDraftCadence = new.Draft.Cadence
	}

	if !maps.EqualFunc(old.Gate.Verbs, new.Gate.Verbs, slices.Equal[[]string]) {
		d.GateChanged = true
		d.NewVerbs = new.Gate.Verbs
	}

	if !slices.Equal(old.Glossary.Terms, new.Glossary.Terms) {
		d.GlossaryChanged = true
		d.NewTerms = new.Glossary.Terms
	}

	d.RestartRequired = restartSections(old, new)
	return d
}

// restartSections compares the sections that are fixed for the lifetime of
// a run.
func restartSections(old, new *Config) []string {
	var out []string
	if old.Server.ListenAddr != new.Server.ListenAddr {
		out = append(out, "server")
	}
	if old.Session != new.Session {
		out = append(out, "session")
	}
	if old.Input != new.Input {
		out = append(out, "input")
	}
	if !providersEqual(old.Providers, new.Providers) {
		out = append(out, "providers")
	}
	if !vadEqual(old.VAD, new.VAD) {
		out = append(out, "vad")
	}
	if old.Pipeline != new.Pipeline {
		out = append(out, "pipeline")
	}
	if old.Shutdown != new.Shutdown {
		out = append(out, "shutdown")
	}
	og, ng := old.Glossary, new.Glossary
	if og.Boost != ng.Boost || og.PhoneticThreshold != ng.PhoneticThreshold || og.FuzzyThreshold != ng.FuzzyThreshold {
		out = append(out, "glossary")
	}
	if old.Resilience != new.Resilience {
		out = append(out, "resilience")
	}
	if !slices.EqualFunc(old.Sinks, new.Sinks, sinkEqual) {
		out = append(out, "sinks")
	}
	return out
}

func providersEqual(a, b ProvidersConfig) bool {
	return entryEqual(a.STT, b.STT) &&
		entryEqual(a.LLM, b.LLM) &&
		entryEqual(a.DraftLLM, b.DraftLLM) &&
		entryEqual(a.VAD, b.VAD) &&
		slices.EqualFunc(a.STTFallbacks, b.STTFallbacks, entryEqual) &&
		slices.EqualFunc(a.LLMFallbacks, b.LLMFallbacks, entryEqual)
}

func entryEqual(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL && a.Model == b.Model &&
		reflect.DeepEqual(a.Options, b.Options)
}

// vadEqual ignores ForceEnvironment, which is hot-reloadable.
func vadEqual(a, b VADConfig) bool {
	return a.Mode == b.Mode &&
		maps.Equal(a.Presets, b.Presets) &&
		a.MinSpeech == b.MinSpeech && a.MinSilence == b.MinSilence &&
		a.MaxSegment == b.MaxSegment && a.SpeechPad == b.SpeechPad &&
		a.ThresholdMin == b.ThresholdMin && a.ThresholdMax == b.ThresholdMax &&
		slices.Equal(a.Boundaries, b.Boundaries) &&
		slices.Equal(a.ZoneThresholds, b.ZoneThresholds) &&
		a.NoiseHistory == b.NoiseHistory && a.Percentile == b.Percentile &&
		a.AlphaNormal == b.AlphaNormal && a.AlphaFast == b.AlphaFast &&
		a.BetaNormal == b.BetaNormal && a.BetaFast == b.BetaFast &&
		a.TransitionDeltaDB == b.TransitionDeltaDB && a.TransitionSustain == b.TransitionSustain &&
		a.HysteresisDB == b.HysteresisDB && a.PreFilterRatio == b.PreFilterRatio
}

func sinkEqual(a, b SinkConfig) bool {
	return a.Kind == b.Kind && a.Path == b.Path && a.Statuses == b.Statuses && a.Buffer == b.Buffer &&
		a.Addr == b.Addr && a.Username == b.Username && a.Password == b.Password && a.DB == b.DB &&
		a.Prefix == b.Prefix && a.HistoryLimit == b.HistoryLimit && a.StatusTTL == b.StatusTTL &&
		a.DSN == b.DSN && slices.Equal(a.OriginPatterns, b.OriginPatterns)
}
