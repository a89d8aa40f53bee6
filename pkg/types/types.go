// Package types defines the data shared between the segmentation core, the
// pipeline and the output sinks.
//
// Every value here is safe to copy and is never mutated after it has been
// handed to a sink.
package types

import (
	"encoding/json"
	"time"
)

// Environment is the acoustic environment as classified from the noise floor.
type Environment string

const (
	EnvQuiet         Environment = "QUIET"
	EnvModerate      Environment = "MODERATE"
	EnvNoisy         Environment = "NOISY"
	EnvVeryNoisy     Environment = "VERY_NOISY"
	EnvTransitioning Environment = "TRANSITIONING"
)

// IsValid reports whether e is one of the known environment states.
func (e Environment) IsValid() bool {
	switch e {
	case EnvQuiet, EnvModerate, EnvNoisy, EnvVeryNoisy, EnvTransitioning:
		return true
	}
	return false
}

// IsStable reports whether e is a committed zone rather than TRANSITIONING.
func (e Environment) IsStable() bool {
	return e.IsValid() && e != EnvTransitioning
}

// AdaptationMode selects the smoothing rates of the noise floor and threshold.
type AdaptationMode string

const (
	ModeNormal AdaptationMode = "normal"
	ModeFast   AdaptationMode = "fast"
)

// EventKind distinguishes interim results from the authoritative one.
type EventKind string

const (
	KindDraft EventKind = "DRAFT"
	KindFinal EventKind = "FINAL"
)

// TranscriptEvent is one recognition (and optionally translation) result for
// a speech segment. At most one FINAL is produced per SegmentID and all DRAFTs
// of that segment precede it.
type TranscriptEvent struct {
	Kind      EventKind `json:"kind"`
	SessionID string    `json:"session_id,omitempty"`
	SegmentID uint64    `json:"segment_id"`
	Seq       uint64    `json:"seq"`

	// SegmentStart and SegmentEnd are capture offsets of the audio the event
	// was recognised from.
	SegmentStart time.Duration `json:"segment_start"`
	SegmentEnd   time.Duration `json:"segment_end"`

	SourceText            string  `json:"source_text"`
	RecognitionConfidence float64 `json:"recognition_confidence"`
	SourceLang            string  `json:"source_lang"`

	TranslatedText        string  `json:"translated_text,omitempty"`
	TranslationConfidence float64 `json:"translation_confidence,omitempty"`
	TargetLang            string  `json:"target_lang,omitempty"`

	// TranslationWithheld is set on drafts the semantic gate judged
	// incomplete; TranslatedText is empty for those.
	TranslationWithheld bool `json:"translation_withheld"`

	// Corrections lists glossary substitutions applied to SourceText.
	Corrections []string `json:"corrections,omitempty"`

	EmittedAt time.Time `json:"emitted_at"`
}

// Counters are the monotonically increasing pipeline counters.
type Counters struct {
	FramesProcessed  uint64 `json:"frames_processed"`
	FramesSkipped    uint64 `json:"frames_skipped"`
	SegmentsOpened   uint64 `json:"segments_opened"`
	SegmentsClosed   uint64 `json:"segments_closed"`
	ForcedCutoffs    uint64 `json:"forced_cutoffs"`
	NoiseBursts      uint64 `json:"noise_bursts"`
	Transitions      uint64 `json:"transitions"`
	CaptureOverflows uint64 `json:"capture_overflows"`
	TasksDropped     uint64 `json:"tasks_dropped"`
	DraftsSuperseded uint64 `json:"drafts_superseded"`
	EngineFailures   uint64 `json:"engine_failures"`
	InputUnderruns   uint64 `json:"input_underruns"`
	AbandonedCalls   uint64 `json:"abandoned_calls"`
	EventsEmitted    uint64 `json:"events_emitted"`
}

// Status is a snapshot of the adaptation state and pipeline counters.
type Status struct {
	SessionID    string         `json:"session_id,omitempty"`
	Time         time.Time      `json:"time"`
	Running      bool           `json:"running"`
	Environment  Environment    `json:"environment"`
	Committed    Environment    `json:"committed_environment"`
	Confidence   float64        `json:"confidence"`
	NoiseFloorDB float64        `json:"noise_floor_db"`
	Threshold    float64        `json:"threshold"`
	Mode         AdaptationMode `json:"mode"`
	Forced       bool           `json:"forced"`
	Counters     Counters       `json:"counters"`
}

// Envelope wraps an event or status for transports that multiplex both.
type Envelope struct {
	Type   string           `json:"type"`
	Event  *TranscriptEvent `json:"event,omitempty"`
	Status *Status          `json:"status,omitempty"`
}

// EventEnvelope returns the JSON encoding of ev wrapped in an [Envelope].
func EventEnvelope(ev TranscriptEvent) ([]byte, error) {
	return json.Marshal(Envelope{Type: "transcript", Event: &ev})
}

// StatusEnvelope returns the JSON encoding of st wrapped in an [Envelope].
func StatusEnvelope(st Status) ([]byte, error) {
	return json.Marshal(Envelope{Type: "status", Status: &st})
}
