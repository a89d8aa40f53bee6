package sink

import (
	"context"
	"log/slog"

	"github.com/MrWong99/voxbridge/pkg/types"
)

// Log writes events to a structured logger. FINAL events log at Info, drafts
// and status snapshots at Debug.
type Log struct {
	log *slog.Logger
}

var _ Sink = (*Log)(nil)

// NewLog returns a Log sink. A nil logger uses [slog.Default].
func NewLog(l *slog.Logger) *Log {
	if l == nil {
		l = slog.Default()
	}
	return &Log{log: l}
}

// Emit logs ev.
func (s *Log) Emit(ev types.TranscriptEvent) {
	level := slog.LevelDebug
	if ev.Kind == types.KindFinal {
		level = slog.LevelInfo
	}
	attrs := []any{
		"kind", ev.Kind,
		"segment_id", ev.SegmentID,
		"seq", ev.Seq,
		"start", ev.SegmentStart,
		"end", ev.SegmentEnd,
		"text", ev.SourceText,
	}
	switch {
	case ev.TranslationWithheld:
		attrs = append(attrs, "translation", "withheld")
	case ev.TranslatedText != "":
		attrs = append(attrs, "translation", ev.TranslatedText, "target_lang", ev.TargetLang)
	}
	if len(ev.Corrections) > 0 {
		attrs = append(attrs, "corrections", ev.Corrections)
	}
	s.log.Log(context.Background(), level, "transcript", attrs...)
}

// EmitStatus logs st at debug level.
func (s *Log) EmitStatus(st types.Status) {
	s.log.Debug("status",
		"environment", st.Environment,
		"noise_floor_db", st.NoiseFloorDB,
		"threshold", st.Threshold,
		"mode", st.Mode,
		"forced", st.Forced,
		"segments", st.Counters.SegmentsClosed,
		"events", st.Counters.EventsEmitted,
	)
}

// Close is a no-op.
func (s *Log) Close() error { return nil }
