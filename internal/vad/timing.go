package vad

import (
	"fmt"
	"time"

	"github.com/MrWong99/voxbridge/pkg/types"
)

// Timing holds the segmentation durations in effect for one environment.
type Timing struct {
	MinSpeech  time.Duration
	MinSilence time.Duration
	MaxSegment time.Duration
	SpeechPad  time.Duration
}

// Validate checks that the durations are usable together.
func (t Timing) Validate() error {
	switch {
	case t.MinSpeech <= 0:
		return fmt.Errorf("min speech must be positive, got %v", t.MinSpeech)
	case t.MinSilence <= 0:
		return fmt.Errorf("min silence must be positive, got %v", t.MinSilence)
	case t.MaxSegment <= t.MinSpeech:
		return fmt.Errorf("max segment %v must exceed min speech %v", t.MaxSegment, t.MinSpeech)
	case t.SpeechPad < 0 || t.SpeechPad >= t.MaxSegment:
		return fmt.Errorf("speech pad %v out of range", t.SpeechPad)
	}
	return nil
}

// SegmentMode is a named pacing profile.
type SegmentMode string

const (
	ModeSentence  SegmentMode = "sentence"
	ModeStandard  SegmentMode = "standard"
	ModeInterview SegmentMode = "interview"
)

// IsValid reports whether m names a known profile.
func (m SegmentMode) IsValid() bool {
	_, ok := modeProfiles[m]
	return ok
}

// Preset is a named environment timing preset.
type Preset string

const (
	PresetQuiet  Preset = "quiet"
	PresetOffice Preset = "office"
	PresetNoisy  Preset = "noisy"
)

// IsValid reports whether p names a known preset.
func (p Preset) IsValid() bool {
	_, ok := environmentPresets[p]
	return ok
}

type modeProfile struct {
	minSilence time.Duration
	maxSegment time.Duration
	minSpeech  time.Duration
}

type presetProfile struct {
	minSpeech time.Duration
	speechPad time.Duration
}

var modeProfiles = map[SegmentMode]modeProfile{
	ModeSentence:  {minSilence: 300 * time.Millisecond, maxSegment: 12 * time.Second, minSpeech: 250 * time.Millisecond},
	ModeStandard:  {minSilence: 500 * time.Millisecond, maxSegment: 15 * time.Second, minSpeech: 250 * time.Millisecond},
	ModeInterview: {minSilence: 800 * time.Millisecond, maxSegment: 20 * time.Second, minSpeech: 300 * time.Millisecond},
}

var environmentPresets = map[Preset]presetProfile{
	PresetQuiet:  {minSpeech: 250 * time.Millisecond, speechPad: 300 * time.Millisecond},
	PresetOffice: {minSpeech: 350 * time.Millisecond, speechPad: 250 * time.Millisecond},
	PresetNoisy:  {minSpeech: 500 * time.Millisecond, speechPad: 200 * time.Millisecond},
}

// DefaultPresets maps each stable environment to its timing preset.
func DefaultPresets() map[types.Environment]Preset {
	return map[types.Environment]Preset{
		types.EnvQuiet:     PresetQuiet,
		types.EnvModerate:  PresetOffice,
		types.EnvNoisy:     PresetNoisy,
		types.EnvVeryNoisy: PresetNoisy,
	}
}

// TimingOverrides replace resolved values when non-zero.
type TimingOverrides struct {
	MinSpeech  time.Duration
	MinSilence time.Duration
	MaxSegment time.Duration
	SpeechPad  time.Duration
}

// TimingTable holds one Timing per stable environment.
type TimingTable map[types.Environment]Timing

// ResolveTiming combines a mode profile with per-environment presets into a
// table. MinSpeech is the larger of the mode and preset values; the pad comes
// from the preset; non-zero overrides win. A nil presets map uses
// [DefaultPresets].
func ResolveTiming(mode SegmentMode, presets map[types.Environment]Preset, ov TimingOverrides) (TimingTable, error) {
	mp, ok := modeProfiles[mode]
	if !ok {
		return nil, fmt.Errorf("vad: unknown segment mode %q", mode)
	}
	if presets == nil {
		presets = DefaultPresets()
	}
	table := make(TimingTable, len(stableZones))
	for _, env := range stableZones {
		name, ok := presets[env]
		if !ok {
			name = DefaultPresets()[env]
		}
		pp, ok := environmentPresets[name]
		if !ok {
			return nil, fmt.Errorf("vad: unknown timing preset %q for %s", name, env)
		}
		t := Timing{
			MinSpeech:  max(mp.minSpeech, pp.minSpeech),
			MinSilence: mp.minSilence,
			MaxSegment: mp.maxSegment,
			SpeechPad:  pp.speechPad,
		}
		if ov.MinSpeech > 0 {
			t.MinSpeech = ov.MinSpeech
		}
		if ov.MinSilence > 0 {
			t.MinSilence = ov.MinSilence
		}
		if ov.MaxSegment > 0 {
			t.MaxSegment = ov.MaxSegment
		}
		if ov.SpeechPad > 0 {
			t.SpeechPad = ov.SpeechPad
		}
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("vad: timing for %s: %w", env, err)
		}
		table[env] = t
	}
	return table, nil
}

// For returns the timing of env. TRANSITIONING and unknown states must be
// resolved to the committed environment by the caller; they fall back to the
// QUIET entry.
func (t TimingTable) For(env types.Environment) Timing {
	if tm, ok := t[env]; ok {
		return tm
	}
	return t[types.EnvQuiet]
}
