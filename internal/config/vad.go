package config

import (
	"fmt"

	"github.com/MrWong99/voxbridge/internal/vad"
	"github.com/MrWong99/voxbridge/pkg/types"
)

// Build resolves v into a validated [vad.Config], starting from
// [vad.DefaultConfig] and applying every non-zero field.
func (v VADConfig) Build() (vad.Config, error) {
	cfg := vad.DefaultConfig()

	var presets map[types.Environment]vad.Preset
	if len(v.Presets) > 0 {
		presets = vad.DefaultPresets()
		for name, preset := range v.Presets {
			env := name.Environment()
			if env == "" {
				return vad.Config{}, fmt.Errorf("presets: unknown environment %q", name)
			}
			p := vad.Preset(preset)
			if !p.IsValid() {
				return vad.Config{}, fmt.Errorf("presets: unknown preset %q for %s; valid values: quiet, office, noisy", preset, name)
			}
			presets[env] = p
		}
	}
	table, err := vad.ResolveTiming(vad.SegmentMode(v.Mode), presets, vad.TimingOverrides{
		MinSpeech:  v.MinSpeech,
		MinSilence: v.MinSilence,
		MaxSegment: v.MaxSegment,
		SpeechPad:  v.SpeechPad,
	})
	if err != nil {
		return vad.Config{}, err
	}
	cfg.Timing = table

	if v.ThresholdMin != 0 {
		cfg.Threshold.Min = v.ThresholdMin
	}
	if v.ThresholdMax != 0 {
		cfg.Threshold.Max = v.ThresholdMax
	}
	if len(v.Boundaries) > 0 {
		if len(v.Boundaries) != 3 {
			return vad.Config{}, fmt.Errorf("%w: boundaries needs 3 values, got %d", vad.ErrAdaptationOutOfBounds, len(v.Boundaries))
		}
		b := [3]float64(v.Boundaries)
		cfg.Threshold.Boundaries = b
		cfg.Environment.Boundaries = b
	}
	if len(v.ZoneThresholds) > 0 {
		if len(v.ZoneThresholds) != 4 {
			return vad.Config{}, fmt.Errorf("%w: zone_thresholds needs 4 values, got %d", vad.ErrAdaptationOutOfBounds, len(v.ZoneThresholds))
		}
		cfg.Threshold.Values = [4]float64(v.ZoneThresholds)
	}

	if v.NoiseHistory != 0 {
		cfg.Noise.HistorySize = v.NoiseHistory
	}
	if v.Percentile != 0 {
		cfg.Noise.Percentile = v.Percentile
	}
	if v.AlphaNormal != 0 {
		cfg.Noise.AlphaNormal = v.AlphaNormal
	}
	if v.AlphaFast != 0 {
		cfg.Noise.AlphaFast = v.AlphaFast
	}
	if v.BetaNormal != 0 {
		cfg.Threshold.BetaNormal = v.BetaNormal
	}
	if v.BetaFast != 0 {
		cfg.Threshold.BetaFast = v.BetaFast
	}
	if v.TransitionDeltaDB != 0 {
		cfg.Environment.MinDeltaDB = v.TransitionDeltaDB
	}
	if v.TransitionSustain != 0 {
		cfg.Environment.Sustain = v.TransitionSustain
	}
	if v.HysteresisDB != 0 {
		cfg.Environment.HysteresisDB = v.HysteresisDB
	}
	switch {
	case v.PreFilterRatio < 0:
		cfg.PreFilter.Enabled = false
	case v.PreFilterRatio > 0:
		cfg.PreFilter.Ratio = v.PreFilterRatio
	}

	if err := cfg.Validate(); err != nil {
		return vad.Config{}, err
	}
	return cfg, nil
}
