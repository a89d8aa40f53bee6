package vad

import "github.com/MrWong99/voxbridge/pkg/audio"

// PreFilterConfig parameterises the [EnergyPreFilter].
type PreFilterConfig struct {
	Enabled bool

	// Ratio is the linear RMS multiple of the floor below which frames are
	// skipped. 2.0 is about 6 dB.
	Ratio float64
}

// DefaultPreFilterConfig returns an enabled filter with ratio 2.0.
func DefaultPreFilterConfig() PreFilterConfig {
	return PreFilterConfig{Enabled: true, Ratio: 2.0}
}

// EnergyPreFilter skips classification of frames clearly below the floor.
type EnergyPreFilter struct {
	cfg     PreFilterConfig
	skipped uint64
}

// NewEnergyPreFilter returns a filter for cfg. A non-positive ratio disables
// the filter.
func NewEnergyPreFilter(cfg PreFilterConfig) *EnergyPreFilter {
	if cfg.Ratio <= 0 {
		cfg.Enabled = false
	}
	return &EnergyPreFilter{cfg: cfg}
}

// Skip reports whether a frame with normalised RMS rms should bypass the
// classifier given the current floor, and counts it if so.
func (f *EnergyPreFilter) Skip(rms, floorDB float64) bool {
	if !f.cfg.Enabled {
		return false
	}
	if rms < audio.FromDBFS(floorDB)*f.cfg.Ratio {
		f.skipped++
		return true
	}
	return false
}

// Skipped returns the number of frames skipped so far.
func (f *EnergyPreFilter) Skipped() uint64 { return f.skipped }
