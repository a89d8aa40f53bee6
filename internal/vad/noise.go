package vad

import (
	"math"
	"slices"

	"github.com/MrWong99/voxbridge/pkg/types"
)

// NoiseConfig parameterises the [NoiseFloorEstimator].
type NoiseConfig struct {
	// HistorySize is the number of non-speech levels kept. Default 100.
	HistorySize int

	// Percentile of the history used as the instantaneous floor. Default 0.10.
	Percentile float64

	// SilenceBound is the speech probability below which a frame counts as
	// background. Default 0.1.
	SilenceBound float64

	// InitialFloorDB is the floor before any observation. Default -60.
	InitialFloorDB float64

	// AlphaNormal and AlphaFast are the floor smoothing factors in normal and
	// fast adaptation. Defaults 0.95 and 0.8.
	AlphaNormal float64
	AlphaFast   float64
}

// DefaultNoiseConfig returns the default estimator configuration.
func DefaultNoiseConfig() NoiseConfig {
	return NoiseConfig{
		HistorySize:    100,
		Percentile:     0.10,
		SilenceBound:   0.1,
		InitialFloorDB: -60,
		AlphaNormal:    0.95,
		AlphaFast:      0.8,
	}
}

// Validate reports inconsistent parameters wrapped in ErrAdaptationOutOfBounds.
func (c NoiseConfig) Validate() error {
	switch {
	case c.HistorySize <= 0:
		return boundsErr("noise history size must be positive, got %d", c.HistorySize)
	case c.Percentile <= 0 || c.Percentile >= 1:
		return boundsErr("noise percentile must be in (0,1), got %g", c.Percentile)
	case c.SilenceBound <= 0 || c.SilenceBound > 1:
		return boundsErr("silence bound must be in (0,1], got %g", c.SilenceBound)
	case c.AlphaNormal < 0 || c.AlphaNormal >= 1 || c.AlphaFast < 0 || c.AlphaFast >= 1:
		return boundsErr("noise smoothing must be in [0,1), got %g/%g", c.AlphaNormal, c.AlphaFast)
	}
	return nil
}

// NoiseFloorEstimator tracks the background level from frames the classifier
// considers non-speech. It keeps a bounded ring of recent levels, takes a low
// percentile of it and smooths that into the floor.
//
// Levels are handled in dBFS; since dBFS is monotonic in RMS the percentile is
// the same either way.
type NoiseFloorEstimator struct {
	cfg NoiseConfig

	history []float64
	next    int
	full    bool
	scratch []float64

	percentileDB float64
	floorDB      float64
}

// NewNoiseFloorEstimator validates cfg and returns an estimator at the
// initial floor.
func NewNoiseFloorEstimator(cfg NoiseConfig) (*NoiseFloorEstimator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n := &NoiseFloorEstimator{
		cfg:     cfg,
		history: make([]float64, cfg.HistorySize),
		scratch: make([]float64, 0, cfg.HistorySize),
	}
	n.Reset()
	return n, nil
}

// Observe offers one frame level. Frames with probability at or above the
// silence bound are ignored. It reports whether the floor was updated.
func (n *NoiseFloorEstimator) Observe(levelDB, probability float64, mode types.AdaptationMode) bool {
	if probability >= n.cfg.SilenceBound || math.IsNaN(levelDB) {
		return false
	}
	n.history[n.next] = levelDB
	n.next = (n.next + 1) % len(n.history)
	if n.next == 0 {
		n.full = true
	}

	n.percentileDB = n.percentile()
	alpha := n.cfg.AlphaNormal
	if mode == types.ModeFast {
		alpha = n.cfg.AlphaFast
	}
	n.floorDB = alpha*n.floorDB + (1-alpha)*n.percentileDB
	return true
}

// percentile returns the nearest-rank percentile of the filled history.
func (n *NoiseFloorEstimator) percentile() float64 {
	count := n.next
	if n.full {
		count = len(n.history)
	}
	n.scratch = append(n.scratch[:0], n.history[:count]...)
	slices.Sort(n.scratch)
	idx := int(math.Ceil(n.cfg.Percentile*float64(count))) - 1
	idx = max(0, min(idx, count-1))
	return n.scratch[idx]
}

// FloorDB returns the smoothed floor in dBFS.
func (n *NoiseFloorEstimator) FloorDB() float64 { return n.floorDB }

// PercentileDB returns the most recent raw percentile in dBFS.
func (n *NoiseFloorEstimator) PercentileDB() float64 { return n.percentileDB }

// Samples returns the number of levels currently held.
func (n *NoiseFloorEstimator) Samples() int {
	if n.full {
		return len(n.history)
	}
	return n.next
}

// Reset clears the history and restores the initial floor.
func (n *NoiseFloorEstimator) Reset() {
	n.next = 0
	n.full = false
	n.floorDB = n.cfg.InitialFloorDB
	n.percentileDB = n.cfg.InitialFloorDB
}
