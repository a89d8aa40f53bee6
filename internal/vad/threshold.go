package vad

import (
	"math"

	"github.com/MrWong99/voxbridge/pkg/types"
)

// ThresholdConfig parameterises the [AdaptiveThresholdController].
type ThresholdConfig struct {
	Min float64
	Max float64

	// BetaNormal and BetaFast weight the previous threshold in each smoothing
	// step. Defaults 0.8 and 0.5.
	BetaNormal float64
	BetaFast   float64

	// Boundaries separate the four zones in dBFS, quietest first.
	Boundaries [3]float64

	// Values are the target thresholds of the four zones, quietest first.
	Values [4]float64

	// EdgeWidth is the half-width in dB of the interpolation band around each
	// boundary. Default 2.5.
	EdgeWidth float64
}

// DefaultThresholdConfig returns the default controller configuration.
func DefaultThresholdConfig() ThresholdConfig {
	return ThresholdConfig{
		Min:        0.3,
		Max:        0.8,
		BetaNormal: 0.8,
		BetaFast:   0.5,
		Boundaries: DefaultBoundaries,
		Values:     [4]float64{0.35, 0.50, 0.65, 0.75},
		EdgeWidth:  2.5,
	}
}

// Validate reports inconsistent parameters wrapped in ErrAdaptationOutOfBounds.
func (c ThresholdConfig) Validate() error {
	switch {
	case c.Min < 0 || c.Max > 1:
		return boundsErr("threshold bounds must lie in [0,1], got [%g,%g]", c.Min, c.Max)
	case c.Min >= c.Max:
		return boundsErr("threshold min %g must be below max %g", c.Min, c.Max)
	case c.BetaNormal < 0 || c.BetaNormal >= 1 || c.BetaFast < 0 || c.BetaFast >= 1:
		return boundsErr("threshold smoothing must be in [0,1), got %g/%g", c.BetaNormal, c.BetaFast)
	case c.EdgeWidth < 0:
		return boundsErr("edge width must not be negative, got %g", c.EdgeWidth)
	}
	if err := validateBoundaries(c.Boundaries); err != nil {
		return err
	}
	for i := 1; i < len(c.Boundaries); i++ {
		if 2*c.EdgeWidth >= c.Boundaries[i]-c.Boundaries[i-1] {
			return boundsErr("edge width %g overlaps between boundaries %g and %g",
				c.EdgeWidth, c.Boundaries[i-1], c.Boundaries[i])
		}
	}
	for _, v := range c.Values {
		if v < 0 || v > 1 {
			return boundsErr("zone threshold %g outside [0,1]", v)
		}
	}
	return nil
}

// AdaptiveThresholdController maps the noise floor to a speech threshold. The
// threshold moves one exponential step per update and never leaves [Min,Max].
type AdaptiveThresholdController struct {
	cfg   ThresholdConfig
	value float64
}

// NewAdaptiveThresholdController validates cfg and starts at the clamped
// target of initialFloorDB.
func NewAdaptiveThresholdController(cfg ThresholdConfig, initialFloorDB float64) (*AdaptiveThresholdController, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &AdaptiveThresholdController{cfg: cfg}
	c.Reset(initialFloorDB)
	return c, nil
}

// Target returns the unsmoothed threshold for a floor level. Inside the band
// around a boundary it interpolates linearly between the adjacent zones.
func (c *AdaptiveThresholdController) Target(floorDB float64) float64 {
	w := c.cfg.EdgeWidth
	for i, b := range c.cfg.Boundaries {
		if w > 0 && floorDB > b-w && floorDB < b+w {
			frac := (floorDB - (b - w)) / (2 * w)
			return c.cfg.Values[i] + frac*(c.cfg.Values[i+1]-c.cfg.Values[i])
		}
	}
	return c.cfg.Values[zoneOf(c.cfg.Boundaries, floorDB)]
}

// ZoneTarget returns the configured threshold of a stable environment.
func (c *AdaptiveThresholdController) ZoneTarget(env types.Environment) (float64, bool) {
	i := zoneIndex(env)
	if i < 0 {
		return 0, false
	}
	return c.cfg.Values[i], true
}

// Update takes one smoothing step towards the target of floorDB.
func (c *AdaptiveThresholdController) Update(floorDB float64, mode types.AdaptationMode) float64 {
	return c.Step(c.Target(floorDB), mode)
}

// Step takes one smoothing step towards an explicit target.
func (c *AdaptiveThresholdController) Step(target float64, mode types.AdaptationMode) float64 {
	beta := c.cfg.BetaNormal
	if mode == types.ModeFast {
		beta = c.cfg.BetaFast
	}
	if math.IsNaN(target) {
		return c.value
	}
	c.value = c.clamp(beta*c.value + (1-beta)*target)
	return c.value
}

// Value returns the current threshold.
func (c *AdaptiveThresholdController) Value() float64 { return c.value }

// Bounds returns the configured [min,max].
func (c *AdaptiveThresholdController) Bounds() (float64, float64) { return c.cfg.Min, c.cfg.Max }

// Reset jumps to the clamped target of floorDB.
func (c *AdaptiveThresholdController) Reset(floorDB float64) {
	c.value = c.clamp(c.Target(floorDB))
}

func (c *AdaptiveThresholdController) clamp(v float64) float64 {
	return math.Min(c.cfg.Max, math.Max(c.cfg.Min, v))
}
