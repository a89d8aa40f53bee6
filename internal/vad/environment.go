package vad

import (
	"fmt"
	"math"
	"time"

	"github.com/MrWong99/voxbridge/pkg/types"
)

// EnvironmentConfig parameterises the [EnvironmentClassifier].
type EnvironmentConfig struct {
	Boundaries [3]float64

	// MinDeltaDB is the floor change against the last stable floor that
	// starts a transition. Default 10.
	MinDeltaDB float64

	// Sustain is how long the delta must persist. Default 1.5s.
	Sustain time.Duration

	// HysteresisDB is how far a floor must clear a zone boundary for the new
	// zone to be committed. Default 3.
	HysteresisDB float64

	// StableVariance is the maximum floor variance in dB² over StableWindow
	// for a transition to settle. Defaults 1 dB² over 1s.
	StableVariance float64
	StableWindow   time.Duration
}

// DefaultEnvironmentConfig returns the default classifier configuration.
func DefaultEnvironmentConfig() EnvironmentConfig {
	return EnvironmentConfig{
		Boundaries:     DefaultBoundaries,
		MinDeltaDB:     10,
		Sustain:        1500 * time.Millisecond,
		HysteresisDB:   3,
		StableVariance: 1,
		StableWindow:   time.Second,
	}
}

// Validate reports inconsistent parameters wrapped in ErrAdaptationOutOfBounds.
func (c EnvironmentConfig) Validate() error {
	switch {
	case c.MinDeltaDB <= 0:
		return boundsErr("environment min delta must be positive, got %g", c.MinDeltaDB)
	case c.HysteresisDB < 0:
		return boundsErr("hysteresis must not be negative, got %g", c.HysteresisDB)
	case c.StableVariance <= 0:
		return boundsErr("stable variance must be positive, got %g", c.StableVariance)
	case c.Sustain < 0 || c.StableWindow <= 0:
		return boundsErr("environment sustain %v and window %v must be positive", c.Sustain, c.StableWindow)
	}
	return validateBoundaries(c.Boundaries)
}

// EnvironmentState is the classifier output.
type EnvironmentState struct {
	// Current is the reported state, TRANSITIONING while a change settles.
	Current types.Environment

	// Committed is the last stable zone. Timing and thresholds follow it
	// while Current is TRANSITIONING.
	Committed types.Environment

	Confidence     float64
	LastTransition time.Duration
	Mode           types.AdaptationMode
	Forced         bool
}

type floorSample struct {
	at time.Duration
	db float64
}

// EnvironmentClassifier tracks the acoustic environment from noise floor
// updates. A change is only believed once it is large, sustained and has
// settled, and the committed zone must clear its boundary by the hysteresis
// margin, so a floor oscillating around a boundary never flips the state.
type EnvironmentClassifier struct {
	cfg EnvironmentConfig

	primed      bool
	current     types.Environment
	committed   types.Environment
	referenceDB float64
	lastFloorDB float64
	lastChange  time.Duration

	deltaSince   time.Duration
	deltaActive  bool
	transitionAt time.Duration
	samples      []floorSample
	forced       bool
	transitions  uint64
}

// NewEnvironmentClassifier validates cfg and returns an unprimed classifier.
// The first update commits directly to the zone of the observed floor.
func NewEnvironmentClassifier(cfg EnvironmentConfig) (*EnvironmentClassifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &EnvironmentClassifier{cfg: cfg}
	c.Reset()
	return c, nil
}

// Update feeds one floor observation taken at capture offset at. It reports
// whether Current changed.
func (c *EnvironmentClassifier) Update(floorDB float64, at time.Duration) bool {
	c.lastFloorDB = floorDB
	if c.forced {
		return false
	}
	if !c.primed {
		c.primed = true
		c.commit(stableZones[zoneOf(c.cfg.Boundaries, floorDB)], floorDB, at)
		return true
	}

	if c.current == types.EnvTransitioning {
		return c.settle(floorDB, at)
	}

	if math.Abs(floorDB-c.referenceDB) < c.cfg.MinDeltaDB {
		c.deltaActive = false
		return false
	}
	if !c.deltaActive {
		c.deltaActive = true
		c.deltaSince = at
	}
	if at-c.deltaSince < c.cfg.Sustain {
		return false
	}
	c.current = types.EnvTransitioning
	c.transitionAt = at
	c.lastChange = at
	c.samples = append(c.samples[:0], floorSample{at: at, db: floorDB})
	c.deltaActive = false
	return true
}

// settle records a sample while transitioning and commits once the floor has
// been stable over the window.
func (c *EnvironmentClassifier) settle(floorDB float64, at time.Duration) bool {
	c.samples = append(c.samples, floorSample{at: at, db: floorDB})
	cut := 0
	for cut < len(c.samples) && c.samples[cut].at < at-c.cfg.StableWindow {
		cut++
	}
	c.samples = c.samples[cut:]

	if at-c.transitionAt < c.cfg.StableWindow || variance(c.samples) > c.cfg.StableVariance {
		return false
	}

	prev := c.committed
	next := c.hysteretic(floorDB, prev)
	c.commit(next, floorDB, at)
	if next != prev {
		c.transitions++
	}
	return true
}

// hysteretic picks the zone for floorDB coming from prev. Moving into a
// louder zone requires the floor to sit HysteresisDB above its lower
// boundary, and vice versa; otherwise the nearest zone on the near side of
// the boundary is kept.
func (c *EnvironmentClassifier) hysteretic(floorDB float64, prev types.Environment) types.Environment {
	p := zoneIndex(prev)
	raw := zoneOf(c.cfg.Boundaries, floorDB)
	switch {
	case raw > p:
		return stableZones[max(p, zoneOf(c.cfg.Boundaries, floorDB-c.cfg.HysteresisDB))]
	case raw < p:
		return stableZones[min(p, zoneOf(c.cfg.Boundaries, floorDB+c.cfg.HysteresisDB))]
	}
	return prev
}

func (c *EnvironmentClassifier) commit(env types.Environment, floorDB float64, at time.Duration) {
	c.current = env
	c.committed = env
	c.referenceDB = floorDB
	c.lastChange = at
	c.samples = c.samples[:0]
	c.deltaActive = false
}

// State returns the current classification.
func (c *EnvironmentClassifier) State() EnvironmentState {
	st := EnvironmentState{
		Current:        c.current,
		Committed:      c.committed,
		LastTransition: c.lastChange,
		Mode:           c.Mode(),
		Forced:         c.forced,
	}
	switch {
	case c.forced:
		st.Confidence = 1
	case c.current == types.EnvTransitioning:
		var elapsed time.Duration
		if n := len(c.samples); n > 0 {
			elapsed = c.samples[n-1].at - c.transitionAt
		}
		st.Confidence = math.Min(1, float64(elapsed)/float64(c.cfg.StableWindow))
	case c.primed:
		dist := math.Inf(1)
		for _, b := range c.cfg.Boundaries {
			dist = math.Min(dist, math.Abs(c.lastFloorDB-b))
		}
		st.Confidence = 0.5 + 0.5*math.Min(1, dist/5)
	}
	return st
}

// Mode reports fast adaptation while transitioning.
func (c *EnvironmentClassifier) Mode() types.AdaptationMode {
	if c.current == types.EnvTransitioning && !c.forced {
		return types.ModeFast
	}
	return types.ModeNormal
}

// Transitions returns the number of committed zone changes.
func (c *EnvironmentClassifier) Transitions() uint64 { return c.transitions }

// Force pins the state to env until Reset. Only stable zones can be forced.
func (c *EnvironmentClassifier) Force(env types.Environment) error {
	if !env.IsStable() {
		return fmt.Errorf("vad: cannot force environment %q", env)
	}
	c.forced = true
	c.current = env
	c.committed = env
	c.samples = c.samples[:0]
	c.deltaActive = false
	return nil
}

// Reset clears history and the forced state; the next update commits
// directly.
func (c *EnvironmentClassifier) Reset() {
	c.primed = false
	c.forced = false
	c.current = types.EnvQuiet
	c.committed = types.EnvQuiet
	c.samples = c.samples[:0]
	c.deltaActive = false
	c.lastChange = 0
}

func variance(samples []floorSample) float64 {
	if len(samples) < 2 {
		return 0
	}
	var mean float64
	for _, s := range samples {
		mean += s.db
	}
	mean /= float64(len(samples))
	var v float64
	for _, s := range samples {
		d := s.db - mean
		v += d * d
	}
	return v / float64(len(samples))
}
