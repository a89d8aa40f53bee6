// Package vad implements adaptive speech segmentation on top of a frame-level
// speech classifier.
//
// The [Detector] owns the whole adaptation loop: it tracks the background
// noise floor from non-speech frames, skips classification of frames clearly
// below that floor, derives a smoothed speech threshold from the floor,
// classifies the acoustic environment with hysteresis, and finally runs the
// segment state machine that turns per-frame speech probabilities into
// segment boundaries.
//
// All adaptation state is owned by the goroutine that calls
// [Detector.Process]. Other goroutines read the atomically published
// [Snapshot] via [Detector.Snapshot]; control operations (force, reset) must
// be delivered to the owning goroutine.
package vad

import (
	"errors"
	"fmt"

	"github.com/MrWong99/voxbridge/pkg/types"
)

// ErrAdaptationOutOfBounds is returned when threshold bounds, smoothing
// factors or zone boundaries are inconsistent.
var ErrAdaptationOutOfBounds = errors.New("vad: adaptation parameters out of bounds")

func boundsErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrAdaptationOutOfBounds, fmt.Sprintf(format, args...))
}

// Default zone boundaries in dBFS separating QUIET|MODERATE|NOISY|VERY_NOISY.
var DefaultBoundaries = [3]float64{-50, -40, -30}

// stableZones lists the committed environments from quietest to loudest.
var stableZones = [4]types.Environment{types.EnvQuiet, types.EnvModerate, types.EnvNoisy, types.EnvVeryNoisy}

// zoneIndex returns the rank of a stable environment, or -1.
func zoneIndex(env types.Environment) int {
	for i, z := range stableZones {
		if z == env {
			return i
		}
	}
	return -1
}

// zoneOf maps a floor level to its zone without hysteresis. A level exactly on
// a boundary belongs to the louder zone.
func zoneOf(boundaries [3]float64, floorDB float64) int {
	for i, b := range boundaries {
		if floorDB < b {
			return i
		}
	}
	return len(boundaries)
}

func validateBoundaries(b [3]float64) error {
	for i := 1; i < len(b); i++ {
		if b[i] <= b[i-1] {
			return boundsErr("zone boundaries must be strictly increasing, got %v", b)
		}
	}
	return nil
}
