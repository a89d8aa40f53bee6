package vad

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/MrWong99/voxbridge/pkg/types"
)

func newClassifier(t *testing.T) *EnvironmentClassifier {
	t.Helper()
	c, err := NewEnvironmentClassifier(DefaultEnvironmentConfig())
	if err != nil {
		t.Fatalf("NewEnvironmentClassifier: %v", err)
	}
	return c
}

// feed sends floor values every 20 ms from start until end and returns the
// next timestamp.
func feed(c *EnvironmentClassifier, start, end time.Duration, floor func(time.Duration) float64, onChange func(time.Duration)) time.Duration {
	at := start
	for ; at < end; at += frameDur {
		if c.Update(floor(at), at) && onChange != nil {
			onChange(at)
		}
	}
	return at
}

func constant(db float64) func(time.Duration) float64 {
	return func(time.Duration) float64 { return db }
}

func TestEnvironment_FirstUpdateCommitsDirectly(t *testing.T) {
	t.Parallel()

	tests := []struct {
		floor float64
		want  types.Environment
	}{
		{-65, types.EnvQuiet},
		{-50, types.EnvModerate},
		{-41, types.EnvModerate},
		{-35, types.EnvNoisy},
		{-12, types.EnvVeryNoisy},
	}
	for _, tt := range tests {
		c := newClassifier(t)
		if !c.Update(tt.floor, 0) {
			t.Errorf("floor %v: first update should report a change", tt.floor)
		}
		if st := c.State(); st.Current != tt.want || st.Committed != tt.want {
			t.Errorf("floor %v: got %s/%s, want %s", tt.floor, st.Current, st.Committed, tt.want)
		}
		if c.Transitions() != 0 {
			t.Errorf("initial commit counted as a transition")
		}
	}
}

func TestEnvironment_ShiftTransitionsAndCommits(t *testing.T) {
	t.Parallel()

	c := newClassifier(t)
	shift := feed(c, 0, time.Second, constant(-60), nil)

	var transitioningAt, committedAt time.Duration
	feed(c, shift, shift+3*time.Second, constant(-45), func(at time.Duration) {
		switch c.State().Current {
		case types.EnvTransitioning:
			transitioningAt = at
			if c.Mode() != types.ModeFast {
				t.Errorf("mode while transitioning = %s, want fast", c.Mode())
			}
		default:
			committedAt = at
		}
	})

	if transitioningAt == 0 {
		t.Fatal("never entered TRANSITIONING")
	}
	if d := transitioningAt - shift; d > 1500*time.Millisecond {
		t.Errorf("entered TRANSITIONING %v after the shift, want within 1.5s", d)
	}
	if committedAt == 0 {
		t.Fatal("never committed after the shift")
	}
	// The floor is already stable when the transition starts.
	if d := committedAt - transitioningAt; d > time.Second+frameDur {
		t.Errorf("committed %v after stabilisation, want within 1s", d)
	}
	st := c.State()
	if st.Current != types.EnvModerate || st.Mode != types.ModeNormal {
		t.Errorf("final state %s/%s, want MODERATE/normal", st.Current, st.Mode)
	}
	if c.Transitions() != 1 {
		t.Errorf("transitions = %d, want 1", c.Transitions())
	}
}

func TestEnvironment_OscillationAroundBoundaryNeverTransitions(t *testing.T) {
	t.Parallel()

	c := newClassifier(t)
	changes := 0
	feed(c, 0, 10*time.Second, func(at time.Duration) float64 {
		return -40 + 2*math.Sin(2*math.Pi*at.Seconds()/0.7)
	}, func(at time.Duration) {
		if at > 0 {
			changes++
		}
	})
	if changes != 0 || c.Transitions() != 0 {
		t.Errorf("got %d state changes and %d transitions, want none", changes, c.Transitions())
	}
	if c.State().Current == types.EnvTransitioning {
		t.Error("classifier ended in TRANSITIONING")
	}
}

func TestEnvironment_ShortDeltaIsIgnored(t *testing.T) {
	t.Parallel()

	c := newClassifier(t)
	at := feed(c, 0, time.Second, constant(-60), nil)
	at = feed(c, at, at+time.Second, constant(-40), nil)
	feed(c, at, at+2*time.Second, constant(-60), nil)
	if st := c.State(); st.Current != types.EnvQuiet {
		t.Errorf("state = %s, want QUIET after a 1s excursion", st.Current)
	}
}

func TestEnvironment_Hysteresis(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		from float64
		to   float64
		want types.Environment
	}{
		{"louder, barely past boundary", -60, -39, types.EnvModerate},
		{"louder, clears boundary", -60, -36, types.EnvNoisy},
		{"quieter, barely past boundary", -20, -52, types.EnvModerate},
		{"quieter, clears boundary", -20, -55, types.EnvQuiet},
		{"louder into very noisy", -45, -25, types.EnvVeryNoisy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := newClassifier(t)
			at := feed(c, 0, time.Second, constant(tt.from), nil)
			feed(c, at, at+4*time.Second, constant(tt.to), nil)
			if st := c.State(); st.Current != tt.want {
				t.Errorf("committed %s, want %s", st.Current, tt.want)
			}
		})
	}
}

func TestEnvironment_UnstableFloorKeepsTransitioning(t *testing.T) {
	t.Parallel()

	c := newClassifier(t)
	at := feed(c, 0, time.Second, constant(-60), nil)
	// Settles 15 dB up but keeps swinging by 4 dB: variance 16 dB².
	feed(c, at, at+5*time.Second, func(t time.Duration) float64 {
		if (t/frameDur)%2 == 0 {
			return -41
		}
		return -49
	}, nil)
	st := c.State()
	if st.Current != types.EnvTransitioning {
		t.Fatalf("state = %s, want TRANSITIONING while unstable", st.Current)
	}
	if st.Committed != types.EnvQuiet {
		t.Errorf("committed = %s, want previous zone QUIET", st.Committed)
	}
}

func TestEnvironment_ForceAndReset(t *testing.T) {
	t.Parallel()

	c := newClassifier(t)
	c.Update(-60, 0)

	if err := c.Force(types.EnvTransitioning); err == nil {
		t.Error("forcing TRANSITIONING should fail")
	}
	if err := c.Force(types.EnvNoisy); err != nil {
		t.Fatal(err)
	}
	feed(c, 0, 5*time.Second, constant(-20), nil)
	st := c.State()
	if st.Current != types.EnvNoisy || !st.Forced || st.Confidence != 1 {
		t.Errorf("forced state = %+v", st)
	}

	c.Reset()
	c.Update(-20, 6*time.Second)
	st = c.State()
	if st.Forced || st.Current != types.EnvVeryNoisy || st.Mode != types.ModeNormal {
		t.Errorf("after reset state = %+v, want unforced VERY_NOISY in normal mode", st)
	}
}

func TestEnvironment_Confidence(t *testing.T) {
	t.Parallel()

	c := newClassifier(t)
	c.Update(-40, 0)
	if got := c.State().Confidence; got != 0.5 {
		t.Errorf("confidence on a boundary = %v, want 0.5", got)
	}
	c.Update(-45, frameDur)
	if got := c.State().Confidence; got != 1 {
		t.Errorf("confidence 5 dB from boundaries = %v, want 1", got)
	}
}

func TestEnvironmentConfig_Validate(t *testing.T) {
	t.Parallel()

	cfg := DefaultEnvironmentConfig()
	cfg.Boundaries = [3]float64{-30, -40, -50}
	if _, err := NewEnvironmentClassifier(cfg); !errors.Is(err, ErrAdaptationOutOfBounds) {
		t.Errorf("got %v, want ErrAdaptationOutOfBounds", err)
	}
	cfg = DefaultEnvironmentConfig()
	cfg.StableWindow = 0
	if _, err := NewEnvironmentClassifier(cfg); !errors.Is(err, ErrAdaptationOutOfBounds) {
		t.Errorf("got %v, want ErrAdaptationOutOfBounds", err)
	}
}
