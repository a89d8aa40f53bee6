package vad

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/MrWong99/voxbridge/pkg/types"
)

func TestThreshold_Target(t *testing.T) {
	t.Parallel()

	c, err := NewAdaptiveThresholdController(DefaultThresholdConfig(), -60)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		floor float64
		want  float64
	}{
		{-70, 0.35},
		{-52.5, 0.35},
		{-50, 0.425},
		{-45, 0.50},
		{-40, 0.575},
		{-35, 0.65},
		{-30, 0.70},
		{-27.5, 0.75},
		{-10, 0.75},
	}
	for _, tt := range tests {
		if got := c.Target(tt.floor); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Target(%v) = %v, want %v", tt.floor, got, tt.want)
		}
	}
}

func TestThreshold_InitialIsClampedTarget(t *testing.T) {
	t.Parallel()

	cfg := DefaultThresholdConfig()
	cfg.Min = 0.4
	c, err := NewAdaptiveThresholdController(cfg, -60)
	if err != nil {
		t.Fatal(err)
	}
	if c.Value() != 0.4 {
		t.Errorf("initial = %v, want 0.4 (0.35 clamped)", c.Value())
	}
}

func TestThreshold_SmoothingStep(t *testing.T) {
	t.Parallel()

	c, _ := NewAdaptiveThresholdController(DefaultThresholdConfig(), -60)
	got := c.Update(-20, types.ModeNormal)
	if want := 0.8*0.35 + 0.2*0.75; math.Abs(got-want) > 1e-9 {
		t.Errorf("normal step = %v, want %v", got, want)
	}
	c.Reset(-60)
	got = c.Update(-20, types.ModeFast)
	if want := 0.5*0.35 + 0.5*0.75; math.Abs(got-want) > 1e-9 {
		t.Errorf("fast step = %v, want %v", got, want)
	}
}

func TestThreshold_StaysWithinBounds(t *testing.T) {
	t.Parallel()

	cfg := DefaultThresholdConfig()
	cfg.Min, cfg.Max = 0.45, 0.6
	c, err := NewAdaptiveThresholdController(cfg, -60)
	if err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewPCG(1, 2))
	modes := []types.AdaptationMode{types.ModeNormal, types.ModeFast}
	floors := []float64{math.Inf(-1), math.Inf(1), math.NaN(), -200, 0, 30}
	for i := range 10000 {
		var floor float64
		if i%97 == 0 {
			floor = floors[rng.IntN(len(floors))]
		} else {
			floor = rng.Float64()*120 - 100
		}
		v := c.Update(floor, modes[rng.IntN(2)])
		if v < cfg.Min || v > cfg.Max || math.IsNaN(v) {
			t.Fatalf("step %d: floor %v gave threshold %v outside [%v,%v]", i, floor, v, cfg.Min, cfg.Max)
		}
	}
}

func TestThresholdConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*ThresholdConfig)
	}{
		{"min equals max", func(c *ThresholdConfig) { c.Min, c.Max = 0.5, 0.5 }},
		{"min above max", func(c *ThresholdConfig) { c.Min, c.Max = 0.7, 0.4 }},
		{"max above one", func(c *ThresholdConfig) { c.Max = 1.2 }},
		{"negative min", func(c *ThresholdConfig) { c.Min = -0.1 }},
		{"beta one", func(c *ThresholdConfig) { c.BetaNormal = 1 }},
		{"negative fast beta", func(c *ThresholdConfig) { c.BetaFast = -0.5 }},
		{"boundaries not increasing", func(c *ThresholdConfig) { c.Boundaries = [3]float64{-40, -50, -30} }},
		{"equal boundaries", func(c *ThresholdConfig) { c.Boundaries = [3]float64{-50, -50, -30} }},
		{"overlapping edge bands", func(c *ThresholdConfig) { c.EdgeWidth = 5 }},
		{"zone value above one", func(c *ThresholdConfig) { c.Values[3] = 1.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultThresholdConfig()
			tt.mutate(&cfg)
			if _, err := NewAdaptiveThresholdController(cfg, -60); !errors.Is(err, ErrAdaptationOutOfBounds) {
				t.Errorf("got %v, want ErrAdaptationOutOfBounds", err)
			}
		})
	}
}
