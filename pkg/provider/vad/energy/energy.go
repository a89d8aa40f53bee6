// Package energy provides a pure-Go speech classifier that scores frames by
// their energy above a running minimum-statistics noise floor.
//
// It needs no model files and works at any sample rate, which makes it the
// default engine and a reasonable fallback when no neural classifier is
// configured. It is not robust against loud non-speech sounds; the adaptive
// threshold in the segmentation core compensates for part of that.
package energy

import (
	"fmt"
	"math"

	"github.com/MrWong99/voxbridge/pkg/audio"
	"github.com/MrWong99/voxbridge/pkg/provider/vad"
)

const (
	defaultMidpointDB = 9.0
	defaultSlopeDB    = 2.5
	defaultRiseDBPerS = 6.0
)

// Option configures an [Engine].
type Option func(*Engine)

// WithMidpoint sets the SNR in dB that maps to probability 0.5.
func WithMidpoint(db float64) Option {
	return func(e *Engine) { e.midpoint = db }
}

// WithSlope sets the logistic slope in dB. Smaller values give a harder
// speech/silence decision.
func WithSlope(db float64) Option {
	return func(e *Engine) {
		if db > 0 {
			e.slope = db
		}
	}
}

// WithFloorRise sets how fast the tracked floor may rise, in dB per second.
func WithFloorRise(dbPerSecond float64) Option {
	return func(e *Engine) {
		if dbPerSecond > 0 {
			e.rise = dbPerSecond
		}
	}
}

// Engine creates energy classification sessions.
type Engine struct {
	midpoint float64
	slope    float64
	rise     float64
}

var _ vad.Engine = (*Engine)(nil)

// New returns an energy Engine.
func New(opts ...Option) *Engine {
	e := &Engine{midpoint: defaultMidpointDB, slope: defaultSlopeDB, rise: defaultRiseDBPerS}
	for _, o := range opts {
		o(e)
	}
	return e
}

// NewSession validates cfg and returns a fresh session.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("energy: invalid sample rate %d", cfg.SampleRate)
	}
	if cfg.FrameSizeMs <= 0 {
		return nil, fmt.Errorf("energy: invalid frame size %dms", cfg.FrameSizeMs)
	}
	return &session{
		eng:        e,
		sampleRate: cfg.SampleRate,
	}, nil
}

type session struct {
	eng        *Engine
	sampleRate int

	floorDB float64
	primed  bool
	closed  bool
}

var _ vad.SessionHandle = (*session)(nil)

// ProcessFrame updates the floor with the frame level and returns the
// logistic speech probability of the frame's SNR.
func (s *session) ProcessFrame(frame []byte) (vad.Result, error) {
	if s.closed {
		return vad.Result{}, vad.ErrSessionClosed
	}
	if len(frame) < audio.BytesPerSample {
		return vad.Result{}, fmt.Errorf("energy: frame too short (%d bytes)", len(frame))
	}
	level := audio.DBFS(audio.RMS(frame))
	dur := audio.DurationOf(len(frame), s.sampleRate, 1)

	switch {
	case !s.primed:
		s.floorDB = level
		s.primed = true
	case level < s.floorDB:
		s.floorDB = level
	default:
		s.floorDB = math.Min(level, s.floorDB+s.eng.rise*dur.Seconds())
	}

	snr := level - s.floorDB
	p := 1 / (1 + math.Exp(-(snr-s.eng.midpoint)/s.eng.slope))
	return vad.Result{Probability: p}, nil
}

func (s *session) Reset() {
	s.primed = false
	s.floorDB = 0
}

func (s *session) Close() error {
	s.closed = true
	return nil
}

// FloorDB reports the tracked floor of a session created by this package.
// It returns false for other session types.
func FloorDB(h vad.SessionHandle) (float64, bool) {
	s, ok := h.(*session)
	if !ok || !s.primed {
		return 0, false
	}
	return s.floorDB, true
}
