package vad

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/MrWong99/voxbridge/pkg/audio"
	vadengine "github.com/MrWong99/voxbridge/pkg/provider/vad"
	"github.com/MrWong99/voxbridge/pkg/types"
)

// Config bundles the parameters of every adaptation component.
type Config struct {
	Noise       NoiseConfig
	PreFilter   PreFilterConfig
	Threshold   ThresholdConfig
	Environment EnvironmentConfig
	Timing      TimingTable
}

// DefaultConfig returns defaults with the standard segment mode.
func DefaultConfig() Config {
	table, _ := ResolveTiming(ModeStandard, nil, TimingOverrides{})
	return Config{
		Noise:       DefaultNoiseConfig(),
		PreFilter:   DefaultPreFilterConfig(),
		Threshold:   DefaultThresholdConfig(),
		Environment: DefaultEnvironmentConfig(),
		Timing:      table,
	}
}

// Validate checks every component configuration.
func (c Config) Validate() error {
	if err := c.Noise.Validate(); err != nil {
		return err
	}
	if err := c.Threshold.Validate(); err != nil {
		return err
	}
	if err := c.Environment.Validate(); err != nil {
		return err
	}
	for _, env := range stableZones {
		tm, ok := c.Timing[env]
		if !ok {
			return fmt.Errorf("vad: no timing for %s", env)
		}
		if err := tm.Validate(); err != nil {
			return fmt.Errorf("vad: timing for %s: %w", env, err)
		}
	}
	return nil
}

// Snapshot is the published view of the adaptation state.
type Snapshot struct {
	Environment      types.Environment
	Committed        types.Environment
	Confidence       float64
	NoiseFloorDB     float64
	Threshold        float64
	Mode             types.AdaptationMode
	Forced           bool
	LastTransition   time.Duration
	State            MachineState
	FramesProcessed  uint64
	FramesSkipped    uint64
	ClassifierErrors uint64
	SegmentsOpened   uint64
	SegmentsClosed   uint64
	ForcedCutoffs    uint64
	NoiseBursts      uint64
	Transitions      uint64
}

// DetectorOption configures a [Detector].
type DetectorOption func(*Detector)

// WithLogger sets the logger used for boundary and adaptation logs.
func WithLogger(l *slog.Logger) DetectorOption {
	return func(d *Detector) {
		if l != nil {
			d.log = l
		}
	}
}

// Detector runs the adaptation loop and segment state machine over a stream
// of frames. It is not safe for concurrent use except for Snapshot.
type Detector struct {
	cfg     Config
	session vadengine.SessionHandle
	log     *slog.Logger

	noise     *NoiseFloorEstimator
	prefilter *EnergyPreFilter
	threshold *AdaptiveThresholdController
	env       *EnvironmentClassifier
	seg       *SegmentStateMachine

	frames uint64
	errs   uint64
	opened uint64
	closed uint64
	snap   atomic.Pointer[Snapshot]
}

// NewDetector validates cfg and builds a detector scoring frames with session.
// Invalid adaptation bounds return an error wrapping ErrAdaptationOutOfBounds.
func NewDetector(cfg Config, session vadengine.SessionHandle, opts ...DetectorOption) (*Detector, error) {
	if session == nil {
		return nil, fmt.Errorf("vad: classifier session is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	noise, err := NewNoiseFloorEstimator(cfg.Noise)
	if err != nil {
		return nil, err
	}
	threshold, err := NewAdaptiveThresholdController(cfg.Threshold, cfg.Noise.InitialFloorDB)
	if err != nil {
		return nil, err
	}
	env, err := NewEnvironmentClassifier(cfg.Environment)
	if err != nil {
		return nil, err
	}
	d := &Detector{
		cfg:       cfg,
		session:   session,
		log:       slog.Default(),
		noise:     noise,
		prefilter: NewEnergyPreFilter(cfg.PreFilter),
		threshold: threshold,
		env:       env,
		seg:       NewSegmentStateMachine(),
	}
	for _, o := range opts {
		o(d)
	}
	d.publish()
	return d, nil
}

// Process runs one frame through the pre-filter, classifier, noise tracking,
// environment classification, threshold adaptation and segmentation, and
// returns the resulting boundary events.
func (d *Detector) Process(f audio.AudioFrame) []SegmentEvent {
	d.frames++
	rms := audio.RMS(f.Data)
	level := audio.DBFS(rms)
	mode := d.env.Mode()

	var prob float64
	classified := true
	if !d.prefilter.Skip(rms, d.noise.FloorDB()) {
		res, err := d.session.ProcessFrame(f.Data)
		if err != nil {
			d.errs++
			if d.errs == 1 || d.errs%1000 == 0 {
				d.log.Warn("vad: classifier failed, treating frame as non-speech", "err", err, "errors", d.errs)
			}
			classified = false
		} else {
			prob = res.Probability
		}
	}

	if classified && d.noise.Observe(level, prob, mode) {
		floor := d.noise.FloorDB()
		if d.env.Update(floor, f.Timestamp) {
			st := d.env.State()
			d.log.Info("vad: environment changed",
				"environment", st.Current, "committed", st.Committed,
				"noise_floor_db", floor, "at", f.Timestamp)
		}
		d.adaptThreshold(floor)
	}

	timing := d.cfg.Timing.For(d.env.State().Committed)
	thr := d.threshold.Value()
	evs := d.seg.Process(f, prob >= thr, timing, OpenContext{
		Threshold:   thr,
		Environment: d.env.State().Current,
		NoiseFloor:  d.noise.FloorDB(),
	})
	d.account(evs)
	d.publish()
	return evs
}

func (d *Detector) adaptThreshold(floor float64) {
	st := d.env.State()
	if st.Forced {
		if target, ok := d.threshold.ZoneTarget(st.Committed); ok {
			d.threshold.Step(target, st.Mode)
			return
		}
	}
	d.threshold.Update(floor, st.Mode)
}

func (d *Detector) account(evs []SegmentEvent) {
	for _, ev := range evs {
		switch ev.Type {
		case EventOpened:
			d.opened++
			d.log.Debug("vad: segment opened", "segment_id", ev.Segment.ID,
				"start", ev.Segment.Start, "continuation", ev.Segment.Continuation,
				"threshold", ev.Segment.Opened.Threshold)
		case EventClosed:
			d.closed++
			if ev.Reason == CloseMaxDuration {
				d.log.Warn("vad: forced segment cutoff at max duration",
					"segment_id", ev.Segment.ID, "duration", ev.Segment.Duration())
			} else {
				d.log.Debug("vad: segment closed", "segment_id", ev.Segment.ID,
					"reason", ev.Reason, "duration", ev.Segment.Duration())
			}
		case EventDiscarded:
			d.log.Debug("vad: noise burst discarded", "burst", ev.Burst)
		}
	}
}

// Current returns the open segment, or nil.
func (d *Detector) Current() *Segment { return d.seg.Current() }

// Finalize force-closes the open segment, if any.
func (d *Detector) Finalize() *SegmentEvent {
	ev := d.seg.Finalize()
	if ev != nil {
		d.account([]SegmentEvent{*ev})
		d.publish()
	}
	return ev
}

// ForceEnvironment pins the environment until ResetAdaptation and moves the
// threshold target to the forced zone.
func (d *Detector) ForceEnvironment(env types.Environment) error {
	if err := d.env.Force(env); err != nil {
		return err
	}
	if target, ok := d.threshold.ZoneTarget(env); ok {
		d.threshold.Step(target, types.ModeNormal)
	}
	d.log.Info("vad: environment forced", "environment", env)
	d.publish()
	return nil
}

// ResetAdaptation clears noise history, the forced environment and the
// threshold. An open segment is kept.
func (d *Detector) ResetAdaptation() {
	d.noise.Reset()
	d.env.Reset()
	d.threshold.Reset(d.cfg.Noise.InitialFloorDB)
	d.session.Reset()
	d.log.Info("vad: adaptation reset")
	d.publish()
}

// Snapshot returns the most recently published state. Safe for concurrent
// use.
func (d *Detector) Snapshot() Snapshot { return *d.snap.Load() }

func (d *Detector) publish() {
	st := d.env.State()
	d.snap.Store(&Snapshot{
		Environment:      st.Current,
		Committed:        st.Committed,
		Confidence:       st.Confidence,
		NoiseFloorDB:     d.noise.FloorDB(),
		Threshold:        d.threshold.Value(),
		Mode:             st.Mode,
		Forced:           st.Forced,
		LastTransition:   st.LastTransition,
		State:            d.seg.State(),
		FramesProcessed:  d.frames,
		FramesSkipped:    d.prefilter.Skipped(),
		ClassifierErrors: d.errs,
		SegmentsOpened:   d.opened,
		SegmentsClosed:   d.closed,
		ForcedCutoffs:    d.seg.ForcedCutoffs(),
		NoiseBursts:      d.seg.NoiseBursts(),
		Transitions:      d.env.Transitions(),
	})
}
