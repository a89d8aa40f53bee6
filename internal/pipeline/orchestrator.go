// Package pipeline wires capture, segmentation, recognition and translation
// into one streaming run.
//
// Frames flow from the capture source through a pump into the VAD stage,
// which is the single consumer of frames and the single producer of
// recognition tasks. A pool of recognition workers feeds a reorder buffer
// that releases results in task order to the translation stage, which hands
// finished events to the [sink.Sink]:
//
//	source -> reader -> pump -> VAD -> queue -> workers -> collector -> translator -> sink
//
// Every task carries a sequence number assigned when it is issued. Output is
// therefore in creation order: within a segment DRAFTs precede the FINAL, and
// across segments the segment id never decreases.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxbridge/internal/observe"
	"github.com/MrWong99/voxbridge/internal/semantic"
	"github.com/MrWong99/voxbridge/internal/transcript"
	"github.com/MrWong99/voxbridge/internal/vad"
	"github.com/MrWong99/voxbridge/pkg/audio"
	"github.com/MrWong99/voxbridge/pkg/provider/stt"
	"github.com/MrWong99/voxbridge/pkg/provider/translate"
	vadengine "github.com/MrWong99/voxbridge/pkg/provider/vad"
	"github.com/MrWong99/voxbridge/pkg/sink"
	"github.com/MrWong99/voxbridge/pkg/types"
)

// Gate decides whether a recognized text may be translated.
type Gate interface {
	Check(kind types.EventKind, text, lang string) (bool, semantic.Reason)
}

// Corrector fixes domain terms in recognized text and supplies recognition
// keyword hints.
type Corrector interface {
	Correct(text string) (string, []transcript.Correction)
	Keywords() []stt.KeywordBoost
}

var (
	_ Gate      = (*semantic.Gate)(nil)
	_ Corrector = (*transcript.Glossary)(nil)
)

// Option configures an [Orchestrator].
type Option func(*Orchestrator)

// WithTranslator enables translation into Config.TargetLang.
func WithTranslator(t translate.Translator) Option {
	return func(o *Orchestrator) { o.tr = t }
}

// WithGate replaces the default semantic gate.
func WithGate(g Gate) Option {
	return func(o *Orchestrator) {
		if g != nil {
			o.gate = g
		}
	}
}

// WithCorrector enables glossary correction of recognized text.
func WithCorrector(c Corrector) Option {
	return func(o *Orchestrator) { o.corrector = c }
}

// WithMetrics sets the metric instruments. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.log = l
		}
	}
}

// counters are the pipeline-level counters not owned by the detector.
type counters struct {
	captureOverflows atomic.Uint64
	tasksDropped     atomic.Uint64
	draftsSuperseded atomic.Uint64
	engineFailures   atomic.Uint64
	inputUnderruns   atomic.Uint64
	abandonedCalls   atomic.Uint64
	eventsEmitted    atomic.Uint64
}

// controlReq is a control operation executed on the VAD goroutine.
type controlReq struct {
	fn    func() error
	reply chan error
}

// Orchestrator runs one streaming session. It is single-use: Start once,
// Stop once.
type Orchestrator struct {
	cfg       Config
	rec       stt.Recognizer
	tr        translate.Translator
	gate      Gate
	corrector Corrector
	out       sink.Sink
	metrics   *observe.Metrics
	log       *slog.Logger

	// Owned by the VAD goroutine once started.
	session vadengine.SessionHandle
	det     *vad.Detector
	drafts  *draftController
	seq     uint64
	transit uint64

	ledger   *ledger
	recq     *dropQueue[task]
	results  chan *result
	released chan *result
	control  chan controlReq

	src           audio.Source
	stages        *stageSet
	cancelCapture context.CancelFunc
	cancelWork    context.CancelFunc
	cancelStatus  context.CancelFunc
	unregister    func() error

	started  atomic.Bool
	stopping atomic.Bool
	vadDone  chan struct{}
	done     chan struct{}
	doneOnce sync.Once
	inputErr atomic.Pointer[error]

	// emitMu serialises sink calls from the translation and status stages.
	emitMu sync.Mutex
	count  counters

	stopOnce sync.Once
	report   ShutdownReport
	stopErr  error
}

// New validates cfg and builds an orchestrator. A VAD session is opened on
// engine in cfg.Format.
func New(cfg Config, rec stt.Recognizer, engine vadengine.Engine, out sink.Sink, opts ...Option) (*Orchestrator, error) {
	if rec == nil {
		return nil, errors.New("pipeline: recognizer is required")
	}
	if engine == nil {
		return nil, errors.New("pipeline: vad engine is required")
	}
	if out == nil {
		return nil, errors.New("pipeline: sink is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfg:      cfg,
		rec:      rec,
		gate:     semantic.New(nil),
		out:      out,
		metrics:  observe.DefaultMetrics(),
		log:      slog.Default(),
		drafts:   newDraftController(cfg.Draft),
		ledger:   newLedger(),
		recq:     newDropQueue[task](cfg.RecognitionQueue),
		results:  make(chan *result, cfg.Workers),
		released: make(chan *result, cfg.TranslationQueue),
		control:  make(chan controlReq),
		stages:   newStageSet(),
		vadDone:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	if cfg.SessionID != "" {
		o.log = o.log.With("session_id", cfg.SessionID)
	}

	session, err := engine.NewSession(vadengine.Config{
		SampleRate:  cfg.Format.SampleRate,
		FrameSizeMs: int(audio.DefaultFrameDuration / time.Millisecond),
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: open vad session: %w", err)
	}
	det, err := vad.NewDetector(cfg.VAD, session, vad.WithLogger(o.log))
	if err != nil {
		_ = session.Close()
		return nil, err
	}
	o.session = session
	o.det = det
	return o, nil
}

// Start launches every stage reading from src. It returns immediately; use
// [Orchestrator.Done] to wait for natural completion and
// [Orchestrator.Stop] to end the run early. Cancelling ctx aborts all
// stages without draining.
func (o *Orchestrator) Start(ctx context.Context, src audio.Source) error {
	if src == nil {
		return errors.New("pipeline: source is required")
	}
	if !o.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	o.src = src

	workCtx, cancelWork := context.WithCancel(ctx)
	captureCtx, cancelCapture := context.WithCancel(workCtx)
	statusCtx, cancelStatus := context.WithCancel(workCtx)
	o.cancelWork, o.cancelCapture, o.cancelStatus = cancelWork, cancelCapture, cancelStatus

	unregister, err := o.metrics.ObserveAdaptation(func() (float64, float64) {
		s := o.det.Snapshot()
		return s.NoiseFloorDB, s.Threshold
	})
	if err != nil {
		o.log.Warn("pipeline: adaptation gauges unavailable", "err", err)
	} else {
		o.unregister = unregister
	}

	raw := make(chan audio.AudioFrame, 1)
	frames := make(chan audio.AudioFrame, o.cfg.CaptureQueue)
	realtime := true
	if rt, ok := src.(interface{ Realtime() bool }); ok {
		realtime = rt.Realtime()
	}

	o.log.Info("pipeline: starting",
		"format", o.cfg.Format,
		"source_format", src.Format(),
		"source_lang", o.cfg.SourceLang,
		"target_lang", o.cfg.TargetLang,
		"workers", o.cfg.Workers,
		"drafts", o.cfg.Draft.Enabled,
		"realtime", realtime,
	)

	o.stages.goStage("capture-reader", func() { o.readCapture(captureCtx, src, raw) })
	o.stages.goStage("capture-pump", func() { o.pumpCapture(captureCtx, raw, frames, realtime) })
	o.stages.goStage("vad", func() { o.runVAD(workCtx, frames) })
	o.stages.goStage("recognition", func() { o.runRecognition(workCtx) })
	o.stages.goStage("collector", func() { o.runCollector(workCtx) })
	o.stages.goStage("translation", func() { o.runTranslation(workCtx) })
	o.stages.goStage("status", func() { o.runStatus(statusCtx) })
	o.stages.ready()
	return nil
}

// Done is closed once every released event has been delivered, either
// because the input ended or because the run was stopped.
func (o *Orchestrator) Done() <-chan struct{} { return o.done }

// Running reports whether the run has started and not yet completed.
func (o *Orchestrator) Running() bool {
	if !o.started.Load() {
		return false
	}
	select {
	case <-o.done:
		return false
	default:
		return true
	}
}

// Err returns the capture error that ended the input early, if any.
func (o *Orchestrator) Err() error {
	if p := o.inputErr.Load(); p != nil {
		return *p
	}
	return nil
}

func (o *Orchestrator) finish() {
	o.doneOnce.Do(func() {
		if o.unregister != nil {
			if err := o.unregister(); err != nil {
				o.log.Debug("pipeline: unregister gauges", "err", err)
			}
		}
		o.cancelStatus()
		close(o.done)
		c := o.Status().Counters
		o.log.Info("pipeline: run complete",
			"segments", c.SegmentsClosed,
			"events", c.EventsEmitted,
			"engine_failures", c.EngineFailures,
			"tasks_dropped", c.TasksDropped,
		)
	})
}

// ─── Runtime controls ────────────────────────────────────────────────────────

// ForceEnvironment pins the environment classification until
// ResetAdaptation. Only stable environments may be forced.
func (o *Orchestrator) ForceEnvironment(ctx context.Context, env types.Environment) error {
	return o.do(ctx, func() error { return o.det.ForceEnvironment(env) })
}

// ResetAdaptation clears the noise history, the forced environment and the
// adapted threshold. An open segment is kept.
func (o *Orchestrator) ResetAdaptation(ctx context.Context) error {
	return o.do(ctx, func() error {
		o.det.ResetAdaptation()
		return nil
	})
}

// SetDraft changes the draft settings. A new cadence applies from the next
// segment.
func (o *Orchestrator) SetDraft(ctx context.Context, cfg DraftConfig) error {
	if cfg.Enabled && cfg.Cadence <= 0 {
		return fmt.Errorf("pipeline: draft cadence must be positive, got %s", cfg.Cadence)
	}
	return o.do(ctx, func() error {
		o.drafts.configure(cfg)
		o.log.Info("pipeline: draft settings changed", "enabled", cfg.Enabled, "cadence", cfg.Cadence)
		return nil
	})
}

// do runs fn on the VAD goroutine, which owns the adaptation state.
func (o *Orchestrator) do(ctx context.Context, fn func() error) error {
	if !o.started.Load() {
		return ErrNotRunning
	}
	req := controlReq{fn: fn, reply: make(chan error, 1)}
	select {
	case o.control <- req:
	case <-o.vadDone:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the latest published adaptation state.
func (o *Orchestrator) Snapshot() vad.Snapshot { return o.det.Snapshot() }

// Status returns the adaptation state together with every pipeline counter.
func (o *Orchestrator) Status() types.Status {
	s := o.det.Snapshot()
	return types.Status{
		SessionID:    o.cfg.SessionID,
		Time:         time.Now(),
		Running:      o.Running(),
		Environment:  s.Environment,
		Committed:    s.Committed,
		Confidence:   s.Confidence,
		NoiseFloorDB: s.NoiseFloorDB,
		Threshold:    s.Threshold,
		Mode:         s.Mode,
		Forced:       s.Forced,
		Counters: types.Counters{
			FramesProcessed:  s.FramesProcessed,
			FramesSkipped:    s.FramesSkipped,
			SegmentsOpened:   s.SegmentsOpened,
			SegmentsClosed:   s.SegmentsClosed,
			ForcedCutoffs:    s.ForcedCutoffs,
			NoiseBursts:      s.NoiseBursts,
			Transitions:      s.Transitions,
			CaptureOverflows: o.count.captureOverflows.Load(),
			TasksDropped:     o.count.tasksDropped.Load(),
			DraftsSuperseded: o.count.draftsSuperseded.Load(),
			EngineFailures:   o.count.engineFailures.Load(),
			InputUnderruns:   o.count.inputUnderruns.Load(),
			AbandonedCalls:   o.count.abandonedCalls.Load(),
			EventsEmitted:    o.count.eventsEmitted.Load(),
		},
	}
}

// ─── Capture ─────────────────────────────────────────────────────────────────

func (o *Orchestrator) readCapture(ctx context.Context, src audio.Source, raw chan<- audio.AudioFrame) {
	defer close(raw)
	for {
		f, err := src.ReadFrame(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				o.log.Info("pipeline: end of input")
			case ctx.Err() != nil || o.stopping.Load():
			default:
				o.log.Error("pipeline: capture failed, ending input", "err", err)
				err = fmt.Errorf("pipeline: capture: %w", err)
				o.inputErr.Store(&err)
			}
			return
		}
		select {
		case raw <- f:
		case <-ctx.Done():
			return
		}
	}
}

// pumpCapture converts frames into the segmentation format, watches for
// stalls and applies the capture overflow policy.
func (o *Orchestrator) pumpCapture(ctx context.Context, raw <-chan audio.AudioFrame, frames chan<- audio.AudioFrame, realtime bool) {
	defer close(frames)
	conv := audio.Converter{Target: o.cfg.Format}
	watchdog := time.NewTimer(o.cfg.Watchdog)
	defer watchdog.Stop()
	stalled := false

	for {
		select {
		case <-ctx.Done():
			return
		case <-watchdog.C:
			stalled = true
			o.count.inputUnderruns.Add(1)
			observe.Inc(ctx, o.metrics.InputUnderruns, "", "")
			o.log.Warn("pipeline: capture stalled, still waiting", "err", ErrInputUnderrun, "after", o.cfg.Watchdog)
		case f, ok := <-raw:
			if !ok {
				return
			}
			if stalled {
				stalled = false
				o.log.Info("pipeline: capture resumed")
			}
			watchdog.Reset(o.cfg.Watchdog)
			o.forward(ctx, frames, conv.Convert(f), realtime)
		}
	}
}

// forward hands f to the VAD stage. Live input waits at most one frame
// duration before the frame is dropped; non-live input waits as long as
// needed.
func (o *Orchestrator) forward(ctx context.Context, frames chan<- audio.AudioFrame, f audio.AudioFrame, realtime bool) {
	select {
	case frames <- f:
		return
	default:
	}
	if !realtime {
		select {
		case frames <- f:
		case <-ctx.Done():
		}
		return
	}
	t := time.NewTimer(max(f.Duration(), time.Millisecond))
	defer t.Stop()
	select {
	case frames <- f:
	case <-ctx.Done():
	case <-t.C:
		n := o.count.captureOverflows.Add(1)
		observe.Inc(ctx, o.metrics.QueueDrops, "link", "capture")
		if n == 1 || n%100 == 0 {
			o.log.Warn("pipeline: segmentation is behind, dropping capture frame",
				"err", ErrQueueOverflow, "at", f.Timestamp, "dropped", n)
		}
	}
}

// ─── Segmentation ────────────────────────────────────────────────────────────

func (o *Orchestrator) runVAD(ctx context.Context, frames <-chan audio.AudioFrame) {
	defer close(o.vadDone)
	defer o.recq.Close()
	defer func() {
		if err := o.session.Close(); err != nil {
			o.log.Warn("pipeline: close vad session", "err", err)
		}
	}()

	for {
		select {
		case f, ok := <-frames:
			if !ok {
				o.endOfInput(ctx)
				return
			}
			o.handle(ctx, o.det.Process(f))
			if seg := o.det.Current(); o.drafts.due(seg) {
				o.issue(ctx, types.KindDraft, seg, seg.View())
			}
			if n := o.det.Snapshot().Transitions; n > o.transit {
				o.metrics.EnvironmentTransitions.Add(ctx, int64(n-o.transit))
				o.transit = n
			}
		case req := <-o.control:
			req.reply <- req.fn()
		case <-ctx.Done():
			return
		}
	}
}

// endOfInput finalizes the open segment, unless the run is being stopped
// without force-finalize.
func (o *Orchestrator) endOfInput(ctx context.Context) {
	seg := o.det.Current()
	if seg == nil {
		return
	}
	if o.stopping.Load() && !o.cfg.Shutdown.ForceFinalize {
		o.log.Info("pipeline: discarding open segment on stop",
			"segment_id", seg.ID, "duration", seg.Duration())
		return
	}
	if ev := o.det.Finalize(); ev != nil {
		o.handle(ctx, []vad.SegmentEvent{*ev})
	}
}

func (o *Orchestrator) handle(ctx context.Context, evs []vad.SegmentEvent) {
	for _, ev := range evs {
		switch ev.Type {
		case vad.EventOpened:
			observe.Inc(ctx, o.metrics.SegmentsOpened, "", "")
			o.drafts.open(ev.Segment)
		case vad.EventClosed:
			observe.Inc(ctx, o.metrics.SegmentsClosed, "reason", string(ev.Reason))
			o.drafts.close(ev.Segment.ID)
			o.issue(ctx, types.KindFinal, ev.Segment, ev.Segment.Audio)
		case vad.EventDiscarded:
			observe.Inc(ctx, o.metrics.SegmentsDiscarded, "", "")
		}
	}
}

// issue assigns the next sequence number and queues a recognition task.
func (o *Orchestrator) issue(ctx context.Context, kind types.EventKind, seg *vad.Segment, pcm []byte) {
	o.seq++
	t := task{
		seq:        o.seq,
		segmentID:  seg.ID,
		kind:       kind,
		audio:      pcm,
		sampleRate: seg.SampleRate,
		channels:   seg.Channels,
		start:      seg.Start,
		end:        seg.Start + audio.DurationOf(len(pcm), seg.SampleRate, seg.Channels),
		issued:     time.Now(),
	}
	o.ledger.issue(t)
	if old, dropped := o.recq.Push(t); dropped {
		o.ledger.drop(old.seq)
		o.count.tasksDropped.Add(1)
		observe.Inc(ctx, o.metrics.QueueDrops, "link", "recognition")
		o.log.Warn("pipeline: recognition queue full, dropped oldest task",
			"err", ErrQueueOverflow, "seq", old.seq, "segment_id", old.segmentID, "kind", old.kind)
	}
}

// ─── Recognition ─────────────────────────────────────────────────────────────

func (o *Orchestrator) runRecognition(ctx context.Context) {
	defer close(o.results)
	var g errgroup.Group
	for range o.cfg.Workers {
		g.Go(func() error {
			for {
				t, ok := o.recq.Pop(ctx)
				if !ok {
					return nil
				}
				r := o.recognize(ctx, t)
				select {
				case o.results <- r:
				case <-ctx.Done():
					return nil
				}
			}
		})
	}
	_ = g.Wait()
}

func (o *Orchestrator) recognize(ctx context.Context, t task) *result {
	r := &result{task: t}
	if t.kind == types.KindDraft && o.ledger.finalIssued(t.segmentID) {
		r.stale = true
		o.superseded(ctx, 1)
		return r
	}

	ctx, span := observe.StartInference(ctx, "recognize", t.segmentID, t.seq, t.kind)
	defer span.End()

	req := stt.Request{
		Audio:      t.audio,
		SampleRate: t.sampleRate,
		Channels:   t.channels,
		Language:   o.cfg.SourceLang,
		Draft:      t.kind == types.KindDraft,
	}
	if o.corrector != nil {
		req.Keywords = o.corrector.Keywords()
	}

	start := time.Now()
	res, err := callWithDeadline(ctx, o.cfg.RecognitionTimeout, func(ctx context.Context) (stt.Result, error) {
		return o.rec.Recognize(ctx, req)
	})
	o.metrics.RecognitionDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("kind", string(t.kind))))
	if err != nil {
		r.err = o.engineFailure(ctx, "recognition", t, err)
		span.Fail(r.err)
		return r
	}

	r.text = strings.TrimSpace(res.Text)
	r.confidence = res.Confidence
	if o.corrector != nil && r.text != "" {
		text, corrections := o.corrector.Correct(r.text)
		r.text = text
		for _, c := range corrections {
			r.corrections = append(r.corrections, c.String())
		}
		if len(corrections) > 0 {
			o.log.Debug("pipeline: glossary corrections applied", "seq", t.seq, "corrections", r.corrections)
		}
	}
	return r
}

// ─── Reordering ──────────────────────────────────────────────────────────────

func (o *Orchestrator) runCollector(ctx context.Context) {
	defer close(o.released)
	buf := newReorderBuffer(o.ledger)
	for {
		select {
		case r, ok := <-o.results:
			if !ok {
				if n := buf.held(); n > 0 {
					o.log.Debug("pipeline: flushing reorder buffer", "held", n)
				}
				o.release(ctx, buf.flush())
				return
			}
			if n := buf.add(r); n > 0 {
				o.superseded(ctx, n)
			}
			if !o.release(ctx, buf.ready()) {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// release sends results on to translation, blocking while it is busy.
func (o *Orchestrator) release(ctx context.Context, rs []*result) bool {
	for _, r := range rs {
		select {
		case o.released <- r:
		case <-ctx.Done():
			return false
		}
	}
	return true
}

// ─── Translation and output ──────────────────────────────────────────────────

func (o *Orchestrator) runTranslation(ctx context.Context) {
	defer o.finish()
	for {
		select {
		case r, ok := <-o.released:
			if !ok {
				return
			}
			o.deliver(ctx, r)
		case <-ctx.Done():
			return
		}
	}
}

func (o *Orchestrator) deliver(ctx context.Context, r *result) {
	t := r.task
	if t.kind == types.KindFinal {
		defer o.ledger.forget(t.segmentID)
	} else {
		if o.ledger.newerReleased(t.segmentID, t.seq) {
			o.superseded(ctx, 1)
			return
		}
		if r.text == "" {
			return
		}
	}

	ev := types.TranscriptEvent{
		Kind:                  t.kind,
		SessionID:             o.cfg.SessionID,
		SegmentID:             t.segmentID,
		Seq:                   t.seq,
		SegmentStart:          t.start,
		SegmentEnd:            t.end,
		SourceText:            r.text,
		RecognitionConfidence: r.confidence,
		SourceLang:            o.cfg.SourceLang,
		Corrections:           r.corrections,
	}

	if o.tr != nil && o.cfg.TargetLang != "" && r.text != "" {
		ev.TargetLang = o.cfg.TargetLang
		ok, reason := o.gate.Check(t.kind, r.text, o.cfg.SourceLang)
		observe.Inc(ctx, o.metrics.GateDecisions, "reason", string(reason))
		if !ok {
			ev.TranslationWithheld = true
		} else {
			res, err := o.translate(ctx, t, r.text)
			if err != nil {
				return
			}
			ev.TranslatedText = res.Text
			ev.TranslationConfidence = res.Confidence
		}
	}
	o.emit(ctx, ev)
}

func (o *Orchestrator) translate(ctx context.Context, t task, text string) (translate.Result, error) {
	ctx, span := observe.StartInference(ctx, "translate", t.segmentID, t.seq, t.kind)
	defer span.End()

	req := translate.Request{
		Text:       text,
		SourceLang: o.cfg.SourceLang,
		TargetLang: o.cfg.TargetLang,
		Draft:      t.kind == types.KindDraft,
	}
	start := time.Now()
	res, err := callWithDeadline(ctx, o.cfg.TranslationTimeout, func(ctx context.Context) (translate.Result, error) {
		return o.tr.Translate(ctx, req)
	})
	o.metrics.TranslationDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("kind", string(t.kind))))
	if err != nil {
		err = o.engineFailure(ctx, "translation", t, err)
		span.Fail(err)
		return translate.Result{}, err
	}
	return res, nil
}

func (o *Orchestrator) emit(ctx context.Context, ev types.TranscriptEvent) {
	ev.EmittedAt = time.Now()
	o.emitMu.Lock()
	o.out.Emit(ev)
	o.emitMu.Unlock()
	o.count.eventsEmitted.Add(1)
	observe.Inc(ctx, o.metrics.EventsEmitted, "kind", string(ev.Kind))
	o.log.Debug("pipeline: event emitted",
		"kind", ev.Kind, "segment_id", ev.SegmentID, "seq", ev.Seq,
		"withheld", ev.TranslationWithheld)
}

func (o *Orchestrator) runStatus(ctx context.Context) {
	var tick <-chan time.Time
	if o.cfg.StatusInterval > 0 {
		t := time.NewTicker(o.cfg.StatusInterval)
		defer t.Stop()
		tick = t.C
	}
	for {
		select {
		case <-tick:
			o.emitStatus()
		case <-ctx.Done():
			o.emitStatus()
			return
		}
	}
}

func (o *Orchestrator) emitStatus() {
	st := o.Status()
	o.emitMu.Lock()
	defer o.emitMu.Unlock()
	o.out.EmitStatus(st)
}

// ─── Accounting ──────────────────────────────────────────────────────────────

func (o *Orchestrator) superseded(ctx context.Context, n int) {
	o.count.draftsSuperseded.Add(uint64(n))
	o.metrics.DraftsSuperseded.Add(ctx, int64(n))
}

// engineFailure counts and logs a failed inference call and returns it
// wrapped in ErrEngineFailure.
func (o *Orchestrator) engineFailure(ctx context.Context, stage string, t task, err error) error {
	o.count.engineFailures.Add(1)
	observe.Inc(ctx, o.metrics.EngineFailures, "stage", stage)
	if errors.Is(err, errAbandoned) {
		o.count.abandonedCalls.Add(1)
		observe.Inc(ctx, o.metrics.AbandonedCalls, "stage", stage)
	}
	o.log.Warn("pipeline: engine failure, dropping event",
		"stage", stage, "segment_id", t.segmentID, "seq", t.seq, "kind", t.kind, "err", err)
	return fmt.Errorf("%w: %s of seq %d: %w", ErrEngineFailure, stage, t.seq, err)
}
