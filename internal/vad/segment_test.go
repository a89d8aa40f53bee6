package vad

import (
	"testing"
	"time"
)

var testTiming = Timing{
	MinSpeech:  250 * time.Millisecond,
	MinSilence: 500 * time.Millisecond,
	MaxSegment: 20 * time.Second,
	SpeechPad:  300 * time.Millisecond,
}

// script drives a machine with speech decided per frame index and collects
// every event.
func script(m *SegmentStateMachine, from, to int, tm Timing, speech func(i int) bool) []SegmentEvent {
	var evs []SegmentEvent
	for i := from; i < to; i++ {
		amp := int16(10)
		if speech(i) {
			amp = 8000
		}
		evs = append(evs, m.Process(squareFrame(i, amp), speech(i), tm, OpenContext{Threshold: 0.5})...)
	}
	return evs
}

func between(lo, hi time.Duration) func(int) bool {
	return func(i int) bool {
		at := time.Duration(i) * frameDur
		return at >= lo && at < hi
	}
}

func countType(evs []SegmentEvent, typ SegmentEventType) int {
	n := 0
	for _, ev := range evs {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func TestSegment_ShortBurstIsDiscarded(t *testing.T) {
	t.Parallel()

	m := NewSegmentStateMachine()
	var evs []SegmentEvent
	// 10 ms frames: 1s silence, 150ms speech, 1s silence.
	for i := range 215 {
		f := squareFrame(0, 10)
		f.Data = f.Data[:320]
		f.Timestamp = time.Duration(i) * 10 * time.Millisecond
		speech := i >= 100 && i < 115
		evs = append(evs, m.Process(f, speech, testTiming, OpenContext{})...)
	}

	if n := countType(evs, EventOpened); n != 0 {
		t.Fatalf("150ms burst opened %d segments", n)
	}
	if len(evs) != 1 || evs[0].Type != EventDiscarded || evs[0].Burst != 150*time.Millisecond {
		t.Fatalf("events = %+v, want one 150ms discard", evs)
	}
	if m.NoiseBursts() != 1 {
		t.Errorf("noise bursts = %d, want 1", m.NoiseBursts())
	}
	if m.Finalize() != nil {
		t.Error("Finalize returned a segment for a discarded burst")
	}
}

func TestSegment_NaturalCloseWithPadding(t *testing.T) {
	t.Parallel()

	m := NewSegmentStateMachine()
	evs := script(m, 0, framesIn(4*time.Second), testTiming, between(time.Second, 2*time.Second))

	if len(evs) != 2 || evs[0].Type != EventOpened || evs[1].Type != EventClosed {
		t.Fatalf("events = %+v, want open then close", evs)
	}
	seg := evs[1].Segment
	if seg.ID != 1 {
		t.Errorf("id = %d, want 1", seg.ID)
	}
	if seg.Start != 700*time.Millisecond {
		t.Errorf("start = %v, want 700ms (speech onset minus 300ms pad)", seg.Start)
	}
	if seg.End() != 2300*time.Millisecond {
		t.Errorf("end = %v, want 2.3s (speech end plus 300ms pad)", seg.End())
	}
	if seg.State != SegmentClosed || evs[1].Reason != CloseSilence {
		t.Errorf("state %s reason %s, want CLOSED/silence", seg.State, evs[1].Reason)
	}
	if seg.Opened.Threshold != 0.5 {
		t.Errorf("open snapshot threshold = %v", seg.Opened.Threshold)
	}
}

func TestSegment_PauseShorterThanMinSilenceKeepsSegment(t *testing.T) {
	t.Parallel()

	m := NewSegmentStateMachine()
	speech := func(i int) bool {
		return between(time.Second, 2*time.Second)(i) || between(2300*time.Millisecond, 3300*time.Millisecond)(i)
	}
	evs := script(m, 0, framesIn(5*time.Second), testTiming, speech)
	if countType(evs, EventOpened) != 1 || countType(evs, EventClosed) != 1 {
		t.Fatalf("events = %+v, want a single segment", evs)
	}
}

func TestSegment_ClosesByTimingAtOpen(t *testing.T) {
	t.Parallel()

	// The environment commits to a profile with a longer silence window and
	// a longer cutoff after the segment opened.
	later := testTiming
	later.MinSilence = 2 * time.Second
	later.MaxSegment = time.Minute

	m := NewSegmentStateMachine()
	speech := between(time.Second, 2*time.Second)
	evs := script(m, 0, framesIn(1500*time.Millisecond), testTiming, speech)
	if countType(evs, EventOpened) != 1 {
		t.Fatalf("events = %+v, want the segment open", evs)
	}
	evs = script(m, framesIn(1500*time.Millisecond), framesIn(3*time.Second), later, speech)
	if countType(evs, EventClosed) != 1 {
		t.Fatalf("events = %+v, want a close after 500ms of silence", evs)
	}
	if end := evs[len(evs)-1].Segment.End(); end != 2300*time.Millisecond {
		t.Errorf("end = %v, want 2300ms", end)
	}
}

func TestSegment_LifecycleStates(t *testing.T) {
	t.Parallel()

	m := NewSegmentStateMachine()
	script(m, 0, framesIn(1500*time.Millisecond), testTiming, between(time.Second, 2*time.Second))
	if m.State() != StateSpeech || m.Current().State != SegmentOpen {
		t.Fatalf("during speech: %s/%s", m.State(), m.Current().State)
	}
	script(m, framesIn(2*time.Second), framesIn(2200*time.Millisecond), testTiming, func(int) bool { return false })
	if m.State() != StateTrailingSilence || m.Current().State != SegmentClosing {
		t.Fatalf("during trailing silence: %s/%s", m.State(), m.Current().State)
	}
}

func TestSegment_MaxDurationCutoffReopensImmediately(t *testing.T) {
	t.Parallel()

	m := NewSegmentStateMachine()
	evs := script(m, 0, framesIn(25*time.Second), testTiming, func(int) bool { return true })

	var forced []SegmentEvent
	for _, ev := range evs {
		if ev.Type == EventClosed && ev.Reason == CloseMaxDuration {
			forced = append(forced, ev)
		}
	}
	if len(forced) != 1 {
		t.Fatalf("forced closes = %d, want exactly 1", len(forced))
	}
	cut := forced[0].Segment
	if cut.Duration() != 20*time.Second || cut.End() != 20*time.Second {
		t.Errorf("cut segment duration %v end %v, want 20s", cut.Duration(), cut.End())
	}

	// The close is followed by an immediate continuation open.
	var next *Segment
	for i, ev := range evs {
		if ev.Type == EventClosed && i+1 < len(evs) {
			next = evs[i+1].Segment
			if evs[i+1].Type != EventOpened {
				t.Fatalf("event after cutoff = %s, want opened", evs[i+1].Type)
			}
		}
	}
	if next == nil || !next.Continuation || next.Start != 20*time.Second || next.ID != 2 {
		t.Fatalf("continuation segment = %+v", next)
	}
	if m.ForcedCutoffs() != 1 {
		t.Errorf("forced cutoffs = %d, want 1", m.ForcedCutoffs())
	}

	fin := m.Finalize()
	if fin == nil || fin.Reason != CloseFinalize || fin.Segment.Duration() != 5*time.Second {
		t.Fatalf("finalize = %+v, want the 5s continuation", fin)
	}
}

func TestSegment_ViewIsStable(t *testing.T) {
	t.Parallel()

	m := NewSegmentStateMachine()
	script(m, 0, framesIn(time.Second), testTiming, func(int) bool { return true })
	view := m.Current().View()
	snapshot := append([]byte(nil), view...)
	script(m, framesIn(time.Second), framesIn(3*time.Second), testTiming, func(int) bool { return true })

	if len(view) != len(snapshot) {
		t.Fatalf("view length changed")
	}
	for i := range view {
		if view[i] != snapshot[i] {
			t.Fatalf("view byte %d changed after more frames", i)
		}
	}
	if len(m.Current().Audio) <= len(view) {
		t.Error("segment did not keep growing")
	}
}

func TestResolveTiming(t *testing.T) {
	t.Parallel()

	table, err := ResolveTiming(ModeInterview, nil, TimingOverrides{})
	if err != nil {
		t.Fatal(err)
	}
	quiet := table.For("QUIET")
	if quiet.MinSpeech != 300*time.Millisecond || quiet.MinSilence != 800*time.Millisecond ||
		quiet.MaxSegment != 20*time.Second || quiet.SpeechPad != 300*time.Millisecond {
		t.Errorf("interview/quiet = %+v", quiet)
	}
	noisy := table.For("VERY_NOISY")
	if noisy.MinSpeech != 500*time.Millisecond || noisy.SpeechPad != 200*time.Millisecond {
		t.Errorf("interview/very noisy = %+v", noisy)
	}

	table, err = ResolveTiming(ModeSentence, nil, TimingOverrides{MaxSegment: 8 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	if got := table.For("MODERATE"); got.MaxSegment != 8*time.Second || got.MinSpeech != 350*time.Millisecond {
		t.Errorf("sentence/moderate with override = %+v", got)
	}

	if _, err := ResolveTiming("bogus", nil, TimingOverrides{}); err == nil {
		t.Error("expected error for unknown mode")
	}
	if _, err := ResolveTiming(ModeStandard, nil, TimingOverrides{MinSpeech: 30 * time.Second}); err == nil {
		t.Error("expected error when min speech exceeds max segment")
	}
}
