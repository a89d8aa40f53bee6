package vad

import (
	"time"

	"github.com/MrWong99/voxbridge/pkg/audio"
	"github.com/MrWong99/voxbridge/pkg/types"
)

// SegmentState is the lifecycle of a [Segment].
type SegmentState string

const (
	SegmentOpen    SegmentState = "OPEN"
	SegmentClosing SegmentState = "CLOSING"
	SegmentClosed  SegmentState = "CLOSED"
)

// MachineState is the state of the [SegmentStateMachine].
type MachineState string

const (
	StateSilence         MachineState = "SILENCE"
	StateSpeech          MachineState = "SPEECH"
	StateTrailingSilence MachineState = "TRAILING_SILENCE"
)

// CloseReason records why a segment ended.
type CloseReason string

const (
	CloseSilence     CloseReason = "silence"
	CloseMaxDuration CloseReason = "max_duration"
	CloseFinalize    CloseReason = "finalize"
)

// OpenContext is the adaptation state captured when a segment opens.
type OpenContext struct {
	Threshold   float64
	Environment types.Environment
	NoiseFloor  float64
}

// Segment is a contiguous stretch of speech with its padded audio.
type Segment struct {
	ID          uint64
	Start       time.Duration
	Audio       []byte
	SampleRate  int
	Channels    int
	State       SegmentState
	Opened      OpenContext
	CloseReason CloseReason

	// Continuation is set on a segment opened directly after a max-duration
	// cutoff.
	Continuation bool

	speechEnd int
	timing    Timing
}

// Duration returns the length of the buffered audio.
func (s *Segment) Duration() time.Duration {
	return audio.DurationOf(len(s.Audio), s.SampleRate, s.Channels)
}

// End returns the capture offset just past the buffered audio.
func (s *Segment) End() time.Duration { return s.Start + s.Duration() }

// View returns the audio buffered so far. The returned slice is never written
// to by the state machine, so it stays valid after further frames arrive.
func (s *Segment) View() []byte { return s.Audio[:len(s.Audio):len(s.Audio)] }

// SegmentEventType classifies a [SegmentEvent].
type SegmentEventType string

const (
	EventOpened    SegmentEventType = "opened"
	EventClosed    SegmentEventType = "closed"
	EventDiscarded SegmentEventType = "discarded"
)

// SegmentEvent is a boundary decision of the state machine.
type SegmentEvent struct {
	Type    SegmentEventType
	Segment *Segment
	Reason  CloseReason

	// Burst is the length of a discarded onset.
	Burst time.Duration
}

// SegmentStateMachine turns per-frame speech decisions into segments. Onsets
// shorter than MinSpeech are discarded as noise bursts; segments end after
// MinSilence of trailing silence or when they reach MaxSegment.
type SegmentStateMachine struct {
	state  MachineState
	seg    *Segment
	nextID uint64

	preroll    []audio.AudioFrame
	prerollDur time.Duration
	onset      time.Duration
	silence    time.Duration

	bursts uint64
	cuts   uint64
}

// NewSegmentStateMachine returns a machine in SILENCE. Segment ids start at 1.
func NewSegmentStateMachine() *SegmentStateMachine {
	return &SegmentStateMachine{state: StateSilence, nextID: 1}
}

// State returns the machine state.
func (m *SegmentStateMachine) State() MachineState { return m.state }

// Current returns the open segment, or nil.
func (m *SegmentStateMachine) Current() *Segment { return m.seg }

// NoiseBursts returns the number of discarded onsets.
func (m *SegmentStateMachine) NoiseBursts() uint64 { return m.bursts }

// ForcedCutoffs returns the number of max-duration closes.
func (m *SegmentStateMachine) ForcedCutoffs() uint64 { return m.cuts }

// Process advances the machine by one frame. speech is the thresholded
// classifier decision, timing the profile of the current environment and oc
// the adaptation state recorded if a segment opens. An open segment closes
// by the timing it was opened with.
func (m *SegmentStateMachine) Process(f audio.AudioFrame, speech bool, timing Timing, oc OpenContext) []SegmentEvent {
	dur := f.Duration()
	switch m.state {
	case StateSilence:
		m.pushPreroll(f, timing)
		if !speech {
			if m.onset > 0 {
				ev := SegmentEvent{Type: EventDiscarded, Burst: m.onset}
				m.onset = 0
				m.bursts++
				return []SegmentEvent{ev}
			}
			return nil
		}
		m.onset += dur
		if m.onset < timing.MinSpeech {
			return nil
		}
		return []SegmentEvent{m.openFromPreroll(f, timing, oc)}

	case StateSpeech, StateTrailingSilence:
		m.seg.Audio = append(m.seg.Audio, f.Data...)
		if speech {
			m.state = StateSpeech
			m.seg.State = SegmentOpen
			m.seg.speechEnd = len(m.seg.Audio)
			m.silence = 0
		} else {
			m.state = StateTrailingSilence
			m.seg.State = SegmentClosing
			m.silence += dur
			if m.silence >= m.seg.timing.MinSilence {
				return []SegmentEvent{m.close(CloseSilence)}
			}
		}
		if m.seg.Duration() < m.seg.timing.MaxSegment {
			return nil
		}
		wasSpeech := m.state == StateSpeech
		m.cuts++
		evs := []SegmentEvent{m.close(CloseMaxDuration)}
		if wasSpeech {
			evs = append(evs, m.open(f.End(), nil, f, timing, oc, true))
		}
		return evs
	}
	return nil
}

// Finalize force-closes the open segment. It returns nil when none is open.
func (m *SegmentStateMachine) Finalize() *SegmentEvent {
	m.onset = 0
	m.clearPreroll()
	if m.seg == nil {
		return nil
	}
	ev := m.close(CloseFinalize)
	return &ev
}

func (m *SegmentStateMachine) pushPreroll(f audio.AudioFrame, timing Timing) {
	m.preroll = append(m.preroll, f)
	m.prerollDur += f.Duration()
	keep := timing.SpeechPad + timing.MinSpeech
	for len(m.preroll) > 1 && m.prerollDur-m.preroll[0].Duration() >= keep {
		m.prerollDur -= m.preroll[0].Duration()
		m.preroll[0] = audio.AudioFrame{}
		m.preroll = m.preroll[1:]
	}
}

func (m *SegmentStateMachine) clearPreroll() {
	clear(m.preroll)
	m.preroll = m.preroll[:0]
	m.prerollDur = 0
}

// openFromPreroll opens a segment covering the onset frames plus up to
// SpeechPad of audio buffered before them.
func (m *SegmentStateMachine) openFromPreroll(f audio.AudioFrame, timing Timing, oc OpenContext) SegmentEvent {
	want := m.onset + timing.SpeechPad
	first := len(m.preroll)
	var got time.Duration
	for first > 0 && got+m.preroll[first-1].Duration() <= want {
		first--
		got += m.preroll[first].Duration()
	}
	if first == len(m.preroll) {
		first = len(m.preroll) - 1
	}
	frames := m.preroll[first:]
	size := 0
	for _, pf := range frames {
		size += len(pf.Data)
	}
	buf := make([]byte, 0, size)
	for _, pf := range frames {
		buf = append(buf, pf.Data...)
	}
	start := frames[0].Timestamp
	m.onset = 0
	m.clearPreroll()
	return m.open(start, buf, f, timing, oc, false)
}

func (m *SegmentStateMachine) open(start time.Duration, buf []byte, f audio.AudioFrame, timing Timing, oc OpenContext, continuation bool) SegmentEvent {
	m.seg = &Segment{
		ID:           m.nextID,
		Start:        start,
		Audio:        buf,
		SampleRate:   f.SampleRate,
		Channels:     f.Channels,
		State:        SegmentOpen,
		Opened:       oc,
		Continuation: continuation,
		speechEnd:    len(buf),
		timing:       timing,
	}
	m.nextID++
	m.state = StateSpeech
	m.silence = 0
	return SegmentEvent{Type: EventOpened, Segment: m.seg}
}

// close ends the open segment, trimming trailing silence beyond SpeechPad.
func (m *SegmentStateMachine) close(reason CloseReason) SegmentEvent {
	seg := m.seg
	keep := seg.speechEnd + audio.BytesFor(seg.timing.SpeechPad, seg.SampleRate, seg.Channels)
	if keep < len(seg.Audio) {
		seg.Audio = seg.Audio[:keep:keep]
	}
	seg.State = SegmentClosed
	seg.CloseReason = reason
	m.seg = nil
	m.state = StateSilence
	m.silence = 0
	return SegmentEvent{Type: EventClosed, Segment: seg, Reason: reason}
}
