package pipeline

import (
	"sync"

	"github.com/MrWong99/voxbridge/pkg/types"
)

// ledger tracks issued sequence numbers across stages so the collector can
// resolve gaps left by dropped tasks and the workers can recognise stale
// drafts.
type ledger struct {
	mu sync.Mutex

	// pending holds issued tasks whose result has not reached the collector.
	pending map[uint64]pendingTask

	// skipped holds sequence numbers that will never produce a result.
	skipped map[uint64]pendingTask

	// finals marks segments whose FINAL task was issued.
	finals map[uint64]struct{}

	// newest maps a segment to its most recently released sequence number.
	newest map[uint64]uint64
}

type pendingTask struct {
	segmentID uint64
	kind      types.EventKind
}

func newLedger() *ledger {
	return &ledger{
		pending: make(map[uint64]pendingTask),
		skipped: make(map[uint64]pendingTask),
		finals:  make(map[uint64]struct{}),
		newest:  make(map[uint64]uint64),
	}
}

// issue records a task before it is queued.
func (l *ledger) issue(t task) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending[t.seq] = pendingTask{segmentID: t.segmentID, kind: t.kind}
	if t.kind == types.KindFinal {
		l.finals[t.segmentID] = struct{}{}
	}
}

// drop resolves a task that was removed from the queue unstarted.
func (l *ledger) drop(seq uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.skipped[seq] = l.pending[seq]
	delete(l.pending, seq)
}

// finalIssued reports whether the FINAL of segment was issued.
func (l *ledger) finalIssued(segment uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.finals[segment]
	return ok
}

// receive marks a result as arrived. It reports false when the sequence
// number was already superseded, in which case the result is discarded. The
// skip entry stays until the collector passes it.
func (l *ledger) receive(seq uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.pending, seq)
	_, skipped := l.skipped[seq]
	return !skipped
}

// supersede resolves pending drafts of segment older than seq and returns
// how many were superseded.
func (l *ledger) supersede(segment, seq uint64) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for s, p := range l.pending {
		if s < seq && p.segmentID == segment && p.kind == types.KindDraft {
			delete(l.pending, s)
			l.skipped[s] = p
			n++
		}
	}
	return n
}

// takeSkip consumes seq from the skip set when present. A skipped FINAL
// ends its segment, so the segment's state is dropped with it.
func (l *ledger) takeSkip(seq uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.skipped[seq]
	if !ok {
		return false
	}
	delete(l.skipped, seq)
	if p.kind == types.KindFinal {
		l.forgetLocked(p.segmentID)
	}
	return true
}

// clearSkips resolves every remaining skip entry. Used once the collector
// flushes and no cursor will pass them anymore.
func (l *ledger) clearSkips() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for seq, p := range l.skipped {
		delete(l.skipped, seq)
		if p.kind == types.KindFinal {
			l.forgetLocked(p.segmentID)
		}
	}
}

// released records that seq of segment left the reorder window.
func (l *ledger) released(segment, seq uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if seq > l.newest[segment] {
		l.newest[segment] = seq
	}
}

// newerReleased reports whether a result newer than seq was released for
// segment.
func (l *ledger) newerReleased(segment, seq uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.newest[segment] > seq
}

// forget drops all state of a segment once its FINAL was handled.
func (l *ledger) forget(segment uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.forgetLocked(segment)
}

func (l *ledger) forgetLocked(segment uint64) {
	delete(l.finals, segment)
	delete(l.newest, segment)
}

// size returns the number of segments the ledger still holds state for.
func (l *ledger) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return max(len(l.finals), len(l.newest))
}
