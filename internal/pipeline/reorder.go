package pipeline

import (
	"container/heap"

	"github.com/MrWong99/voxbridge/pkg/types"
)

// resultHeap implements [container/heap.Interface] as a min-heap ordered by
// sequence number.
type resultHeap []*result

func (h resultHeap) Len() int           { return len(h) }
func (h resultHeap) Less(i, j int) bool { return h[i].task.seq < h[j].task.seq }
func (h resultHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

// Push appends x to the heap. Called by [container/heap.Push]; callers must
// not invoke this directly.
func (h *resultHeap) Push(x any) {
	*h = append(*h, x.(*result))
}

// Pop removes and returns the last element. Called by [container/heap.Pop];
// callers must not invoke this directly.
func (h *resultHeap) Pop() any {
	old := *h
	n := len(old)
	r := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return r
}

// reorderBuffer releases results in sequence order. Sequence numbers that
// will never produce a result (dropped or superseded tasks) are resolved
// through the ledger so later results are never held behind them. It is
// owned by the collector goroutine.
type reorderBuffer struct {
	h      resultHeap
	next   uint64
	ledger *ledger
}

func newReorderBuffer(l *ledger) *reorderBuffer {
	return &reorderBuffer{next: 1, ledger: l}
}

// add stores r and returns how many older drafts of its segment it
// superseded. Results that were themselves superseded earlier are discarded.
func (b *reorderBuffer) add(r *result) int {
	if r.task.seq < b.next || !b.ledger.receive(r.task.seq) {
		return 0
	}
	n := 0
	if r.err == nil && !r.stale {
		n += b.ledger.supersede(r.task.segmentID, r.task.seq)
		for _, held := range b.h {
			if held.task.segmentID == r.task.segmentID && held.task.seq < r.task.seq && !held.superseded && held.deliverable() {
				held.superseded = true
				n++
			}
		}
	}
	heap.Push(&b.h, r)
	return n
}

// ready pops every result whose predecessors are all resolved and returns
// the deliverable ones in order.
func (b *reorderBuffer) ready() []*result {
	var out []*result
	for {
		if len(b.h) > 0 && b.h[0].task.seq == b.next {
			r := heap.Pop(&b.h).(*result)
			b.next++
			if r.deliverable() {
				b.ledger.released(r.task.segmentID, r.task.seq)
				out = append(out, r)
			} else {
				b.discard(r)
			}
			continue
		}
		if b.ledger.takeSkip(b.next) {
			b.next++
			continue
		}
		return out
	}
}

// flush pops everything left regardless of gaps. Used once no more results
// can arrive.
func (b *reorderBuffer) flush() []*result {
	var out []*result
	for len(b.h) > 0 {
		r := heap.Pop(&b.h).(*result)
		b.next = r.task.seq + 1
		if r.deliverable() {
			b.ledger.released(r.task.segmentID, r.task.seq)
			out = append(out, r)
		} else {
			b.discard(r)
		}
	}
	b.ledger.clearSkips()
	return out
}

// discard resolves a result that produces no event. A failed FINAL ends its
// segment just like a delivered one.
func (b *reorderBuffer) discard(r *result) {
	if r.task.kind == types.KindFinal {
		b.ledger.forget(r.task.segmentID)
	}
}

// held returns the number of results waiting for a predecessor.
func (b *reorderBuffer) held() int { return len(b.h) }
