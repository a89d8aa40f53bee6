package pipeline

import (
	"errors"
	"slices"
	"testing"

	"github.com/MrWong99/voxbridge/pkg/types"
)

// issueAll records tasks in the ledger the way the VAD stage does.
func issueAll(l *ledger, tasks ...task) {
	for _, t := range tasks {
		l.issue(t)
	}
}

func final(seq, seg uint64) task { return task{seq: seq, segmentID: seg, kind: types.KindFinal} }
func draft(seq, seg uint64) task { return task{seq: seq, segmentID: seg, kind: types.KindDraft} }

func seqs(rs []*result) []uint64 {
	out := make([]uint64, len(rs))
	for i, r := range rs {
		out[i] = r.task.seq
	}
	return out
}

func TestReorderBuffer_OutOfOrderCompletion(t *testing.T) {
	t.Parallel()

	l := newLedger()
	issueAll(l, final(1, 1), final(2, 2), final(3, 3))
	b := newReorderBuffer(l)

	var out []uint64
	for _, seq := range []uint64{3, 1, 2} {
		b.add(&result{task: final(seq, seq)})
		out = append(out, seqs(b.ready())...)
		if seq == 3 && len(out) != 0 {
			t.Fatalf("seq 3 released before 1 and 2: %v", out)
		}
	}
	if want := []uint64{1, 2, 3}; !slices.Equal(out, want) {
		t.Fatalf("release order = %v, want %v", out, want)
	}
}

func TestReorderBuffer_FailedAndDroppedSequencesDoNotBlock(t *testing.T) {
	t.Parallel()

	l := newLedger()
	issueAll(l, final(1, 1), final(2, 2), final(3, 3), final(4, 4))
	b := newReorderBuffer(l)

	l.drop(2)
	b.add(&result{task: final(4, 4)})
	b.add(&result{task: final(3, 3), err: errors.New("boom")})
	if got := b.ready(); len(got) != 0 {
		t.Fatalf("released %v while seq 1 is pending", seqs(got))
	}
	b.add(&result{task: final(1, 1)})
	if got, want := seqs(b.ready()), []uint64{1, 4}; !slices.Equal(got, want) {
		t.Fatalf("released %v, want %v", got, want)
	}
	if b.held() != 0 {
		t.Errorf("held = %d after release", b.held())
	}
}

func TestReorderBuffer_NewerResultSupersedesPendingDraft(t *testing.T) {
	t.Parallel()

	l := newLedger()
	// Segment 1: D1 (seq 1), D2 (seq 2), FINAL (seq 3).
	issueAll(l, draft(1, 1), draft(2, 1), final(3, 1))
	b := newReorderBuffer(l)

	if n := b.add(&result{task: draft(2, 1), text: "hello"}); n != 1 {
		t.Fatalf("D2 superseded %d drafts, want 1", n)
	}
	if got := seqs(b.ready()); !slices.Equal(got, []uint64{2}) {
		t.Fatalf("released %v, want [2]", got)
	}

	// D1 finishes late and must be discarded.
	if n := b.add(&result{task: draft(1, 1), text: "hel"}); n != 0 {
		t.Errorf("late D1 reported %d superseded", n)
	}
	if got := b.ready(); len(got) != 0 {
		t.Fatalf("late D1 released: %v", seqs(got))
	}

	b.add(&result{task: final(3, 1), text: "hello world"})
	if got := seqs(b.ready()); !slices.Equal(got, []uint64{3}) {
		t.Fatalf("released %v, want [3]", got)
	}
}

func TestReorderBuffer_SupersedesHeldDraft(t *testing.T) {
	t.Parallel()

	l := newLedger()
	// seq 1 is another segment still in flight; segment 2 has D (2) and F (3).
	issueAll(l, final(1, 1), draft(2, 2), final(3, 2))
	b := newReorderBuffer(l)

	b.add(&result{task: draft(2, 2), text: "partial"})
	if n := b.add(&result{task: final(3, 2), text: "partial text"}); n != 1 {
		t.Fatalf("FINAL superseded %d, want 1", n)
	}
	b.add(&result{task: final(1, 1), text: "first"})
	if got, want := seqs(b.ready()), []uint64{1, 3}; !slices.Equal(got, want) {
		t.Fatalf("released %v, want %v", got, want)
	}
}

func TestReorderBuffer_SupersededGapResolvedAfterEarlierSegment(t *testing.T) {
	t.Parallel()

	l := newLedger()
	issueAll(l, final(1, 1), draft(2, 2), final(3, 2))
	b := newReorderBuffer(l)

	b.add(&result{task: final(3, 2), text: "done"})
	b.add(&result{task: draft(2, 2), text: "do"}) // arrives after being superseded
	if got := b.ready(); len(got) != 0 {
		t.Fatalf("released %v while seq 1 is pending", seqs(got))
	}
	b.add(&result{task: final(1, 1), text: "first"})
	if got, want := seqs(b.ready()), []uint64{1, 3}; !slices.Equal(got, want) {
		t.Fatalf("released %v, want %v", got, want)
	}
}

func TestReorderBuffer_StaleResultsResolveWithoutOutput(t *testing.T) {
	t.Parallel()

	l := newLedger()
	issueAll(l, draft(1, 1), final(2, 1))
	b := newReorderBuffer(l)

	b.add(&result{task: draft(1, 1), stale: true})
	b.add(&result{task: final(2, 1), text: "x"})
	if got := seqs(b.ready()); !slices.Equal(got, []uint64{2}) {
		t.Fatalf("released %v, want [2]", got)
	}
}

func TestReorderBuffer_Flush(t *testing.T) {
	t.Parallel()

	l := newLedger()
	issueAll(l, final(1, 1), final(2, 2), final(3, 3))
	b := newReorderBuffer(l)
	b.add(&result{task: final(3, 3)})
	b.add(&result{task: final(2, 2)})
	if got := b.ready(); len(got) != 0 {
		t.Fatalf("ready released %v", seqs(got))
	}
	if got, want := seqs(b.flush()), []uint64{2, 3}; !slices.Equal(got, want) {
		t.Fatalf("flush = %v, want %v", got, want)
	}
}

func TestLedger_FinalTracking(t *testing.T) {
	t.Parallel()

	l := newLedger()
	l.issue(draft(1, 7))
	if l.finalIssued(7) {
		t.Fatal("finalIssued before FINAL")
	}
	l.issue(final(2, 7))
	if !l.finalIssued(7) {
		t.Fatal("finalIssued = false after FINAL")
	}
	l.released(7, 2)
	if !l.newerReleased(7, 1) || l.newerReleased(7, 2) {
		t.Error("newerReleased mismatch")
	}
	l.forget(7)
	if l.finalIssued(7) || l.newerReleased(7, 1) {
		t.Error("state kept after forget")
	}
}

func TestReorderBuffer_UndeliveredFinalsLeaveNoLedgerState(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		run  func(l *ledger, b *reorderBuffer, seq, seg uint64)
	}{
		{
			name: "recognition failed",
			run: func(l *ledger, b *reorderBuffer, seq, seg uint64) {
				b.add(&result{task: final(seq, seg), err: errors.New("engine down")})
				b.ready()
			},
		},
		{
			name: "dropped from queue",
			run: func(l *ledger, b *reorderBuffer, seq, _ uint64) {
				l.drop(seq)
				b.ready()
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			l := newLedger()
			b := newReorderBuffer(l)
			for i := range uint64(1000) {
				seq, seg := i+1, i+1
				l.issue(final(seq, seg))
				tt.run(l, b, seq, seg)
			}
			if n := l.size(); n != 0 {
				t.Errorf("ledger holds %d segments after 1000 undelivered FINALs", n)
			}
			if b.held() != 0 {
				t.Errorf("held = %d", b.held())
			}
		})
	}
}

func TestReorderBuffer_DraftReleasedBeforeDroppedFinal(t *testing.T) {
	t.Parallel()

	l := newLedger()
	issueAll(l, draft(1, 1), final(2, 1))
	b := newReorderBuffer(l)

	l.drop(2)
	b.add(&result{task: draft(1, 1), text: "partial"})
	if got := seqs(b.ready()); !slices.Equal(got, []uint64{1}) {
		t.Fatalf("released %v, want [1]", got)
	}
	if n := l.size(); n != 0 {
		t.Errorf("ledger holds %d segments after the FINAL was dropped", n)
	}
}

func TestReorderBuffer_FlushClearsLedger(t *testing.T) {
	t.Parallel()

	l := newLedger()
	issueAll(l, final(1, 1), final(2, 2), final(3, 3), final(4, 4))
	b := newReorderBuffer(l)

	// Shutdown drops seq 3 from the queue and seq 2 fails while seq 1 is
	// still in flight.
	l.drop(3)
	b.add(&result{task: final(2, 2), err: errors.New("cancelled")})
	b.add(&result{task: final(4, 4), text: "last"})
	if got, want := seqs(b.flush()), []uint64{4}; !slices.Equal(got, want) {
		t.Fatalf("flush = %v, want %v", got, want)
	}
	l.forget(4) // delivered
	if l.finalIssued(2) || l.finalIssued(3) {
		t.Error("failed or dropped FINAL still tracked after flush")
	}
}
