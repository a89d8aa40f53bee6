package pipeline

import (
	"time"

	"github.com/MrWong99/voxbridge/pkg/types"
)

// task is one recognition request issued by the VAD stage.
type task struct {
	seq        uint64
	segmentID  uint64
	kind       types.EventKind
	audio      []byte
	sampleRate int
	channels   int
	start      time.Duration
	end        time.Duration
	issued     time.Time
}

// result is what a recognition worker hands to the collector for a task.
type result struct {
	task task

	text        string
	confidence  float64
	corrections []string

	// err is set when recognition failed; the task produces no event.
	err error

	// stale is set when the worker skipped a draft whose FINAL was already
	// issued.
	stale bool

	// superseded is set by the collector when a newer result of the same
	// segment was received first.
	superseded bool
}

// deliverable reports whether the result may produce an event.
func (r *result) deliverable() bool {
	return r.err == nil && !r.stale && !r.superseded
}
