package pipeline

import (
	"time"

	"github.com/MrWong99/voxbridge/internal/vad"
)

// draftController decides when the open segment gets a DRAFT task. Drafts
// are due every cadence of segment duration; a long frame that crosses
// several cadence marks yields a single draft. Owned by the VAD goroutine.
type draftController struct {
	enabled bool
	cadence time.Duration

	segment uint64
	next    time.Duration
}

func newDraftController(cfg DraftConfig) *draftController {
	return &draftController{enabled: cfg.Enabled, cadence: cfg.Cadence}
}

// configure changes the settings. The new cadence applies from the next
// segment.
func (d *draftController) configure(cfg DraftConfig) {
	d.enabled = cfg.Enabled
	if cfg.Cadence > 0 {
		d.cadence = cfg.Cadence
	}
}

// open starts tracking seg.
func (d *draftController) open(seg *vad.Segment) {
	d.segment = seg.ID
	d.next = d.cadence
}

// close stops tracking the segment with id. No drafts are due for it
// afterwards.
func (d *draftController) close(id uint64) {
	if d.segment == id {
		d.segment = 0
	}
}

// due reports whether seg needs a draft now and advances the schedule.
func (d *draftController) due(seg *vad.Segment) bool {
	if !d.enabled || seg == nil || seg.ID != d.segment || d.cadence <= 0 {
		return false
	}
	dur := seg.Duration()
	if dur < d.next {
		return false
	}
	for d.next <= dur {
		d.next += d.cadence
	}
	return true
}
