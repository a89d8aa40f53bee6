package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ShutdownReport describes how a run ended.
type ShutdownReport struct {
	// Graceful is set when everything drained within the grace period and
	// no stage had to be abandoned.
	Graceful bool

	// Dropped is the number of queued recognition tasks discarded unstarted.
	Dropped int

	// Abandoned names the stages still running at the deadline.
	Abandoned []string

	Duration time.Duration
}

// Stop ends the run:
//
//  1. capture stops and the source is closed;
//  2. the open segment is finalized only with Shutdown.ForceFinalize;
//  3. queued and in-flight work may drain for Shutdown.Grace;
//  4. tasks still queued are dropped;
//  5. in-flight calls are cancelled and stages that do not return before
//     the deadline are abandoned;
//  6. the VAD session and the source are released.
//
// Stop returns within Shutdown.Timeout, or earlier when ctx has a sooner
// deadline. When the drain did not finish within the grace period the error
// wraps [ErrShutdownTimeout]. Calling Stop again returns the first result.
func (o *Orchestrator) Stop(ctx context.Context) (ShutdownReport, error) {
	if !o.started.Load() {
		return ShutdownReport{}, ErrNotRunning
	}
	o.stopOnce.Do(func() {
		o.report, o.stopErr = o.shutdown(ctx)
	})
	return o.report, o.stopErr
}

func (o *Orchestrator) shutdown(ctx context.Context) (ShutdownReport, error) {
	begin := time.Now()
	deadline := begin.Add(o.cfg.Shutdown.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	grace := begin.Add(o.cfg.Shutdown.Grace)
	if grace.After(deadline) {
		grace = deadline
	}

	o.log.Info("pipeline: stopping",
		"grace", o.cfg.Shutdown.Grace,
		"timeout", time.Until(deadline).Round(time.Millisecond),
		"force_finalize", o.cfg.Shutdown.ForceFinalize,
	)
	o.stopping.Store(true)
	o.cancelCapture()
	go func() {
		if err := o.src.Close(); err != nil {
			o.log.Warn("pipeline: close source", "err", err)
		}
	}()

	var rep ShutdownReport
	drained := waitUntil(ctx, o.done, grace)
	if !drained {
		for _, t := range o.recq.Drain() {
			o.ledger.drop(t.seq)
			rep.Dropped++
		}
		if rep.Dropped > 0 {
			o.count.tasksDropped.Add(uint64(rep.Dropped))
			o.metrics.QueueDrops.Add(ctx, int64(rep.Dropped))
		}
		o.log.Warn("pipeline: drain incomplete, cancelling in-flight work",
			"err", ErrShutdownTimeout, "dropped", rep.Dropped)
	}
	o.cancelWork()

	waitUntil(ctx, o.stages.done(), deadline)
	rep.Abandoned = o.stages.names()
	rep.Graceful = drained && len(rep.Abandoned) == 0
	rep.Duration = time.Since(begin)

	if len(rep.Abandoned) > 0 {
		o.log.Warn("pipeline: stages abandoned at shutdown deadline",
			"err", ErrShutdownTimeout, "stages", rep.Abandoned)
	}
	o.log.Info("pipeline: stopped",
		"graceful", rep.Graceful, "dropped", rep.Dropped, "duration", rep.Duration)

	switch {
	case len(rep.Abandoned) > 0:
		return rep, fmt.Errorf("%w: abandoned %s", ErrShutdownTimeout, strings.Join(rep.Abandoned, ", "))
	case !drained:
		return rep, fmt.Errorf("%w: drain exceeded %s", ErrShutdownTimeout, o.cfg.Shutdown.Grace)
	}
	return rep, nil
}

// waitUntil waits for ch to close, ctx to end or the deadline to pass, and
// reports whether ch closed.
func waitUntil(ctx context.Context, ch <-chan struct{}, deadline time.Time) bool {
	select {
	case <-ch:
		return true
	default:
	}
	t := time.NewTimer(time.Until(deadline))
	defer t.Stop()
	select {
	case <-ch:
		return true
	case <-ctx.Done():
		return false
	case <-t.C:
		return false
	}
}
