package pipeline

import (
	"context"
	"errors"
	"time"
)

// abandonGrace is how long a call may keep running after its context ended
// before the caller stops waiting for it.
const abandonGrace = 100 * time.Millisecond

// errAbandoned marks a call that ignored its context. The goroutine running
// it is left behind and its result discarded.
var errAbandoned = errors.New("call ignored cancellation and was abandoned")

// callWithDeadline runs fn with a context bounded by timeout. It returns
// when fn does, or abandonGrace after the context ended, whichever comes
// first.
func callWithDeadline[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		v   T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn(callCtx)
		done <- outcome{v, err}
	}()

	select {
	case o := <-done:
		return o.v, o.err
	case <-callCtx.Done():
	}

	grace := time.NewTimer(abandonGrace)
	defer grace.Stop()
	select {
	case o := <-done:
		if o.err != nil {
			return o.v, o.err
		}
		var zero T
		return zero, callCtx.Err()
	case <-grace.C:
		var zero T
		return zero, errors.Join(errAbandoned, callCtx.Err())
	}
}
