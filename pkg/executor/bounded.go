package executor

import (
	"context"
	"time"

	"github.com/opsmux/opsmux/pkg/errors"
	"github.com/opsmux/opsmux/pkg/task"
)

// outcome is the single-use handoff slot between the worker and the
// caller. The worker writes it at most once; the caller reads it at
// most once.
type outcome struct {
	raw *task.Raw
	err error
}

// runBounded executes fn on its own goroutine and waits up to timeout
// for it to finish. If the deadline elapses first, a timeout error is
// returned and the worker is abandoned: it keeps running to completion
// in the background and its eventual result or error is discarded.
//
// This is a best-effort, leak-tolerant timeout. True cancellation
// requires deadline-aware client calls; fn receives a context derived
// from ctx with the deadline attached so cooperating clients can stop
// early, but nothing forces them to.
func runBounded(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (*task.Raw, error)) (*task.Raw, error) {
	// Buffered so an abandoned worker's send never blocks.
	done := make(chan outcome, 1)

	workerCtx, cancel := context.WithTimeout(ctx, timeout)

	go func() {
		defer cancel()
		raw, err := fn(workerCtx)
		done <- outcome{raw: raw, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-done:
		return out.raw, out.err
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "execution canceled by caller")
	case <-timer.C:
		return nil, errors.Newf(errors.ErrorTypeTimeout, "handler did not complete within %s", timeout)
	}
}
