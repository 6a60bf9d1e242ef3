// internal/automation/wait/wait.go

// Package wait provides the two suspension primitives every other
// automation component builds on: a fixed-duration settle and a generic
// poll-until loop. Centralizing them keeps retry/timeout behavior uniform
// and testable instead of scattering ad hoc polling through the flow.
package wait

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// ErrDeadline is returned by Until when the condition did not hold before
// the timeout elapsed.
var ErrDeadline = errors.New("condition not met before deadline")

// Condition reports whether polling can stop. A non-nil error aborts the
// loop immediately.
type Condition func(ctx context.Context) (bool, error)

// Settle suspends for the given duration, honoring context cancellation.
// Settles exist to let the host page's own asynchronous handlers finish
// reacting before the automation proceeds.
func Settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Until polls cond at the given interval until it holds, it fails, or the
// timeout elapses. The first evaluation happens immediately; a rate limiter
// paces the rest so slow conditions do not compress the interval.
func Until(ctx context.Context, interval, timeout time.Duration, cond Condition) error {
	if interval <= 0 {
		return fmt.Errorf("wait: poll interval must be positive, got %v", interval)
	}

	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	lim := rate.NewLimiter(rate.Every(interval), 1)
	for {
		ok, err := cond(pollCtx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		if err := lim.Wait(pollCtx); err != nil {
			// Distinguish the poll deadline from cancellation of the
			// caller's context.
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return ErrDeadline
		}
	}
}
