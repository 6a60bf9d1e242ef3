// internal/browser/session/context.go
package session

import (
	"context"
	"time"
)

// CombineContext creates a context derived from ctx1 (the session context,
// which carries the CDP target information) that is canceled when either
// ctx1 or ctx2 (the operational context carrying a deadline) is canceled.
// Values and deadline are inherited from ctx1.
func CombineContext(ctx1, ctx2 context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(ctx1)

	go func() {
		select {
		case <-ctx2.Done():
			cancel()
		case <-combinedCtx.Done():
		}
	}()

	return combinedCtx, cancel
}

// valueOnlyContext inherits values from its parent but ignores the parent's
// deadline and cancellation signal.
type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }
func (valueOnlyContext) Done() <-chan struct{}                   { return nil }
func (valueOnlyContext) Err() error                              { return nil }

// Detach returns a context that keeps ctx's values (notably the CDP target)
// but outlives its cancellation. Used for cleanup actions against the
// browser after the operational context has ended.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
