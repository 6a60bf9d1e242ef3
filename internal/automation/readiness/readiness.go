// internal/automation/readiness/readiness.go

// Package readiness waits for the chat application to hydrate far enough to
// expose an editable composer. Chat hosts render a shell first and hydrate
// asynchronously after the load signal, so readiness is a poll against the
// locator rather than a one-shot check.
package readiness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/synthcheck-cli/internal/automation/locator"
	"github.com/xkilldash9x/synthcheck-cli/internal/automation/wait"
)

// ErrTimeout signals the input area never became available within the bound.
var ErrTimeout = errors.New("chat input not ready within deadline")

// TimeoutError wraps ErrTimeout with diagnostic context for operator
// debugging; it is the only externally observable effect of a readiness
// timeout besides the failure itself.
type TimeoutError struct {
	URL           string
	EditableCount int
	Waited        time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("chat input not ready after %s (url=%s, editable_elements=%d)",
		e.Waited, e.URL, e.EditableCount)
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// InputLocator is the slice of the locator the detector needs.
type InputLocator interface {
	Locate(ctx context.Context, role locator.Role) (locator.Handle, error)
}

// Diagnoser is the slice of the page used to gather timeout diagnostics.
type Diagnoser interface {
	Evaluate(ctx context.Context, script string, out any) error
	Location(ctx context.Context) (string, error)
}

// Detector polls for the composer after page load.
type Detector struct {
	page    Diagnoser
	locator InputLocator
	logger  *zap.Logger

	settle  time.Duration
	poll    time.Duration
	maxWait time.Duration
}

// New builds a detector. settle is the fixed post-load pause, poll the
// locator re-check interval, maxWait the hard deadline.
func New(page Diagnoser, loc InputLocator, settle, poll, maxWait time.Duration, logger *zap.Logger) *Detector {
	return &Detector{
		page:    page,
		locator: loc,
		logger:  logger.Named("readiness"),
		settle:  settle,
		poll:    poll,
		maxWait: maxWait,
	}
}

// AwaitReady blocks until the input area is locatable or the deadline
// passes. The caller has already driven navigation; the load signal (or its
// fallback) has fired by the time this runs.
func (d *Detector) AwaitReady(ctx context.Context) (locator.Handle, error) {
	start := time.Now()

	if err := wait.Settle(ctx, d.settle); err != nil {
		return locator.Handle{}, err
	}

	var found locator.Handle
	err := wait.Until(ctx, d.poll, d.maxWait, func(ctx context.Context) (bool, error) {
		h, err := d.locator.Locate(ctx, locator.RoleInputArea)
		if err != nil {
			if errors.Is(err, locator.ErrNotFound) {
				return false, nil
			}
			if ctx.Err() != nil {
				// The poll deadline expiring mid-lookup is the timeout
				// path; only a genuine cancellation aborts the wait.
				if errors.Is(ctx.Err(), context.Canceled) {
					return false, ctx.Err()
				}
				return false, nil
			}
			// Transient evaluation failures are part of hydration noise.
			d.logger.Debug("Input area lookup failed; still waiting.", zap.Error(err))
			return false, nil
		}
		found = h
		return true, nil
	})

	if err == nil {
		d.logger.Info("Chat input ready.",
			zap.Duration("waited", time.Since(start)),
			zap.String("element", found.Description))
		return found, nil
	}
	if !errors.Is(err, wait.ErrDeadline) {
		return locator.Handle{}, err
	}

	return locator.Handle{}, d.timeoutError(ctx, time.Since(start))
}

// timeoutError collects best-effort diagnostics about why the page never
// produced a usable composer.
func (d *Detector) timeoutError(ctx context.Context, waited time.Duration) *TimeoutError {
	diagCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	te := &TimeoutError{Waited: waited.Round(time.Millisecond)}

	if url, err := d.page.Location(diagCtx); err == nil {
		te.URL = url
	}
	var count int
	script := `document.querySelectorAll('[contenteditable="true"], textarea').length`
	if err := d.page.Evaluate(diagCtx, script, &count); err == nil {
		te.EditableCount = count
	}

	d.logger.Error("Readiness deadline exhausted.",
		zap.String("url", te.URL),
		zap.Int("editable_elements", te.EditableCount),
		zap.Duration("waited", waited))
	return te
}
