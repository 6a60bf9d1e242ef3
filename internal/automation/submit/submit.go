// internal/automation/submit/submit.go

// Package submit fires the composed message. Send controls are the least
// stable part of chat UIs, so the trigger stacks three heuristics and
// reports honestly when none of them land; the operator then presses send
// themselves rather than the run guessing at a random button.
package submit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/synthcheck-cli/internal/automation/locator"
)

// PageActions is the slice of the page the trigger drives.
type PageActions interface {
	Evaluate(ctx context.Context, script string, out any) error
	Click(ctx context.Context, selector string) error
}

// Clicker dispatches synthetic clicks for handlers that ignore trusted ones.
type Clicker interface {
	SyntheticClick(ctx context.Context, selector string) error
}

// Finder locates the send control through the selector chains.
type Finder interface {
	Locate(ctx context.Context, role locator.Role) (locator.Handle, error)
}

// Trigger attempts to press the host's send control.
type Trigger struct {
	page    PageActions
	synth   Clicker
	locator Finder
	logger  *zap.Logger
}

func New(page PageActions, synth Clicker, loc Finder, logger *zap.Logger) *Trigger {
	return &Trigger{
		page:    page,
		synth:   synth,
		locator: loc,
		logger:  logger.Named("submit"),
	}
}

// Send tries, in order: the selector-chain send button, a label scan over
// visible buttons, and finally the rightmost button geometrically aligned
// with the input area. It returns false with a nil error when nothing
// plausible was found; that is the manual-prompt path, not a failure.
func (t *Trigger) Send(ctx context.Context, input locator.Handle) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	if ok, err := t.viaLocator(ctx); err != nil || ok {
		return ok, err
	}
	if ok, err := t.viaLabelScan(ctx); err != nil || ok {
		return ok, err
	}
	if ok, err := t.viaGeometry(ctx, input); err != nil || ok {
		return ok, err
	}

	t.logger.Warn("No send control found; the operator must press send manually.")
	return false, nil
}

func (t *Trigger) viaLocator(ctx context.Context) (bool, error) {
	h, err := t.locator.Locate(ctx, locator.RoleSendButton)
	if err != nil {
		if errors.Is(err, locator.ErrNotFound) {
			return false, nil
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		t.logger.Debug("Send button lookup failed.", zap.Error(err))
		return false, nil
	}
	return true, t.click(ctx, h.Selector)
}

// click fires a trusted click and, when that fails, falls back to a
// synthetic one; some send controls sit under pointer-event overlays.
func (t *Trigger) click(ctx context.Context, selector string) error {
	if err := t.page.Click(ctx, selector); err == nil {
		return nil
	}
	if err := t.synth.SyntheticClick(ctx, selector); err != nil {
		return fmt.Errorf("send control click failed: %w", err)
	}
	return nil
}

// viaLabelScan walks every visible button-like element and clicks the first
// whose accessible label or text reads like a send action.
func (t *Trigger) viaLabelScan(ctx context.Context) (bool, error) {
	script := `
		(function() {
			const re = /\b(send|submit)\b/i;
			const els = document.querySelectorAll('button, [role="button"]');
			for (const el of els) {
				const rect = el.getBoundingClientRect();
				if (rect.width === 0 || rect.height === 0) continue;
				const label = (el.getAttribute('aria-label') || '') + ' ' +
					(el.getAttribute('title') || '') + ' ' + (el.textContent || '');
				if (!re.test(label)) continue;
				if (el.disabled || el.getAttribute('aria-disabled') === 'true') continue;
				el.click();
				el.dispatchEvent(new MouseEvent('click', {bubbles: true, cancelable: true, view: window}));
				return true;
			}
			return false;
		})();`

	var clicked bool
	if err := t.page.Evaluate(ctx, script, &clicked); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		t.logger.Debug("Send label scan failed.", zap.Error(err))
		return false, nil
	}
	if clicked {
		t.logger.Debug("Send control found by label scan.")
	}
	return clicked, nil
}

// viaGeometry clicks the rightmost icon-sized button whose vertical center
// falls within the input area's band; chat composers put send at the right
// end of the input row.
func (t *Trigger) viaGeometry(ctx context.Context, input locator.Handle) (bool, error) {
	if input.Selector == "" {
		return false, nil
	}

	script := fmt.Sprintf(`
		(function(inputSel) {
			const anchor = document.querySelector(inputSel);
			if (!anchor) return false;
			const band = anchor.getBoundingClientRect();
			let best = null;
			let bestX = -Infinity;
			for (const el of document.querySelectorAll('button, [role="button"]')) {
				const r = el.getBoundingClientRect();
				if (r.width === 0 || r.height === 0) continue;
				if (r.width > 100 || r.height > 100) continue;
				const cy = r.y + r.height / 2;
				if (cy < band.y - r.height || cy > band.y + band.height + r.height) continue;
				if (el.disabled || el.getAttribute('aria-disabled') === 'true') continue;
				if (r.x > bestX) { best = el; bestX = r.x; }
			}
			if (!best) return false;
			best.click();
			best.dispatchEvent(new MouseEvent('click', {bubbles: true, cancelable: true, view: window}));
			return true;
		})(%s);`, jsEncode(input.Selector))

	var clicked bool
	if err := t.page.Evaluate(ctx, script, &clicked); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		t.logger.Debug("Send geometry scan failed.", zap.Error(err))
		return false, nil
	}
	if clicked {
		t.logger.Debug("Send control found by geometry.")
	}
	return clicked, nil
}

func jsEncode(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `""`
	}
	return string(b)
}
