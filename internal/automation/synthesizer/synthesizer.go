// internal/automation/synthesizer/synthesizer.go

// Package synthesizer simulates user input against live elements so the
// host page's own event handlers react as if a human acted. It keeps no
// buffer of its own; all state lives in the host page.
package synthesizer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/synthcheck-cli/api/schemas"
	"github.com/xkilldash9x/synthcheck-cli/internal/automation/wait"
)

// Input is the slice of the page the synthesizer drives.
type Input interface {
	Evaluate(ctx context.Context, script string, out any) error
	InsertText(ctx context.Context, text string) error
	DispatchKeyDown(ctx context.Context, key string) error
	Click(ctx context.Context, selector string) error
}

// Synthesizer dispatches keystrokes, paste and drag-drop events.
type Synthesizer struct {
	page     Input
	keyDelay time.Duration
	logger   *zap.Logger

	// sleep is swappable in tests; production uses wait.Settle.
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a synthesizer. keyDelay is the fixed inter-character interval
// emulating human cadence and giving the host a chance to react per key.
func New(page Input, keyDelay time.Duration, logger *zap.Logger) *Synthesizer {
	return &Synthesizer{
		page:     page,
		keyDelay: keyDelay,
		logger:   logger.Named("synthesizer"),
		sleep:    wait.Settle,
	}
}

// Focus clicks the element and focuses it, the way a user would place the
// caret before typing.
func (s *Synthesizer) Focus(ctx context.Context, selector string) error {
	if err := s.page.Click(ctx, selector); err != nil {
		// Some overlays swallow trusted clicks; programmatic focus below
		// still gets the caret placed.
		s.logger.Debug("Click before focus failed; focusing directly.", zap.Error(err))
	}
	return s.focusScript(ctx, selector)
}

func (s *Synthesizer) focusScript(ctx context.Context, selector string) error {
	script := fmt.Sprintf(`
		(function(sel) {
			const el = document.querySelector(sel);
			if (!el) return false;
			el.focus();
			return document.activeElement === el || el.contains(document.activeElement);
		})(%s);`, jsEncode(selector))

	var focused bool
	if err := s.page.Evaluate(ctx, script, &focused); err != nil {
		return fmt.Errorf("focus on %q failed: %w", selector, err)
	}
	if !focused {
		return fmt.Errorf("element %q did not take focus", selector)
	}
	return nil
}

// Type focuses the element and inserts text one character at a time. Each
// character goes through the native insertion primitive followed by a
// synthetic input event, then the fixed cadence pause. Strictly sequential;
// no character is skipped.
func (s *Synthesizer) Type(ctx context.Context, selector, text string) error {
	if err := s.focusScript(ctx, selector); err != nil {
		return err
	}

	for _, r := range text {
		ch := string(r)
		if err := s.page.InsertText(ctx, ch); err != nil {
			return fmt.Errorf("typing %q failed: %w", ch, err)
		}
		if err := s.dispatchInputEvent(ctx, selector, ch); err != nil {
			return err
		}
		if err := s.sleep(ctx, s.keyDelay); err != nil {
			return err
		}
	}
	return nil
}

func (s *Synthesizer) dispatchInputEvent(ctx context.Context, selector, data string) error {
	script := fmt.Sprintf(`
		(function(sel, data) {
			const el = document.querySelector(sel);
			if (!el) return false;
			el.dispatchEvent(new InputEvent('input', {bubbles: true, inputType: 'insertText', data: data}));
			return true;
		})(%s, %s);`, jsEncode(selector), jsEncode(data))

	if err := s.page.Evaluate(ctx, script, nil); err != nil {
		return fmt.Errorf("input event dispatch failed: %w", err)
	}
	return nil
}

// PressKey focuses the element and dispatches a synthetic key-down carrying
// the given key identity ("Tab", "Enter", ...).
func (s *Synthesizer) PressKey(ctx context.Context, selector, key string) error {
	if err := s.focusScript(ctx, selector); err != nil {
		return err
	}
	if err := s.page.DispatchKeyDown(ctx, key); err != nil {
		return fmt.Errorf("key press %q failed: %w", key, err)
	}
	return nil
}

// Paste dispatches a synthetic paste event carrying the file payload at the
// element. Chat composers that accept pasted screenshots pick the file off
// the event's clipboardData.
func (s *Synthesizer) Paste(ctx context.Context, selector string, payload schemas.FilePayload) error {
	script := fmt.Sprintf(`
		(function(sel, name, mime, b64) {
			const el = document.querySelector(sel);
			if (!el) return false;
			%s
			el.dispatchEvent(new ClipboardEvent('paste', {bubbles: true, cancelable: true, clipboardData: dt}));
			return true;
		})(%s, %s, %s, %s);`,
		fileFromBase64JS,
		jsEncode(selector), jsEncode(payload.Name), jsEncode(payload.MIME),
		jsEncode(base64.StdEncoding.EncodeToString(payload.Data)))

	var dispatched bool
	if err := s.page.Evaluate(ctx, script, &dispatched); err != nil {
		return fmt.Errorf("paste dispatch failed: %w", err)
	}
	if !dispatched {
		return fmt.Errorf("paste target %q not found", selector)
	}
	return nil
}

// DragDrop replays the dragenter, dragover, drop sequence carrying the file
// payload against each candidate target in order, with a short settle
// between events so the host's drag handlers keep up. At least one target
// must receive the full sequence; a drop that never landed is an error, not
// a silent no-op.
func (s *Synthesizer) DragDrop(ctx context.Context, selectors []string, payload schemas.FilePayload, settle time.Duration) error {
	b64 := base64.StdEncoding.EncodeToString(payload.Data)

	delivered := 0
	for _, selector := range selectors {
		landed := true
		for _, event := range []string{"dragenter", "dragover", "drop"} {
			ok, err := s.dispatchDragEvent(ctx, selector, event, payload, b64)
			if err != nil {
				return err
			}
			if !ok {
				// Target absent; skip its remaining events.
				s.logger.Debug("Drag target not present.", zap.String("selector", selector))
				landed = false
				break
			}
			if err := s.sleep(ctx, settle); err != nil {
				return err
			}
		}
		if landed {
			delivered++
		}
	}
	if delivered == 0 {
		return fmt.Errorf("no drag target present among %d candidates", len(selectors))
	}
	return nil
}

func (s *Synthesizer) dispatchDragEvent(ctx context.Context, selector, event string, payload schemas.FilePayload, b64 string) (bool, error) {
	script := fmt.Sprintf(`
		(function(sel, name, mime, b64, type) {
			const el = document.querySelector(sel);
			if (!el) return false;
			%s
			el.dispatchEvent(new DragEvent(type, {bubbles: true, cancelable: true, dataTransfer: dt}));
			return true;
		})(%s, %s, %s, %s, %s);`,
		fileFromBase64JS,
		jsEncode(selector), jsEncode(payload.Name), jsEncode(payload.MIME),
		jsEncode(b64), jsEncode(event))

	var dispatched bool
	if err := s.page.Evaluate(ctx, script, &dispatched); err != nil {
		return false, fmt.Errorf("%s dispatch on %q failed: %w", event, selector, err)
	}
	return dispatched, nil
}

// SyntheticClick dispatches both a programmatic click and a bubbling click
// event, for handlers that ignore one or the other.
func (s *Synthesizer) SyntheticClick(ctx context.Context, selector string) error {
	script := fmt.Sprintf(`
		(function(sel) {
			const el = document.querySelector(sel);
			if (!el) return false;
			el.click();
			el.dispatchEvent(new MouseEvent('click', {bubbles: true, cancelable: true, view: window}));
			return true;
		})(%s);`, jsEncode(selector))

	var clicked bool
	if err := s.page.Evaluate(ctx, script, &clicked); err != nil {
		return fmt.Errorf("synthetic click on %q failed: %w", selector, err)
	}
	if !clicked {
		return fmt.Errorf("click target %q not found", selector)
	}
	return nil
}

// fileFromBase64JS reconstructs a File object from base64 bytes and wraps
// it in a DataTransfer named dt. Shared by the paste and drag dispatchers.
const fileFromBase64JS = `
			const bytes = atob(b64);
			const arr = new Uint8Array(bytes.length);
			for (let i = 0; i < bytes.length; i++) arr[i] = bytes.charCodeAt(i);
			const file = new File([arr], name, {type: mime});
			const dt = new DataTransfer();
			dt.items.add(file);`

func jsEncode(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `""`
	}
	return string(b)
}
