// internal/browser/session/executor.go
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// keyCodes maps the key identities the automation dispatches to their
// Windows virtual key codes, which CDP needs for the host page's handlers
// to recognize the event as a real keystroke.
var keyCodes = map[string]int64{
	"Tab":       9,
	"Enter":     13,
	"Escape":    27,
	"Backspace": 8,
	"ArrowDown": 40,
	"ArrowUp":   38,
}

// Evaluate runs a script in the page and unmarshals the result into out.
// Promises are awaited and exceptions are surfaced as errors.
func (s *Session) Evaluate(ctx context.Context, script string, out any) error {
	var raw json.RawMessage

	opCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	err := s.RunActions(opCtx,
		chromedp.Evaluate(script, &raw, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithReturnByValue(true).WithAwaitPromise(true).WithSilent(true)
		}),
	)
	if err != nil {
		if opCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("timeout evaluating script: %w", opCtx.Err())
		}
		return fmt.Errorf("script evaluation failed: %w", err)
	}

	if out == nil {
		return nil
	}
	if len(raw) == 0 || string(raw) == "null" || string(raw) == "undefined" {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to unmarshal evaluation result: %w (payload: %s)", err, string(raw))
	}
	return nil
}

// InsertText inserts text at the current focus through the Input domain, the
// CDP equivalent of the platform text-insertion primitive. The host page
// sees it exactly as IME/keyboard input, without per-key events.
func (s *Session) InsertText(ctx context.Context, text string) error {
	opCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.RunActions(opCtx, input.InsertText(text)); err != nil {
		return fmt.Errorf("insertText dispatch failed: %w", err)
	}
	return nil
}

// DispatchKeyDown dispatches a raw key-down event carrying the given key
// identity ("Tab", "Enter", ...) to whatever currently has focus.
func (s *Session) DispatchKeyDown(ctx context.Context, key string) error {
	p := input.DispatchKeyEvent(input.KeyDown).
		WithKey(key).
		WithCode(key)
	if code, ok := keyCodes[key]; ok {
		p = p.WithWindowsVirtualKeyCode(code).WithNativeVirtualKeyCode(code)
	}

	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.RunActions(opCtx, p); err != nil {
		return fmt.Errorf("key-down dispatch for %q failed: %w", key, err)
	}
	return nil
}

// SendKeys types a string through chromedp's key event pipeline (down, char
// and up events per rune).
func (s *Session) SendKeys(ctx context.Context, keys string) error {
	opCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.RunActions(opCtx, chromedp.KeyEvent(keys)); err != nil {
		return fmt.Errorf("key event dispatch failed: %w", err)
	}
	return nil
}

// Click dispatches a trusted click on the first element matching selector.
func (s *Session) Click(ctx context.Context, selector string) error {
	opCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.RunActions(opCtx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("click on %q failed: %w", selector, err)
	}
	return nil
}

// SetFileInput assigns local files to a file-selection element. This is the
// CDP path for populating <input type="file"> since page script cannot.
func (s *Session) SetFileInput(ctx context.Context, selector string, paths ...string) error {
	opCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := s.RunActions(opCtx, chromedp.SetUploadFiles(selector, paths, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("file input assignment on %q failed: %w", selector, err)
	}
	return nil
}

// OuterHTML returns the rendered markup of the first element matching
// selector.
func (s *Session) OuterHTML(ctx context.Context, selector string) (string, error) {
	var html string

	opCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err := s.RunActions(opCtx, chromedp.OuterHTML(selector, &html, chromedp.ByQuery))
	if err != nil {
		return "", fmt.Errorf("outerHTML read on %q failed: %w", selector, err)
	}
	return html, nil
}

// Location returns the page's current URL.
func (s *Session) Location(ctx context.Context) (string, error) {
	var loc string

	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.RunActions(opCtx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	return loc, nil
}

// Viewport returns the page's inner width and height in logical pixels.
func (s *Session) Viewport(ctx context.Context) (int64, int64, error) {
	var dims struct {
		W int64 `json:"w"`
		H int64 `json:"h"`
	}
	err := s.Evaluate(ctx, `({w: window.innerWidth, h: window.innerHeight})`, &dims)
	if err != nil {
		return 0, 0, err
	}
	if dims.W <= 0 || dims.H <= 0 {
		return 0, 0, fmt.Errorf("viewport has non-positive dimensions: %dx%d", dims.W, dims.H)
	}
	return dims.W, dims.H, nil
}

// JSEncode safely encodes a value for embedding into a script literal.
func JSEncode(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `""`
	}
	return string(b)
}
