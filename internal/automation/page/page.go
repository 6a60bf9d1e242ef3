// internal/automation/page/page.go

// Package page defines the narrow contract between the automation flow and
// the live browser tab. The automation packages only ever touch the host
// page through this interface; the chromedp-backed session implements it.
package page

import "context"

// Page is the set of primitives the DOM automation needs from a browser
// tab. Every method re-resolves selectors against the live DOM, because the
// host page may re-render at any time between calls.
type Page interface {
	// Navigate loads a URL and returns once the load signal fired or the
	// fallback timeout elapsed.
	Navigate(ctx context.Context, url string) error

	// Evaluate runs a script in the page, awaiting promises, and unmarshals
	// the JSON result into out (out may be nil to discard it).
	Evaluate(ctx context.Context, script string, out any) error

	// InsertText inserts text at the current focus via the platform's
	// native text-insertion primitive.
	InsertText(ctx context.Context, text string) error

	// DispatchKeyDown dispatches a synthetic key-down with the given key
	// identity to the focused element.
	DispatchKeyDown(ctx context.Context, key string) error

	// Click dispatches a trusted click on the first match of selector.
	Click(ctx context.Context, selector string) error

	// SetFileInput assigns local files to a file-selection element.
	SetFileInput(ctx context.Context, selector string, paths ...string) error

	// OuterHTML returns the rendered markup of the first match of selector.
	OuterHTML(ctx context.Context, selector string) (string, error)

	// Location returns the page's current URL.
	Location(ctx context.Context) (string, error)

	// Viewport returns the page's inner dimensions in logical pixels.
	Viewport(ctx context.Context) (int64, int64, error)
}
