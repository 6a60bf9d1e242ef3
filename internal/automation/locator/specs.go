// internal/automation/locator/specs.go
package locator

import "strings"

// Geometry bounds for the role predicates, in logical pixels.
const (
	inputAreaMinWidth  = 100
	inputAreaMinHeight = 20
	buttonMinSize      = 20
	buttonMaxSize      = 100
	surfaceMinWidth    = 40
	surfaceMinHeight   = 10
)

// DefaultSpecs returns the strategy chains for every role, most specific
// selector first. Later entries are progressively more generic fallbacks
// for when the host page's markup drifts.
func DefaultSpecs() map[Role]Spec {
	return map[Role]Spec{
		RoleInputArea: {
			Role: RoleInputArea,
			Strategies: []Strategy{
				{Selector: `div.ql-editor[contenteditable="true"]`, Note: "quill editor"},
				{Selector: `rich-textarea div[contenteditable="true"]`, Note: "rich-textarea wrapper"},
				{Selector: `div[contenteditable="true"][role="textbox"]`, Note: "aria textbox"},
				{Selector: `div[contenteditable="true"]`, Note: "any contenteditable"},
				{Selector: `textarea`, Note: "plain textarea fallback"},
			},
		},
		RoleAddButton: {
			Role: RoleAddButton,
			Strategies: []Strategy{
				{Selector: `button[aria-label*="upload" i]`, Note: "labeled upload"},
				{Selector: `button[aria-label*="attach" i]`, Note: "labeled attach"},
				{Selector: `button[aria-label*="add" i]`, Note: "labeled add"},
				{Selector: `[role="button"][aria-label*="add" i]`, Note: "aria button"},
			},
		},
		RoleFileInput: {
			Role: RoleFileInput,
			Strategies: []Strategy{
				{Selector: `input[type="file"][accept*="image"]`, Note: "image-scoped chooser"},
				{Selector: `input[type="file"]`, Note: "any file chooser"},
			},
		},
		RoleSendButton: {
			Role: RoleSendButton,
			Strategies: []Strategy{
				{Selector: `button[aria-label*="send" i]`, Note: "labeled send"},
				{Selector: `button.send-button`, Note: "send class"},
				{Selector: `[role="button"][aria-label*="send" i]`, Note: "aria send"},
				{Selector: `button[type="submit"]`, Note: "form submit"},
			},
		},
		RoleSuggestionSurface: {
			Role: RoleSuggestionSurface,
			Strategies: []Strategy{
				{Selector: `[role="listbox"]`, Note: "aria listbox"},
				{Selector: `[role="menu"]`, Note: "aria menu"},
				{Selector: `.cdk-overlay-container .cdk-overlay-pane`, Note: "cdk overlay pane"},
				{Selector: `[class*="overlay"] [class*="pane"]`, Note: "generic overlay pane"},
			},
		},
	}
}

func defaultPredicates() map[Role]Predicate {
	return map[Role]Predicate{
		RoleInputArea:         InputAreaPredicate,
		RoleAddButton:         AddButtonPredicate,
		RoleFileInput:         FileInputPredicate,
		RoleSendButton:        SendButtonPredicate,
		RoleSuggestionSurface: SuggestionSurfacePredicate,
	}
}

// InputAreaPredicate accepts a visible element big enough to be the
// composer rather than a stray editable fragment.
func InputAreaPredicate(c Candidate, _ Viewport) bool {
	return c.Visible && c.W > inputAreaMinWidth && c.H > inputAreaMinHeight
}

// AddButtonPredicate accepts an icon-sized control in the lower third of
// the viewport, where the composer toolbar lives.
func AddButtonPredicate(c Candidate, vp Viewport) bool {
	if !c.Visible || !iconSized(c) {
		return false
	}
	return centerY(c) > vp.H*2/3
}

// SendButtonPredicate accepts an icon-sized control in the lower third or
// the right half of the viewport.
func SendButtonPredicate(c Candidate, vp Viewport) bool {
	if !c.Visible || !iconSized(c) {
		return false
	}
	return centerY(c) > vp.H*2/3 || centerX(c) > vp.W/2
}

// FileInputPredicate accepts any file-selection element. File choosers are
// routinely rendered invisible, so the visibility check is deliberately
// skipped for this role.
func FileInputPredicate(c Candidate, _ Viewport) bool {
	return strings.EqualFold(c.Tag, "input")
}

// SuggestionSurfacePredicate accepts a visible, non-empty pane large enough
// to be an autocomplete overlay.
func SuggestionSurfacePredicate(c Candidate, _ Viewport) bool {
	return c.Visible && c.HasContent && c.W > surfaceMinWidth && c.H > surfaceMinHeight
}

func iconSized(c Candidate) bool {
	return c.W >= buttonMinSize && c.W <= buttonMaxSize &&
		c.H >= buttonMinSize && c.H <= buttonMaxSize
}

func centerX(c Candidate) float64 { return c.X + c.W/2 }
func centerY(c Candidate) float64 { return c.Y + c.H/2 }
