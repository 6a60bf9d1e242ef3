// internal/automation/locator/mocks_test.go
package locator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// fakePage implements Evaluator with scripted candidate lists per selector.
type fakePage struct {
	mu sync.Mutex

	viewportW int64
	viewportH int64

	// candidates maps a selector to the layout metrics its matches report.
	candidates map[string][]Candidate
	// evalErr, when set for a selector, fails its candidate query.
	evalErr map[string]error
	// failTagging makes every tagging attempt report a vanished element.
	failTagging bool

	// queried records the selectors evaluated, in order.
	queried []string
	// tagged records each (selector, index) pair that was stamped.
	tagged []string
}

func newFakePage() *fakePage {
	return &fakePage{
		viewportW:  1280,
		viewportH:  900,
		candidates: map[string][]Candidate{},
		evalErr:    map[string]error{},
	}
}

func (f *fakePage) Viewport(context.Context) (int64, int64, error) {
	return f.viewportW, f.viewportH, nil
}

func (f *fakePage) Evaluate(_ context.Context, script string, out any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if strings.Contains(script, "setAttribute") {
		// Tagging script.
		if f.failTagging {
			return unmarshalInto(out, false)
		}
		f.tagged = append(f.tagged, script)
		return unmarshalInto(out, true)
	}

	// Candidate query: find which registered selector this script embeds.
	for sel, cands := range f.candidates {
		if strings.Contains(script, jsEncode(sel)) {
			f.queried = append(f.queried, sel)
			if err := f.evalErr[sel]; err != nil {
				return err
			}
			return unmarshalInto(out, cands)
		}
	}
	// Unregistered selectors match nothing.
	for sel, err := range f.evalErr {
		if strings.Contains(script, jsEncode(sel)) {
			f.queried = append(f.queried, sel)
			return err
		}
	}
	f.queried = append(f.queried, scriptSelector(script))
	return unmarshalInto(out, []Candidate{})
}

// scriptSelector pulls the embedded selector out of a candidate script for
// order assertions on unregistered selectors.
func scriptSelector(script string) string {
	start := strings.LastIndex(script, `})(`)
	if start < 0 {
		return script
	}
	frag := strings.TrimSuffix(strings.TrimSpace(script[start+3:]), ");")
	var sel string
	if err := json.Unmarshal([]byte(frag), &sel); err != nil {
		return frag
	}
	return sel
}

func unmarshalInto(out, v any) error {
	if out == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("mock marshal: %w", err)
	}
	return json.Unmarshal(b, out)
}
