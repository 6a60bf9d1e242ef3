// internal/automation/locator/locator.go

// Package locator finds the chat application's UI elements by logical role.
// The host page's markup is unversioned and changes without notice, so each
// role carries an ordered chain of selector strategies instead of a single
// selector; candidates are then filtered by role-specific geometry
// predicates evaluated against the live layout.
package locator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNotFound signals that no strategy in a role's chain yielded an
// accepted candidate.
var ErrNotFound = errors.New("no strategy yielded an accepted element")

// Role names one logical UI element of the chat application.
type Role string

const (
	RoleInputArea         Role = "input_area"
	RoleAddButton         Role = "add_button"
	RoleFileInput         Role = "file_input"
	RoleSendButton        Role = "send_button"
	RoleSuggestionSurface Role = "suggestion_surface"
)

// Strategy is one selector attempt in a role's fallback chain.
type Strategy struct {
	Selector string
	// Note records which page variant the selector targets.
	Note string
}

// Spec is the immutable, ordered strategy chain for one role. Specs are
// never tied to a DOM snapshot; every Locate re-evaluates them because the
// page may have re-rendered since the last call.
type Spec struct {
	Role       Role
	Strategies []Strategy
}

// Candidate carries the layout metrics of one element matched in-page.
type Candidate struct {
	Index      int     `json:"index"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	W          float64 `json:"w"`
	H          float64 `json:"h"`
	Visible    bool    `json:"visible"`
	Label      string  `json:"label"`
	Tag        string  `json:"tag"`
	HasContent bool    `json:"hasContent"`
}

// Viewport holds the page's inner dimensions for positional predicates.
type Viewport struct {
	W float64
	H float64
}

// Handle addresses an accepted element. The selector targets a unique tag
// attribute stamped onto the element at locate time, so follow-up actions
// hit the same node even after unrelated re-renders.
type Handle struct {
	Role        Role
	Selector    string
	Description string
}

// Predicate decides whether a candidate is acceptable for a role.
type Predicate func(c Candidate, vp Viewport) bool

// Evaluator is the slice of the page the locator needs.
type Evaluator interface {
	Evaluate(ctx context.Context, script string, out any) error
	Viewport(ctx context.Context) (int64, int64, error)
}

// tagAttribute marks accepted elements so handles survive re-renders of
// surrounding markup.
const tagAttribute = "data-sc-locator"

// Locator evaluates role specs against a live page.
type Locator struct {
	page       Evaluator
	specs      map[Role]Spec
	predicates map[Role]Predicate
	logger     *zap.Logger
}

// New builds a locator with the default role specs and predicates.
func New(p Evaluator, logger *zap.Logger) *Locator {
	return &Locator{
		page:       p,
		specs:      DefaultSpecs(),
		predicates: defaultPredicates(),
		logger:     logger.Named("locator"),
	}
}

// Locate evaluates the role's strategies in declared order and returns the
// first candidate, in DOM order, accepted by the role's predicate.
func (l *Locator) Locate(ctx context.Context, role Role) (Handle, error) {
	spec, ok := l.specs[role]
	if !ok {
		return Handle{}, fmt.Errorf("locator: unknown role %q", role)
	}
	pred := l.predicates[role]

	w, h, err := l.page.Viewport(ctx)
	if err != nil {
		return Handle{}, fmt.Errorf("locator: failed to read viewport: %w", err)
	}
	vp := Viewport{W: float64(w), H: float64(h)}

	for _, strat := range spec.Strategies {
		cands, err := l.candidates(ctx, strat.Selector)
		if err != nil {
			if ctx.Err() != nil {
				return Handle{}, ctx.Err()
			}
			l.logger.Debug("Strategy evaluation failed; trying next.",
				zap.String("role", string(role)),
				zap.String("selector", strat.Selector),
				zap.Error(err))
			continue
		}

		for _, c := range cands {
			if !pred(c, vp) {
				continue
			}
			handle, err := l.tag(ctx, role, strat.Selector, c)
			if err != nil {
				if ctx.Err() != nil {
					return Handle{}, ctx.Err()
				}
				// The element vanished between discovery and tagging;
				// keep scanning.
				l.logger.Debug("Failed to tag candidate; trying next.",
					zap.String("role", string(role)), zap.Error(err))
				continue
			}
			l.logger.Debug("Located element.",
				zap.String("role", string(role)),
				zap.String("selector", strat.Selector),
				zap.String("label", c.Label))
			return handle, nil
		}
	}

	return Handle{}, fmt.Errorf("locator: role %q: %w", role, ErrNotFound)
}

// candidates gathers layout metrics for every match of selector.
func (l *Locator) candidates(ctx context.Context, selector string) ([]Candidate, error) {
	script := fmt.Sprintf(`
		(function(sel) {
			const out = [];
			document.querySelectorAll(sel).forEach(function(el, i) {
				const r = el.getBoundingClientRect();
				const st = window.getComputedStyle(el);
				out.push({
					index: i,
					x: r.left, y: r.top, w: r.width, h: r.height,
					visible: r.width > 0 && r.height > 0 &&
						st.display !== 'none' && st.visibility !== 'hidden' && st.opacity !== '0',
					label: (el.getAttribute('aria-label') || el.getAttribute('title') || el.textContent || '').trim().slice(0, 64),
					tag: el.tagName.toLowerCase(),
					hasContent: (el.textContent || '').trim().length > 0 || el.childElementCount > 0
				});
			});
			return out;
		})(%s);`, jsEncode(selector))

	var cands []Candidate
	if err := l.page.Evaluate(ctx, script, &cands); err != nil {
		return nil, err
	}
	return cands, nil
}

// tag stamps the accepted candidate with a unique attribute and returns a
// handle addressing it.
func (l *Locator) tag(ctx context.Context, role Role, selector string, c Candidate) (Handle, error) {
	id := uuid.New().String()
	script := fmt.Sprintf(`
		(function(sel, idx, id) {
			const el = document.querySelectorAll(sel)[idx];
			if (!el) return false;
			el.setAttribute(%s, id);
			return true;
		})(%s, %d, %s);`,
		jsEncode(tagAttribute), jsEncode(selector), c.Index, jsEncode(id))

	var tagged bool
	if err := l.page.Evaluate(ctx, script, &tagged); err != nil {
		return Handle{}, err
	}
	if !tagged {
		return Handle{}, fmt.Errorf("locator: candidate %d of %q disappeared before tagging", c.Index, selector)
	}

	desc := c.Tag
	if c.Label != "" {
		desc = fmt.Sprintf("%s %q", c.Tag, c.Label)
	}
	return Handle{
		Role:        role,
		Selector:    fmt.Sprintf(`[%s="%s"]`, tagAttribute, id),
		Description: desc,
	}, nil
}

// jsEncode safely embeds a value into a script literal.
func jsEncode(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `""`
	}
	return string(b)
}
