// internal/automation/mention/mention.go

// Package mention drives the composer's "@" autocomplete: it types the
// mention trigger, waits for the suggestion surface, commits the highlighted
// entry and verifies the host materialized it before the question text goes
// in. The host owns the suggestion list; we only observe and nudge it.
package mention

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/synthcheck-cli/internal/automation/locator"
	"github.com/xkilldash9x/synthcheck-cli/internal/automation/wait"
)

// Typist is the slice of the input synthesizer the resolver needs.
type Typist interface {
	Focus(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
	PressKey(ctx context.Context, selector, key string) error
}

// SurfaceLocator finds the autocomplete overlay.
type SurfaceLocator interface {
	Locate(ctx context.Context, role locator.Role) (locator.Handle, error)
}

// Markup reads back the composer's rendered state for commit verification.
type Markup interface {
	OuterHTML(ctx context.Context, selector string) (string, error)
}

// Options carries the timing and retry knobs for one resolver.
type Options struct {
	// Token is the full mention as it must read once committed, including
	// the leading "@". Case matters; hosts resolve mentions case-exactly.
	Token string
	// Filter is what gets typed after "@" to narrow the suggestion list.
	Filter string

	SuggestionPoll    time.Duration
	SuggestionTimeout time.Duration
	CommitSettle      time.Duration
	// CommitRetries is how many extra commit attempts follow the first.
	CommitRetries int
}

// Resolver commits a mention into the composer and appends the question.
type Resolver struct {
	typist  Typist
	locator SurfaceLocator
	page    Markup
	opts    Options
	logger  *zap.Logger
}

func New(typist Typist, loc SurfaceLocator, page Markup, opts Options, logger *zap.Logger) *Resolver {
	return &Resolver{
		typist:  typist,
		locator: loc,
		page:    page,
		opts:    opts,
		logger:  logger.Named("mention"),
	}
}

// Compose types the mention, commits it, then types the question after it.
// A mention that never visibly commits is logged and tolerated; the message
// still reads correctly as plain text and the run must not stall on a
// cosmetic difference.
func (r *Resolver) Compose(ctx context.Context, input locator.Handle, question string) error {
	if err := r.typist.Focus(ctx, input.Selector); err != nil {
		return err
	}
	if err := wait.Settle(ctx, r.opts.CommitSettle); err != nil {
		return err
	}

	if err := r.typist.Type(ctx, input.Selector, "@"); err != nil {
		return err
	}
	r.awaitSurface(ctx)

	if err := r.typist.Type(ctx, input.Selector, r.opts.Filter); err != nil {
		return err
	}
	if err := wait.Settle(ctx, r.opts.CommitSettle); err != nil {
		return err
	}
	// The filter narrows the list and the overlay may re-render; give it a
	// second chance to show before committing.
	r.awaitSurface(ctx)

	committed, err := r.commit(ctx, input)
	if err != nil {
		return err
	}
	if !committed {
		r.logger.Warn("Mention never rendered as committed; continuing with plain text.",
			zap.String("token", r.opts.Token))
	}

	return r.typist.Type(ctx, input.Selector, " "+question)
}

// awaitSurface polls for the suggestion overlay. Its absence is not fatal:
// some hosts commit the top suggestion on Tab without ever showing one.
func (r *Resolver) awaitSurface(ctx context.Context) {
	err := wait.Until(ctx, r.opts.SuggestionPoll, r.opts.SuggestionTimeout, func(ctx context.Context) (bool, error) {
		_, err := r.locator.Locate(ctx, locator.RoleSuggestionSurface)
		if err != nil {
			if errors.Is(err, locator.ErrNotFound) {
				return false, nil
			}
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		r.logger.Warn("Suggestion surface never appeared; committing blind.", zap.Error(err))
	}
}

// commit presses Tab and checks whether the host turned the typed token into
// a committed mention, retrying the configured number of extra times.
func (r *Resolver) commit(ctx context.Context, input locator.Handle) (bool, error) {
	attempts := 1 + r.opts.CommitRetries
	for i := 0; i < attempts; i++ {
		if err := r.typist.PressKey(ctx, input.Selector, "Tab"); err != nil {
			return false, err
		}
		if err := wait.Settle(ctx, r.opts.CommitSettle); err != nil {
			return false, err
		}

		html, err := r.page.OuterHTML(ctx, input.Selector)
		if err != nil {
			r.logger.Debug("Commit verification read failed.", zap.Error(err))
			continue
		}
		if Committed(html, r.opts.Token) {
			r.logger.Debug("Mention committed.", zap.Int("attempt", i+1))
			return true, nil
		}
		if i+1 < attempts {
			r.logger.Debug("Mention not committed yet; retrying.", zap.Int("attempt", i+1))
		}
	}
	return false, nil
}

// Committed reports whether the composer markup shows the mention as
// resolved: either a mention chip element or the exact-cased token in the
// rendered text. Case-insensitive matches are rejected because the host
// resolves mentions case-exactly.
func Committed(html, token string) bool {
	doc, err := htmlquery.Parse(strings.NewReader(html))
	if err != nil {
		// Unparseable fragments fall back to a raw containment check.
		return strings.Contains(html, token)
	}

	chip := `//*[contains(@class, "mention") or contains(@class, "chip") or @data-mention or @data-mention-id]`
	if n := htmlquery.FindOne(doc, chip); n != nil {
		return true
	}
	return strings.Contains(textContent(doc), token)
}

// textContent flattens the rendered text of a fragment, ignoring markup.
func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
