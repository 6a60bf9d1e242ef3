// internal/automation/upload/pipeline.go

// Package upload fetches the target image and injects it into the chat
// composer. Hosts differ wildly in which attachment route they accept, so
// the pipeline walks an ordered list of strategies and stops at the first
// one whose effect is visible in the DOM.
package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/synthcheck-cli/api/schemas"
	"github.com/xkilldash9x/synthcheck-cli/internal/automation/locator"
	"github.com/xkilldash9x/synthcheck-cli/internal/automation/wait"
)

// ErrNoStrategyApplied means every injection route failed outright; nothing
// was even dispatched at the page.
var ErrNoStrategyApplied = errors.New("no upload strategy could be applied")

// ErrUnverified means at least one strategy dispatched but no attachment
// preview ever appeared, and the policy forbids proceeding on faith.
var ErrUnverified = errors.New("upload was dispatched but never verified")

// Attacher is the slice of the input synthesizer the pipeline drives.
type Attacher interface {
	Paste(ctx context.Context, selector string, payload schemas.FilePayload) error
	DragDrop(ctx context.Context, selectors []string, payload schemas.FilePayload, settle time.Duration) error
	SyntheticClick(ctx context.Context, selector string) error
}

// PageIO is the slice of the page used for file assignment and verification.
type PageIO interface {
	Evaluate(ctx context.Context, script string, out any) error
	SetFileInput(ctx context.Context, selector string, paths ...string) error
}

// Finder locates the attachment controls.
type Finder interface {
	Locate(ctx context.Context, role locator.Role) (locator.Handle, error)
}

// Options carries the pipeline's timing and policy knobs.
type Options struct {
	// UploadSettle is how long to wait after an injection before checking
	// for a preview; hosts process attachments asynchronously.
	UploadSettle time.Duration
	// DragSettle is the pause between individual drag events.
	DragSettle time.Duration
	// ProceedWithoutVerified lets a run continue when a strategy dispatched
	// cleanly but no preview appeared. The send may then go out without the
	// image, which the operator is warned about.
	ProceedWithoutVerified bool
}

// Outcome summarizes an upload run.
type Outcome struct {
	Strategy schemas.UploadStrategy
	Verified bool
	Attempts []schemas.UploadAttemptResult
}

// Pipeline tries each injection strategy in order until one verifies.
type Pipeline struct {
	page    PageIO
	synth   Attacher
	locator Finder
	opts    Options
	logger  *zap.Logger

	sleep  func(ctx context.Context, d time.Duration) error
	tmpDir string
}

func New(page PageIO, synth Attacher, loc Finder, opts Options, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		page:    page,
		synth:   synth,
		locator: loc,
		opts:    opts,
		logger:  logger.Named("upload"),
		sleep:   wait.Settle,
	}
}

type strategyFunc func(ctx context.Context, input locator.Handle, payload schemas.FilePayload) error

// Upload walks the strategy order: reveal via the add button, assign the
// hidden file input directly, synthesize a paste, replay a drag-drop. A
// strategy error is recorded and the next one runs; verification
// short-circuits the walk.
func (p *Pipeline) Upload(ctx context.Context, input locator.Handle, payload schemas.FilePayload) (Outcome, error) {
	strategies := []struct {
		name schemas.UploadStrategy
		run  strategyFunc
	}{
		{schemas.StrategyAddButton, p.viaAddButton},
		{schemas.StrategyFileInput, p.viaFileInput},
		{schemas.StrategyClipboard, p.viaClipboard},
		{schemas.StrategyDragDrop, p.viaDragDrop},
	}

	out := Outcome{}
	applied := false

	for _, s := range strategies {
		// A preview appearing late from an earlier attempt still counts.
		if applied && p.verified(ctx) {
			out.Verified = true
			return out, nil
		}
		if ctx.Err() != nil {
			return out, ctx.Err()
		}

		err := s.run(ctx, input, payload)
		if err != nil {
			p.logger.Debug("Upload strategy failed.",
				zap.String("strategy", string(s.name)), zap.Error(err))
			out.Attempts = append(out.Attempts, schemas.UploadAttemptResult{Strategy: s.name})
			continue
		}

		applied = true
		out.Strategy = s.name
		out.Attempts = append(out.Attempts, schemas.UploadAttemptResult{Strategy: s.name, Succeeded: true})

		if err := p.sleep(ctx, p.opts.UploadSettle); err != nil {
			return out, err
		}
		if p.verified(ctx) {
			out.Verified = true
			p.logger.Info("Upload verified.", zap.String("strategy", string(s.name)))
			return out, nil
		}
		p.logger.Warn("Strategy dispatched but no attachment preview appeared; trying next.",
			zap.String("strategy", string(s.name)))
	}

	if !applied {
		return out, ErrNoStrategyApplied
	}
	if p.opts.ProceedWithoutVerified {
		p.logger.Warn("Proceeding without a verified upload; the message may go out without the image.",
			zap.String("last_strategy", string(out.Strategy)))
		return out, nil
	}
	return out, ErrUnverified
}

// viaAddButton clicks the attach control to reveal the host's file chooser
// input, then assigns the file to it.
func (p *Pipeline) viaAddButton(ctx context.Context, _ locator.Handle, payload schemas.FilePayload) error {
	btn, err := p.locator.Locate(ctx, locator.RoleAddButton)
	if err != nil {
		return fmt.Errorf("add button: %w", err)
	}
	if err := p.synth.SyntheticClick(ctx, btn.Selector); err != nil {
		return err
	}
	if err := p.sleep(ctx, p.opts.DragSettle); err != nil {
		return err
	}
	return p.assignFileInput(ctx, payload)
}

// viaFileInput assigns the file input directly, without revealing it first.
// Many hosts keep one permanently in the DOM, display:none.
func (p *Pipeline) viaFileInput(ctx context.Context, _ locator.Handle, payload schemas.FilePayload) error {
	return p.assignFileInput(ctx, payload)
}

func (p *Pipeline) viaClipboard(ctx context.Context, input locator.Handle, payload schemas.FilePayload) error {
	return p.synth.Paste(ctx, input.Selector, payload)
}

func (p *Pipeline) viaDragDrop(ctx context.Context, input locator.Handle, payload schemas.FilePayload) error {
	targets := []string{input.Selector, "main", "body"}
	return p.synth.DragDrop(ctx, targets, payload, p.opts.DragSettle)
}

// assignFileInput stages the payload as a temp file, points the page's file
// input at it, and fires the change events the host listens for. Page
// script cannot populate file inputs; this goes through the debugging
// protocol.
func (p *Pipeline) assignFileInput(ctx context.Context, payload schemas.FilePayload) error {
	fileInput, err := p.locator.Locate(ctx, locator.RoleFileInput)
	if err != nil {
		return fmt.Errorf("file input: %w", err)
	}

	tmp, err := os.CreateTemp(p.tmpDir, "synthcheck-*"+filepath.Ext(payload.Name))
	if err != nil {
		return fmt.Errorf("staging upload file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(payload.Data); err != nil {
		tmp.Close()
		return fmt.Errorf("staging upload file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("staging upload file: %w", err)
	}

	if err := p.page.SetFileInput(ctx, fileInput.Selector, tmp.Name()); err != nil {
		return err
	}

	script := fmt.Sprintf(`
		(function(sel) {
			const el = document.querySelector(sel);
			if (!el) return false;
			el.dispatchEvent(new Event('change', {bubbles: true}));
			el.dispatchEvent(new Event('input', {bubbles: true}));
			return true;
		})(%s);`, jsEncode(fileInput.Selector))
	if err := p.page.Evaluate(ctx, script, nil); err != nil {
		return fmt.Errorf("change event dispatch failed: %w", err)
	}
	return nil
}

// verified checks the DOM for evidence the host accepted the attachment: a
// blob or data image preview, an attachment container, or a removable chip.
func (p *Pipeline) verified(ctx context.Context) bool {
	script := `
		(function() {
			const markers = [
				'img[src^="blob:"]',
				'img[src^="data:"]',
				'[class*="attachment"]',
				'[class*="preview"] img',
				'[aria-label*="remove" i][role="button"]',
			];
			return markers.some(s => document.querySelector(s) !== null);
		})();`

	var present bool
	if err := p.page.Evaluate(ctx, script, &present); err != nil {
		p.logger.Debug("Upload verification check failed.", zap.Error(err))
		return false
	}
	return present
}

func jsEncode(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `""`
	}
	return string(b)
}
