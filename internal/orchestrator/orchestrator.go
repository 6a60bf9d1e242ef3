// internal/orchestrator/orchestrator.go

// Package orchestrator sequences one provenance check end to end: pick up
// the pending request, wait for the chat app, compose the mention and
// question, attach the image and fire the send. It owns the run's stage
// machine and is the only place terminal events are emitted.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/synthcheck-cli/api/schemas"
	"github.com/xkilldash9x/synthcheck-cli/internal/automation/locator"
	"github.com/xkilldash9x/synthcheck-cli/internal/automation/upload"
	"github.com/xkilldash9x/synthcheck-cli/internal/notify"
	"github.com/xkilldash9x/synthcheck-cli/internal/store"
)

// ErrRunInFlight means a check run is already executing; runs never overlap
// because they share one browser tab.
var ErrRunInFlight = errors.New("a check run is already in flight")

// Navigator drives the browser to the chat application.
type Navigator interface {
	Navigate(ctx context.Context, url string) error
}

// ReadyDetector blocks until the composer is usable.
type ReadyDetector interface {
	AwaitReady(ctx context.Context) (locator.Handle, error)
}

// Composer types the mention and question into the input area.
type Composer interface {
	Compose(ctx context.Context, input locator.Handle, question string) error
}

// ImageFetcher retrieves the image under check.
type ImageFetcher interface {
	Fetch(ctx context.Context, imageURL string) (schemas.FilePayload, error)
}

// Uploader injects the image into the composer.
type Uploader interface {
	Upload(ctx context.Context, input locator.Handle, payload schemas.FilePayload) (upload.Outcome, error)
}

// Sender presses the send control. false with a nil error means no control
// was found and the operator must send manually.
type Sender interface {
	Send(ctx context.Context, input locator.Handle) (bool, error)
}

// EventSink receives the run's terminal event.
type EventSink interface {
	Complete(runID string, success bool) error
	Failed(runID, message string) error
}

// Options carries the orchestrator's own knobs.
type Options struct {
	ChatURL    string
	StaleAfter time.Duration
}

// Orchestrator executes check runs one at a time.
type Orchestrator struct {
	requests store.RequestStore
	browser  Navigator
	ready    ReadyDetector
	composer Composer
	fetcher  ImageFetcher
	uploader Uploader
	sender   Sender
	notifier notify.Notifier
	events   EventSink
	history  *store.History
	opts     Options
	logger   *zap.Logger

	sem *semaphore.Weighted
	now func() time.Time
}

func New(
	requests store.RequestStore,
	browser Navigator,
	ready ReadyDetector,
	composer Composer,
	fetcher ImageFetcher,
	uploader Uploader,
	sender Sender,
	notifier notify.Notifier,
	events EventSink,
	history *store.History,
	opts Options,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		requests: requests,
		browser:  browser,
		ready:    ready,
		composer: composer,
		fetcher:  fetcher,
		uploader: uploader,
		sender:   sender,
		notifier: notifier,
		events:   events,
		history:  history,
		opts:     opts,
		logger:   logger.Named("orchestrator"),
		sem:      semaphore.NewWeighted(1),
		now:      time.Now,
	}
}

// run tracks one check through the stage machine.
type run struct {
	check schemas.PendingCheck
	stage schemas.RunStage
}

// advance moves the run forward; an illegal transition is a programming
// error and aborts the run rather than corrupting its reported state.
func (r *run) advance(next schemas.RunStage) error {
	if !r.stage.CanTransition(next) {
		return fmt.Errorf("illegal stage transition %s -> %s", r.stage, next)
	}
	r.stage = next
	return nil
}

// result is what a fully executed run produced.
type result struct {
	upload upload.Outcome
	sent   bool
}

// RunNext picks up the pending check, if any, and executes it. A stale
// check is consumed silently: no page interaction, no terminal event.
func (o *Orchestrator) RunNext(ctx context.Context) error {
	if !o.sem.TryAcquire(1) {
		return ErrRunInFlight
	}
	defer o.sem.Release(1)

	check, err := o.requests.Take(o.now(), o.opts.StaleAfter)
	if err != nil {
		if errors.Is(err, store.ErrNoPending) {
			return err
		}
		if errors.Is(err, store.ErrStale) {
			o.logger.Info("Dropped stale check without action.", zap.String("id", check.ID))
			return nil
		}
		return fmt.Errorf("picking up pending check: %w", err)
	}

	r := &run{check: check, stage: schemas.StageIdle}
	o.logger.Info("Starting check run.",
		zap.String("id", check.ID), zap.String("image_url", check.ImageURL))

	if err := o.history.RecordStart(ctx, check, o.now()); err != nil {
		// History is advisory; the run proceeds without it.
		o.logger.Warn("Run history insert failed.", zap.Error(err))
	}

	res, err := o.execute(ctx, r)
	if err != nil {
		return o.fail(ctx, r, err)
	}
	return o.complete(ctx, r, res)
}

// execute walks the stages up to (but not including) the terminal ones.
func (o *Orchestrator) execute(ctx context.Context, r *run) (result, error) {
	var res result

	if err := r.advance(schemas.StageLocating); err != nil {
		return res, err
	}
	o.notifier.Progress(r.check.ID, notify.StagePreparing, "waiting for the chat app")

	if err := o.browser.Navigate(ctx, o.opts.ChatURL); err != nil {
		return res, fmt.Errorf("navigating to chat app: %w", err)
	}
	input, err := o.ready.AwaitReady(ctx)
	if err != nil {
		return res, err
	}

	// The image is fetched before anything touches the composer, so a
	// failed download leaves the page exactly as readiness found it.
	payload, err := o.fetcher.Fetch(ctx, r.check.ImageURL)
	if err != nil {
		return res, err
	}

	if err := r.advance(schemas.StageComposing); err != nil {
		return res, err
	}
	if err := o.composer.Compose(ctx, input, r.check.Question); err != nil {
		return res, fmt.Errorf("composing message: %w", err)
	}

	if err := r.advance(schemas.StageUploading); err != nil {
		return res, err
	}
	o.notifier.Progress(r.check.ID, notify.StageUploading, "attaching the image")

	res.upload, err = o.uploader.Upload(ctx, input, payload)
	if err != nil {
		return res, err
	}

	if err := r.advance(schemas.StageSending); err != nil {
		return res, err
	}
	o.notifier.Progress(r.check.ID, notify.StageSending, "")

	res.sent, err = o.sender.Send(ctx, input)
	if err != nil {
		return res, err
	}
	return res, nil
}

// complete closes out a run whose stages all executed. An unfound send
// control still completes, with success=false and a manual prompt.
func (o *Orchestrator) complete(ctx context.Context, r *run, res result) error {
	if err := r.advance(schemas.StageDone); err != nil {
		return o.fail(ctx, r, err)
	}

	if res.sent {
		o.notifier.Progress(r.check.ID, notify.StageDone, "")
	} else {
		o.notifier.Progress(r.check.ID, notify.StageManualPromptNeeded,
			"message is staged; press send in the browser")
	}

	if err := o.history.RecordOutcome(ctx, r.check.ID, res.upload.Strategy, res.sent, "", o.now()); err != nil {
		o.logger.Warn("Run history update failed.", zap.Error(err))
	}
	if err := o.events.Complete(r.check.ID, res.sent); err != nil {
		return fmt.Errorf("emitting completion event: %w", err)
	}
	o.logger.Info("Check run finished.",
		zap.String("id", r.check.ID),
		zap.Bool("sent", res.sent),
		zap.Bool("upload_verified", res.upload.Verified),
		zap.String("strategy", string(res.upload.Strategy)))
	return nil
}

// fail marks the run failed and emits the error event. The returned error
// propagates the cause to the caller for its exit code.
func (o *Orchestrator) fail(ctx context.Context, r *run, cause error) error {
	r.stage = schemas.StageFailed
	msg := operatorMessage(cause)

	o.notifier.Progress(r.check.ID, notify.StageError, msg)
	if err := o.history.RecordOutcome(ctx, r.check.ID, "", false, msg, o.now()); err != nil {
		o.logger.Warn("Run history update failed.", zap.Error(err))
	}
	if err := o.events.Failed(r.check.ID, msg); err != nil {
		o.logger.Error("Failed to emit error event.", zap.Error(err))
	}
	o.logger.Error("Check run failed.", zap.String("id", r.check.ID), zap.Error(cause))
	return cause
}

// operatorMessage turns known failure modes into the operator-facing text;
// anything else passes through verbatim.
func operatorMessage(err error) string {
	var de *upload.DownloadError
	if errors.As(err, &de) {
		return de.Error()
	}
	return err.Error()
}
