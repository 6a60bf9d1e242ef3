// internal/orchestrator/orchestrator_test.go
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/synthcheck-cli/api/schemas"
	"github.com/xkilldash9x/synthcheck-cli/internal/automation/locator"
	"github.com/xkilldash9x/synthcheck-cli/internal/automation/readiness"
	"github.com/xkilldash9x/synthcheck-cli/internal/automation/upload"
	"github.com/xkilldash9x/synthcheck-cli/internal/notify"
	"github.com/xkilldash9x/synthcheck-cli/internal/store"
)

// deps bundles one scripted dependency set per test.
type deps struct {
	requests *store.MemoryStore

	mu    sync.Mutex
	calls []string

	readyErr  error
	fetchErr  error
	uploadErr error
	sendOK    bool
	sendErr   error

	progress []notify.Stage
	events   []schemas.Event
}

func (d *deps) record(call string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, call)
}

func (d *deps) Navigate(_ context.Context, url string) error {
	d.record("navigate")
	return nil
}

func (d *deps) AwaitReady(context.Context) (locator.Handle, error) {
	d.record("ready")
	if d.readyErr != nil {
		return locator.Handle{}, d.readyErr
	}
	return locator.Handle{Role: locator.RoleInputArea, Selector: "#editor"}, nil
}

func (d *deps) Compose(_ context.Context, input locator.Handle, question string) error {
	d.record("compose:" + question)
	return nil
}

func (d *deps) Fetch(_ context.Context, imageURL string) (schemas.FilePayload, error) {
	d.record("fetch")
	if d.fetchErr != nil {
		return schemas.FilePayload{}, d.fetchErr
	}
	return schemas.FilePayload{Name: "x.png", MIME: "image/png", Data: []byte{1}}, nil
}

func (d *deps) Upload(_ context.Context, input locator.Handle, _ schemas.FilePayload) (upload.Outcome, error) {
	d.record("upload")
	if d.uploadErr != nil {
		return upload.Outcome{}, d.uploadErr
	}
	return upload.Outcome{Strategy: schemas.StrategyFileInput, Verified: true}, nil
}

func (d *deps) Send(context.Context, locator.Handle) (bool, error) {
	d.record("send")
	return d.sendOK, d.sendErr
}

func (d *deps) Progress(runID string, stage notify.Stage, detail string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.progress = append(d.progress, stage)
}

func (d *deps) Complete(runID string, success bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, schemas.Event{Type: schemas.EventComplete, RunID: runID, Success: success})
	return nil
}

func (d *deps) Failed(runID, message string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, schemas.Event{Type: schemas.EventFailed, RunID: runID, Error: message})
	return nil
}

func newTestOrchestrator(d *deps) *Orchestrator {
	return New(d.requests, d, d, d, d, d, d, d, d, nil,
		Options{ChatURL: "https://chat.example.com/app", StaleAfter: 30 * time.Second},
		zap.NewNop())
}

func enqueue(t *testing.T, d *deps, age time.Duration) {
	t.Helper()
	require.NoError(t, d.requests.Put(schemas.PendingCheck{
		ID:        "run-1",
		ImageURL:  "https://cdn.example.com/suspect.png",
		Question:  "Was this image generated?",
		CreatedAt: time.Now().Add(-age),
	}))
}

func TestRunNextHappyPath(t *testing.T) {
	d := &deps{requests: store.NewMemoryStore(), sendOK: true}
	enqueue(t, d, 0)

	require.NoError(t, newTestOrchestrator(d).RunNext(context.Background()))

	want := []string{
		"navigate", "ready", "fetch", "compose:Was this image generated?", "upload", "send",
	}
	if diff := cmp.Diff(want, d.calls); diff != "" {
		t.Errorf("unexpected call sequence (-want +got):\n%s", diff)
	}

	require.Len(t, d.events, 1)
	assert.Equal(t, schemas.EventComplete, d.events[0].Type)
	assert.True(t, d.events[0].Success)
	assert.Equal(t, "run-1", d.events[0].RunID)
	assert.Contains(t, d.progress, notify.StageDone)
}

func TestRunNextStaleCheckIsSilent(t *testing.T) {
	d := &deps{requests: store.NewMemoryStore(), sendOK: true}
	enqueue(t, d, 5*time.Minute)

	require.NoError(t, newTestOrchestrator(d).RunNext(context.Background()))

	assert.Empty(t, d.calls, "a stale check must cause no page interaction")
	assert.Empty(t, d.events, "a stale check emits no terminal event")
}

func TestRunNextNoPending(t *testing.T) {
	d := &deps{requests: store.NewMemoryStore()}
	err := newTestOrchestrator(d).RunNext(context.Background())
	assert.ErrorIs(t, err, store.ErrNoPending)
}

func TestRunNextReadinessTimeoutFails(t *testing.T) {
	d := &deps{requests: store.NewMemoryStore()}
	d.readyErr = &readiness.TimeoutError{URL: "https://chat.example.com", Waited: 30 * time.Second}
	enqueue(t, d, 0)

	err := newTestOrchestrator(d).RunNext(context.Background())
	assert.ErrorIs(t, err, readiness.ErrTimeout)

	require.Len(t, d.events, 1)
	assert.Equal(t, schemas.EventFailed, d.events[0].Type)
	assert.NotEmpty(t, d.events[0].Error)
	assert.Contains(t, d.progress, notify.StageError)
	assert.Equal(t, []string{"navigate", "ready"}, d.calls, "nothing runs after a readiness failure")
}

func TestRunNextDownloadFailureCarriesOperatorMessage(t *testing.T) {
	d := &deps{requests: store.NewMemoryStore()}
	d.fetchErr = &upload.DownloadError{URL: "https://cdn.example.com/suspect.png"}
	enqueue(t, d, 0)

	err := newTestOrchestrator(d).RunNext(context.Background())
	require.Error(t, err)

	require.Len(t, d.events, 1)
	assert.Equal(t, schemas.EventFailed, d.events[0].Type)
	assert.Contains(t, d.events[0].Error, "upload it manually")
	assert.Equal(t, []string{"navigate", "ready", "fetch"}, d.calls,
		"a failed download must leave the composer untouched")
}

func TestRunNextUnfoundSendCompletesWithManualPrompt(t *testing.T) {
	d := &deps{requests: store.NewMemoryStore(), sendOK: false}
	enqueue(t, d, 0)

	require.NoError(t, newTestOrchestrator(d).RunNext(context.Background()))

	require.Len(t, d.events, 1)
	assert.Equal(t, schemas.EventComplete, d.events[0].Type)
	assert.False(t, d.events[0].Success)
	assert.Contains(t, d.progress, notify.StageManualPromptNeeded)
}

func TestRunNextSingleFlight(t *testing.T) {
	d := &deps{requests: store.NewMemoryStore(), sendOK: true}
	enqueue(t, d, 0)

	o := newTestOrchestrator(d)
	// Hold the slot as a concurrent run would.
	require.True(t, o.sem.TryAcquire(1))
	err := o.RunNext(context.Background())
	assert.ErrorIs(t, err, ErrRunInFlight)
	o.sem.Release(1)

	require.NoError(t, o.RunNext(context.Background()))
}

func TestOperatorMessage(t *testing.T) {
	de := &upload.DownloadError{URL: "https://cdn.example.com/x.png"}
	assert.Contains(t, operatorMessage(de), "upload it manually")
	assert.Contains(t, operatorMessage(fmt.Errorf("wrapped: %w", de)), "upload it manually")
	assert.Equal(t, "boom", operatorMessage(errors.New("boom")))
}
