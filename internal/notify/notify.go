// internal/notify/notify.go

// Package notify carries run progress to the operator and terminal events to
// the outbound channel. Progress is advisory and best effort; the terminal
// event is the run's contract and is always emitted exactly once.
package notify

import (
	"fmt"
	"io"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/synthcheck-cli/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Stage names a user-visible phase of the run.
type Stage string

const (
	StagePreparing          Stage = "preparing"
	StageUploading          Stage = "uploading"
	StageSending            Stage = "sending"
	StageDone               Stage = "done"
	StageManualPromptNeeded Stage = "manual_prompt_needed"
	StageError              Stage = "error"
)

// Notifier receives progress updates during a run.
type Notifier interface {
	Progress(runID string, stage Stage, detail string)
}

// LogNotifier reports progress through the structured log.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("progress")}
}

func (n *LogNotifier) Progress(runID string, stage Stage, detail string) {
	fields := []zap.Field{
		zap.String("run_id", runID),
		zap.String("stage", string(stage)),
	}
	if detail != "" {
		fields = append(fields, zap.String("detail", detail))
	}
	switch stage {
	case StageError:
		n.logger.Error("Run progress.", fields...)
	case StageManualPromptNeeded:
		n.logger.Warn("Run progress.", fields...)
	default:
		n.logger.Info("Run progress.", fields...)
	}
}

// Reporter writes terminal events as JSON lines on the outbound channel.
// Safe for concurrent use.
type Reporter struct {
	mu  sync.Mutex
	out io.Writer
}

func NewReporter(out io.Writer) *Reporter {
	return &Reporter{out: out}
}

// Emit writes one event as a single JSON line.
func (r *Reporter) Emit(ev schemas.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.out.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("writing event: %w", err)
	}
	return nil
}

// Complete emits the COMPLETE terminal event.
func (r *Reporter) Complete(runID string, success bool) error {
	return r.Emit(schemas.Event{Type: schemas.EventComplete, RunID: runID, Success: success})
}

// Failed emits the CHECK_ERROR terminal event with an operator readable
// message.
func (r *Reporter) Failed(runID, message string) error {
	return r.Emit(schemas.Event{Type: schemas.EventFailed, RunID: runID, Error: message})
}
