// api/schemas/check.go
package schemas

import (
	"time"
)

// PendingCheck is a single request to run an image-provenance check against
// the chat application. It is produced by the request originator, consumed
// exactly once by the orchestrator, and discarded without action when its
// age exceeds the staleness threshold at pickup time.
type PendingCheck struct {
	ID            string    `json:"id"`
	ImageURL      string    `json:"image_url"`
	Question      string    `json:"question"`
	CreatedAt     time.Time `json:"created_at"`
	SourceContext string    `json:"source_context,omitempty"`
}

// Age returns how old the check is relative to now.
func (c PendingCheck) Age(now time.Time) time.Duration {
	return now.Sub(c.CreatedAt)
}

// RunStage tracks a run through the automation flow. Transitions are
// strictly forward; StageFailed is terminal and reachable from any stage.
type RunStage string

const (
	StageIdle      RunStage = "idle"
	StageLocating  RunStage = "locating"
	StageComposing RunStage = "composing"
	StageUploading RunStage = "uploading"
	StageSending   RunStage = "sending"
	StageDone      RunStage = "done"
	StageFailed    RunStage = "failed"
)

// stageOrder defines the forward progression of a run.
var stageOrder = map[RunStage]int{
	StageIdle:      0,
	StageLocating:  1,
	StageComposing: 2,
	StageUploading: 3,
	StageSending:   4,
	StageDone:      5,
}

// CanTransition reports whether moving from s to next respects the
// forward-only stage machine. Failed is allowed from anywhere except itself
// and Done; nothing leaves a terminal stage.
func (s RunStage) CanTransition(next RunStage) bool {
	if s == StageFailed || s == StageDone {
		return false
	}
	if next == StageFailed {
		return true
	}
	from, ok := stageOrder[s]
	if !ok {
		return false
	}
	to, ok := stageOrder[next]
	if !ok {
		return false
	}
	return to > from
}

// Terminal reports whether the stage ends a run.
func (s RunStage) Terminal() bool {
	return s == StageDone || s == StageFailed
}
