// api/schemas/events.go
package schemas

// EventType identifies an outbound event on the collaborator channel.
type EventType string

const (
	EventComplete EventType = "COMPLETE"
	EventFailed   EventType = "CHECK_ERROR"
)

// Event is the terminal report of a run, delivered on the outbound channel.
// Complete carries Success; Failed carries a human readable Error message.
type Event struct {
	Type    EventType `json:"type"`
	RunID   string    `json:"run_id,omitempty"`
	Success bool      `json:"success,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// UploadStrategy names one of the ordered injection strategies the upload
// pipeline tries against the host page.
type UploadStrategy string

const (
	StrategyAddButton UploadStrategy = "add_button"
	StrategyFileInput UploadStrategy = "file_input"
	StrategyClipboard UploadStrategy = "clipboard"
	StrategyDragDrop  UploadStrategy = "drag_drop"
)

// UploadAttemptResult records a single strategy attempt. Ephemeral; produced
// and consumed within the upload pipeline, surfaced only through logs.
type UploadAttemptResult struct {
	Strategy  UploadStrategy `json:"strategy"`
	Succeeded bool           `json:"succeeded"`
}

// FilePayload is an in-memory file-like object built from fetched image
// bytes, handed to the injection strategies.
type FilePayload struct {
	Name string
	MIME string
	Data []byte
}
