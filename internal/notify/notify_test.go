// internal/notify/notify_test.go
package notify

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/synthcheck-cli/api/schemas"
)

func TestReporterEmitsJSONLines(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf)

	require.NoError(t, r.Complete("run-1", true))
	require.NoError(t, r.Failed("run-2", "Could not download this image."))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first schemas.Event
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, schemas.EventComplete, first.Type)
	assert.Equal(t, "run-1", first.RunID)
	assert.True(t, first.Success)

	var second schemas.Event
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, schemas.EventFailed, second.Type)
	assert.Equal(t, "Could not download this image.", second.Error)
	assert.False(t, second.Success)
}

func TestReporterConcurrentEmitsStayLineAtomic(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.Complete("run", true)
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 20)
	for _, line := range lines {
		var ev schemas.Event
		assert.NoError(t, json.Unmarshal([]byte(line), &ev))
	}
}

func TestLogNotifierLevels(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	n := NewLogNotifier(zap.New(core))

	n.Progress("run-1", StagePreparing, "")
	n.Progress("run-1", StageManualPromptNeeded, "press send yourself")
	n.Progress("run-1", StageError, "download failed")

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zap.InfoLevel, entries[0].Level)
	assert.Equal(t, zap.WarnLevel, entries[1].Level)
	assert.Equal(t, zap.ErrorLevel, entries[2].Level)

	ctx := entries[1].ContextMap()
	assert.Equal(t, string(StageManualPromptNeeded), ctx["stage"])
	assert.Equal(t, "press send yourself", ctx["detail"])
}
