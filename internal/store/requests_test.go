// internal/store/requests_test.go
package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/synthcheck-cli/api/schemas"
)

func pendingCheck(createdAt time.Time) schemas.PendingCheck {
	return schemas.PendingCheck{
		ID:        "check-1",
		ImageURL:  "https://cdn.example.com/suspect.png",
		Question:  "Was this image generated?",
		CreatedAt: createdAt,
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending.json")
	s := NewFileStore(path, zap.NewNop())

	now := time.Now()
	require.NoError(t, s.Put(pendingCheck(now)))

	got, err := s.Take(now, 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "check-1", got.ID)
	assert.Equal(t, "https://cdn.example.com/suspect.png", got.ImageURL)

	// The slot is consumed.
	_, err = s.Take(now, 30*time.Second)
	assert.ErrorIs(t, err, ErrNoPending)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "request file must be gone after pickup")
}

func TestFileStoreStaleRequestConsumedButNotReturned(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending.json")
	s := NewFileStore(path, zap.NewNop())

	now := time.Now()
	require.NoError(t, s.Put(pendingCheck(now.Add(-2*time.Minute))))

	got, err := s.Take(now, 30*time.Second)
	assert.ErrorIs(t, err, ErrStale)
	assert.Equal(t, "check-1", got.ID, "the stale check still identifies itself for logging")

	// Stale pickup consumed the slot; no replay on the next attempt.
	_, err = s.Take(now, 30*time.Second)
	assert.ErrorIs(t, err, ErrNoPending)
}

func TestFileStoreEmpty(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "pending.json"), zap.NewNop())
	_, err := s.Take(time.Now(), time.Minute)
	assert.ErrorIs(t, err, ErrNoPending)
}

func TestFileStoreCorruptPayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	s := NewFileStore(path, zap.NewNop())
	_, err := s.Take(time.Now(), time.Minute)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoPending)

	// Even a corrupt request is consumed.
	_, err = s.Take(time.Now(), time.Minute)
	assert.ErrorIs(t, err, ErrNoPending)
}

func TestMemoryStoreSingleSlot(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now()

	require.NoError(t, s.Put(pendingCheck(now)))
	got, err := s.Take(now, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "check-1", got.ID)

	_, err = s.Take(now, time.Minute)
	assert.ErrorIs(t, err, ErrNoPending)
}

func TestMemoryStoreStale(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now()

	require.NoError(t, s.Put(pendingCheck(now.Add(-time.Hour))))
	_, err := s.Take(now, time.Minute)
	assert.ErrorIs(t, err, ErrStale)
}
