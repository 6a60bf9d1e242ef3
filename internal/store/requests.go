// internal/store/requests.go

// Package store holds pending check requests and, optionally, a durable run
// history. A pending check occupies a single slot: picking it up consumes
// it, so a crashed run never replays a request against the chat host.
package store

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/synthcheck-cli/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrNoPending means no check request is waiting.
var ErrNoPending = errors.New("no pending check request")

// ErrStale means a request was found but sat longer than the freshness
// bound; it has been consumed and must not drive any page interaction.
var ErrStale = errors.New("pending check request is stale")

// RequestStore hands out pending checks exactly once.
type RequestStore interface {
	Put(check schemas.PendingCheck) error
	// Take removes and returns the pending check. A stale check is still
	// consumed; it comes back alongside ErrStale so the caller can log it.
	Take(now time.Time, staleAfter time.Duration) (schemas.PendingCheck, error)
}

// FileStore keeps the single pending check as a JSON file, which is how a
// request survives between the process that enqueued it and the run that
// picks it up.
type FileStore struct {
	mu     sync.Mutex
	path   string
	logger *zap.Logger
}

func NewFileStore(path string, logger *zap.Logger) *FileStore {
	return &FileStore{path: path, logger: logger.Named("store")}
}

func (s *FileStore) Put(check schemas.PendingCheck) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := json.Marshal(check)
	if err != nil {
		return fmt.Errorf("encoding pending check: %w", err)
	}
	if err := os.WriteFile(s.path, b, 0o600); err != nil {
		return fmt.Errorf("writing pending check: %w", err)
	}
	return nil
}

func (s *FileStore) Take(now time.Time, staleAfter time.Duration) (schemas.PendingCheck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return schemas.PendingCheck{}, ErrNoPending
		}
		return schemas.PendingCheck{}, fmt.Errorf("reading pending check: %w", err)
	}

	// Consume before judging freshness; a stale request must not be
	// retried on the next pickup either.
	if err := os.Remove(s.path); err != nil {
		return schemas.PendingCheck{}, fmt.Errorf("consuming pending check: %w", err)
	}

	var check schemas.PendingCheck
	if err := json.Unmarshal(b, &check); err != nil {
		return schemas.PendingCheck{}, fmt.Errorf("decoding pending check: %w", err)
	}

	if age := check.Age(now); age > staleAfter {
		s.logger.Warn("Discarding stale pending check.",
			zap.String("id", check.ID), zap.Duration("age", age))
		return check, ErrStale
	}
	return check, nil
}

// MemoryStore is the in-process variant, used when the request arrives on
// the command line rather than through a file.
type MemoryStore struct {
	mu    sync.Mutex
	check *schemas.PendingCheck
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Put(check schemas.PendingCheck) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.check = &check
	return nil
}

func (s *MemoryStore) Take(now time.Time, staleAfter time.Duration) (schemas.PendingCheck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.check == nil {
		return schemas.PendingCheck{}, ErrNoPending
	}
	check := *s.check
	s.check = nil

	if check.Age(now) > staleAfter {
		return check, ErrStale
	}
	return check, nil
}
