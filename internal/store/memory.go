package store

import (
	"context"
	"sync"
	"time"

	"github.com/jonathan/voice-autopilot/internal/types"
)

// MemoryStore is the default Store: a map guarded by a mutex, with each run
// mutated under the lock so read-modify-write is atomic per run id.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*types.Run
	now  func() time.Time
}

// NewMemoryStore creates an empty in-memory run store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs: make(map[string]*types.Run),
		now:  time.Now,
	}
}

// Create inserts a fresh run in status created.
func (s *MemoryStore) Create(_ context.Context, id string, mode types.Mode, rawInput string) (*types.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	run := &types.Run{
		ID:        id,
		Mode:      mode,
		RawInput:  rawInput,
		Status:    types.StatusCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.runs[id] = run

	cp := *run
	return &cp, nil
}

// Patch applies a partial update under the store lock.
func (s *MemoryStore) Patch(_ context.Context, id string, patch RunPatch) (*types.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, &RunNotFoundError{ID: id}
	}
	if err := apply(run, patch, s.now()); err != nil {
		return nil, err
	}

	cp := *run
	return &cp, nil
}

// Get returns a copy of the run or a RunNotFoundError.
func (s *MemoryStore) Get(_ context.Context, id string) (*types.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, &RunNotFoundError{ID: id}
	}

	cp := *run
	return &cp, nil
}
