// Package memstore provides an in-memory, mutex-guarded implementation of
// the EngineStore contract. Suitable for single-process and development
// deployments, and as the store used by the server/monitor test suites.
package memstore

import (
	"context"
	"sync"

	"github.com/HaoYang670/rucat/internal/apperrors"
	"github.com/HaoYang670/rucat/internal/engine"
)

// Store is a thread-safe, in-memory EngineStore.
type Store struct {
	mu      sync.RWMutex
	records map[string]*engine.Record
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{records: make(map[string]*engine.Record)}
}

// Insert adds rec, failing if its id is already present.
func (s *Store) Insert(ctx context.Context, rec *engine.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; exists {
		return apperrors.Conflict("engine", rec.ID, "engine "+rec.ID+" already exists")
	}

	cp := *rec
	s.records[rec.ID] = &cp
	return nil
}

// Get loads a copy of the record for id.
func (s *Store) Get(ctx context.Context, id string) (*engine.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, apperrors.NotFound("engine", id)
	}
	cp := *rec
	return &cp, nil
}

// List returns every known engine id.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	return ids, nil
}

// CASState atomically moves id's state from expected to next.
func (s *Store) CASState(ctx context.Context, id string, expected, next engine.State, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return apperrors.NotFound("engine", id)
	}
	if rec.State != expected {
		return apperrors.ConflictState("engine", string(rec.State), "engine "+id+" is in "+string(rec.State)+" state, expected "+string(expected))
	}

	rec.State = next
	rec.Reason = reason
	return nil
}

// DeleteIfState removes id's record only if its current state is in allowed.
func (s *Store) DeleteIfState(ctx context.Context, id string, allowed []engine.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return apperrors.NotFound("engine", id)
	}
	if !containsState(allowed, rec.State) {
		return apperrors.ConflictState("engine", string(rec.State), "engine "+id+" is in "+string(rec.State)+" state, cannot be deleted")
	}

	delete(s.records, id)
	return nil
}

// ScanByStates returns copies of every record whose state is in states.
func (s *Store) ScanByStates(ctx context.Context, states []engine.State) ([]*engine.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*engine.Record
	for _, rec := range s.records {
		if containsState(states, rec.State) {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// Ready always succeeds: the in-memory store has no external dependency.
func (s *Store) Ready(ctx context.Context) error {
	return nil
}

func containsState(states []engine.State, s engine.State) bool {
	for _, st := range states {
		if st == s {
			return true
		}
	}
	return false
}
