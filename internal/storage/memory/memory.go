// Package memory is the in-memory cache backend, used by tests and by
// dry runs that should not touch disk.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/RalfNiem/business-epic-analyzer/internal/types"
)

type record struct {
	issue *types.Issue
	ts    time.Time
}

// Store is a mutex-guarded map of issues.
type Store struct {
	mu      sync.RWMutex
	records map[string]record

	// now is swappable so tests can control timestamps.
	now func() time.Time
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		records: make(map[string]record),
		now:     time.Now,
	}
}

// Get returns a copy of the cached issue so callers cannot mutate the
// stored record.
func (s *Store) Get(ctx context.Context, key string) (*types.Issue, time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	if !ok {
		return nil, time.Time{}, false, nil
	}
	cp := *rec.issue
	return &cp, rec.ts, true, nil
}

// BatchModified returns last-write times for the given keys.
func (s *Store) BatchModified(ctx context.Context, keys []string) (map[string]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]time.Time, len(keys))
	for _, k := range keys {
		if rec, ok := s.records[k]; ok {
			out[k] = rec.ts
		}
	}
	return out, nil
}

// Upsert stores a copy of the issue stamped with the current time.
func (s *Store) Upsert(ctx context.Context, issue *types.Issue) (time.Time, error) {
	cp := *issue
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := s.now()
	s.records[issue.Key] = record{issue: &cp, ts: ts}
	return ts, nil
}

// SetClock replaces the timestamp source. Test helper.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Len returns the number of stored issues.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Ready always reports true.
func (s *Store) Ready(ctx context.Context) bool { return true }

// Close is a no-op.
func (s *Store) Close() error { return nil }
