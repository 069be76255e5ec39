package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStatus keeps job status in process memory. Used when no Redis URL is
// configured. Like the Redis store, each Set refreshes the entry's TTL.
type MemoryStatus struct {
	mu   sync.RWMutex
	jobs map[string]memoryEntry
	ttl  time.Duration
	now  func() time.Time
}

type memoryEntry struct {
	st      Status
	expires time.Time
}

// NewMemoryStatus returns a store whose entries expire ttl after their last
// Set. A ttl of zero keeps entries forever.
func NewMemoryStatus(ttl time.Duration) *MemoryStatus {
	return &MemoryStatus{jobs: make(map[string]memoryEntry), ttl: ttl, now: time.Now}
}

func (s *MemoryStatus) Set(_ context.Context, jobID string, st Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.prune(now)
	e := memoryEntry{st: st}
	if s.ttl > 0 {
		e.expires = now.Add(s.ttl)
	}
	s.jobs[jobID] = e
	return nil
}

func (s *MemoryStatus) Get(_ context.Context, jobID string) (Status, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.jobs[jobID]
	if !ok || e.expired(s.now()) {
		return Status{}, false, nil
	}
	return e.st, true, nil
}

// prune drops expired entries. Caller holds the write lock.
func (s *MemoryStatus) prune(now time.Time) {
	for id, e := range s.jobs {
		if e.expired(now) {
			delete(s.jobs, id)
		}
	}
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}
