package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	janitorInterval = time.Minute
	evictAfter      = 15 * time.Minute
)

// MemoryStore keeps per-identifier hit timestamps in process memory. A
// janitor evicts identifiers with no recent activity so the map cannot grow
// without bound in a long-running process. State is instance-local; use the
// Redis store when limits must hold across scaled instances.
type MemoryStore struct {
	mu       sync.Mutex
	hits     map[string][]time.Time
	lastSeen map[string]time.Time
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryStore creates a memory store and starts its eviction janitor.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		hits:     make(map[string][]time.Time),
		lastSeen: make(map[string]time.Time),
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	go s.janitor()
	return s
}

func (s *MemoryStore) Allow(ctx context.Context, key string, max int, window time.Duration) (bool, time.Duration, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cutoff := now.Add(-window)

	kept := s.hits[key][:0]
	for _, t := range s.hits[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	s.lastSeen[key] = now
	if len(kept) >= max {
		s.hits[key] = kept
		if len(kept) == 0 {
			// max <= 0 admits nothing; there is no hit to age out.
			return false, window, nil
		}
		// Oldest kept hit leaves the window first.
		return false, kept[0].Sub(cutoff), nil
	}

	s.hits[key] = append(kept, now)
	return true, 0, nil
}

// Close stops the eviction janitor.
func (s *MemoryStore) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *MemoryStore) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.evictIdle()
		}
	}
}

func (s *MemoryStore) evictIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-evictAfter)
	for key, seen := range s.lastSeen {
		if seen.Before(cutoff) {
			delete(s.lastSeen, key)
			delete(s.hits, key)
		}
	}
}
