package scheduler

import (
	"context"
	"sync"
	"time"
)

// ProcessedSet remembers ticket keys attempted within a rolling window.
// Entries older than the window are treated as absent and dropped by Sweep.
type ProcessedSet interface {
	Contains(ctx context.Context, key string, now time.Time) (bool, error)
	Add(ctx context.Context, key string, now time.Time) error
	// Sweep drops expired entries and reports how many were removed.
	Sweep(ctx context.Context, now time.Time) (int, error)
	Len(ctx context.Context) (int, error)
}

// MemorySet is a process-local ProcessedSet. It does not survive restarts.
type MemorySet struct {
	window time.Duration

	mu    sync.Mutex
	added map[string]time.Time
}

func NewMemorySet(window time.Duration) *MemorySet {
	return &MemorySet{window: window, added: map[string]time.Time{}}
}

func (s *MemorySet) Contains(_ context.Context, key string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.added[key]
	if !ok {
		return false, nil
	}
	return !s.expired(at, now), nil
}

func (s *MemorySet) Add(_ context.Context, key string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.added[key] = now
	return nil
}

func (s *MemorySet) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, at := range s.added {
		if s.expired(at, now) {
			delete(s.added, key)
			n++
		}
	}
	return n, nil
}

func (s *MemorySet) Len(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.added), nil
}

func (s *MemorySet) expired(at, now time.Time) bool {
	return s.window > 0 && !now.Before(at.Add(s.window))
}
