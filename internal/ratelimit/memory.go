package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local CounterStore. Counters for elapsed windows
// are reset lazily on next access and reclaimed by a periodic sweep so the
// map does not grow without bound.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*windowCounter
	done     chan struct{}
	stopOnce sync.Once

	// now is swappable for tests.
	now func() time.Time
}

type windowCounter struct {
	count   int64
	resetAt time.Time
}

const sweepInterval = 5 * time.Minute

// NewMemoryStore creates a MemoryStore and starts its background sweep.
// Call Stop when done.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		counters: make(map[string]*windowCounter),
		done:     make(chan struct{}),
		now:      time.Now,
	}
	go s.sweepLoop()
	return s
}

// Increment implements CounterStore.
func (s *MemoryStore) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	if !ok || !now.Before(c.resetAt) {
		c = &windowCounter{resetAt: now.Add(window)}
		s.counters[key] = c
	}
	c.count++
	return c.count, c.resetAt.Sub(now), nil
}

// Stop halts the background sweep.
func (s *MemoryStore) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

func (s *MemoryStore) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.done:
			return
		}
	}
}

func (s *MemoryStore) sweep() {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, c := range s.counters {
		if !now.Before(c.resetAt) {
			delete(s.counters, key)
		}
	}
}
