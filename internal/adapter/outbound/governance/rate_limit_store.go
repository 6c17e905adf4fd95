package governance

import (
	"context"
	"sync"
	"time"

	"github.com/cerberusgate/cerberusgate/internal/domain/governance"
)

// MemoryRateLimitStore implements governance.RateLimitStore with a fixed
// (not rolling) window per key: the window resets wholesale once
// windowSeconds has elapsed since it was first opened, rather than
// expiring individual requests continuously. This is the same
// fixed-window tradeoff the reference rate limiter makes (a true sliding
// log is unnecessary precision for an abuse guard) -- it can
// under-count briefly at a window boundary but never double-counts and
// never locks a key out permanently.
type MemoryRateLimitStore struct {
	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	count     int
	openedAt  time.Time
}

// NewMemoryRateLimitStore builds an empty store.
func NewMemoryRateLimitStore() *MemoryRateLimitStore {
	return &MemoryRateLimitStore{windows: make(map[string]*window)}
}

// CheckAndIncrement atomically reads and, if under limit, increments
// key's counter for the current window.
func (s *MemoryRateLimitStore) CheckAndIncrement(ctx context.Context, key string, limit int, windowSeconds int) (bool, int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	w, ok := s.windows[key]
	if !ok || now.Sub(w.openedAt) >= time.Duration(windowSeconds)*time.Second {
		w = &window{openedAt: now}
		s.windows[key] = w
	}

	if w.count >= limit {
		windowDuration := time.Duration(windowSeconds) * time.Second
		remaining := windowDuration - now.Sub(w.openedAt)
		// Whole seconds left in the window, rounded up, plus one: always >= 1.
		retryAfter := int((remaining+time.Second-1)/time.Second) + 1
		return false, w.count, retryAfter, nil
	}

	w.count++
	return true, w.count, 0, nil
}

// CurrentCount reports key's current-window count without mutating it.
func (s *MemoryRateLimitStore) CurrentCount(ctx context.Context, key string, windowSeconds int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || time.Since(w.openedAt) >= time.Duration(windowSeconds)*time.Second {
		return 0, nil
	}
	return w.count, nil
}

// Reset clears key's window.
func (s *MemoryRateLimitStore) Reset(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, key)
	return nil
}

var _ governance.RateLimitStore = (*MemoryRateLimitStore)(nil)
