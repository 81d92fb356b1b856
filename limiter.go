package otherwise

import (
	"sync"
	"time"
)

// RateLimiter limits attempts per key (usually a client IP) within a
// sliding window.
type RateLimiter struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	max      int
	window   time.Duration
	done     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a RateLimiter that allows max attempts per window.
func NewRateLimiter(max int, window time.Duration) *RateLimiter {
	l := &RateLimiter{
		attempts: make(map[string][]time.Time),
		max:      max,
		window:   window,
		done:     make(chan struct{}),
	}
	go l.cleanup()
	return l
}

func (l *RateLimiter) cleanup() {
	ticker := time.NewTicker(l.window)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-l.window)
			l.mu.Lock()
			for key, hits := range l.attempts {
				kept := hits[:0]
				for _, t := range hits {
					if t.After(cutoff) {
						kept = append(kept, t)
					}
				}
				if len(kept) == 0 {
					delete(l.attempts, key)
				} else {
					l.attempts[key] = kept
				}
			}
			l.mu.Unlock()
		case <-l.done:
			return
		}
	}
}

// Stop ends the background cleanup.
func (l *RateLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.done) })
}

// Allow checks the limit and records the attempt when it is allowed.
func (l *RateLimiter) Allow(key string) bool {
	if !l.Check(key) {
		return false
	}
	l.Record(key)
	return true
}

// Check returns true if key has not exceeded the limit.
// It does not record an attempt; login flows call Record on failure only.
func (l *RateLimiter) Check(key string) bool {
	cutoff := time.Now().Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	hits := l.attempts[key]
	kept := hits[:0]
	for _, t := range hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	l.attempts[key] = kept
	return len(kept) < l.max
}

// Record registers an attempt for key.
func (l *RateLimiter) Record(key string) {
	l.mu.Lock()
	l.attempts[key] = append(l.attempts[key], time.Now())
	l.mu.Unlock()
}

// Reset forgets every attempt for key, e.g. after a successful login.
func (l *RateLimiter) Reset(key string) {
	l.mu.Lock()
	delete(l.attempts, key)
	l.mu.Unlock()
}
