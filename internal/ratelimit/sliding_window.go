package ratelimit

import (
	"context"
	"sync"
	"time"
)

// SlidingWindow is an in-memory per-key sliding window rate limiter.
// State is per-process and resets on restart; running more than one
// instance of the service needs a shared counter store instead.
type SlidingWindow struct {
	mu     sync.Mutex
	events map[string][]time.Time
	now    func() time.Time
}

func NewSlidingWindow() *SlidingWindow {
	return &SlidingWindow{
		events: make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Allow reports whether another event for key fits within limit events
// per trailing window. Instants older than the window are purged first;
// a denied call does not record the current instant.
func (l *SlidingWindow) Allow(key string, limit int, window time.Duration) bool {
	now := l.now()
	cutoff := now.Add(-window)

	l.mu.Lock()
	defer l.mu.Unlock()

	q := l.events[key]
	i := 0
	for i < len(q) && !q[i].After(cutoff) {
		i++
	}
	if i > 0 {
		q = append(q[:0], q[i:]...)
	}

	if len(q) >= limit {
		l.events[key] = q
		return false
	}

	l.events[key] = append(q, now)
	return true
}

// StartJanitor periodically drops keys whose entire window has expired,
// bounding memory for senders that went quiet. The window passed here
// should be at least as long as the longest window used with Allow.
func (l *SlidingWindow) StartJanitor(ctx context.Context, interval, window time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.sweep(window)
			}
		}
	}()
}

func (l *SlidingWindow) sweep(window time.Duration) {
	cutoff := l.now().Add(-window)

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, q := range l.events {
		if len(q) == 0 || !q[len(q)-1].After(cutoff) {
			delete(l.events, key)
		}
	}
}
