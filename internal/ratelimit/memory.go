package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is a fixed window limiter held in process memory.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time

	cleanupInterval time.Duration
	stopCh          chan struct{}
	doneCh          chan struct{}
	stopOnce        sync.Once
}

// NewMemoryLimiter starts a limiter whose expired windows are dropped every
// cleanupInterval. Call Stop to end the cleanup goroutine.
func NewMemoryLimiter(cleanupInterval time.Duration) *MemoryLimiter {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	l := &MemoryLimiter{
		windows:         make(map[string]*window),
		now:             time.Now,
		cleanupInterval: cleanupInterval,
		stopCh:          make(chan struct{}),
		doneCh:          make(chan struct{}),
	}

	go l.cleanupLoop()

	return l
}

func (l *MemoryLimiter) Allow(_ context.Context, b Budget, key string) (Decision, error) {
	now := l.now()
	k := counterKey(b, key)

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[k]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(b.Window)}
		l.windows[k] = w
	}
	w.count++

	d := Decision{Limit: b.Limit}
	if w.count > b.Limit {
		d.RetryAfter = w.resetAt.Sub(now)
		return d, nil
	}
	d.Allowed = true
	d.Remaining = b.Limit - w.count
	return d, nil
}

// Len returns the number of live counters.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Stop ends the cleanup goroutine and waits for it to exit.
func (l *MemoryLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
	<-l.doneCh
}

func (l *MemoryLimiter) cleanupLoop() {
	defer close(l.doneCh)

	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stopCh:
			return
		}
	}
}

func (l *MemoryLimiter) cleanup() {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for k, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, k)
		}
	}
}
