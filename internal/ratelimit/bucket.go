package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type bucketEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// TokenBucket is a smoothing limiter: a budget of Limit per Window refills
// continuously and allows bursts of up to Limit.
type TokenBucket struct {
	mu      sync.Mutex
	buckets map[string]*bucketEntry

	cleanupInterval time.Duration
	stopCh          chan struct{}
	doneCh          chan struct{}
	stopOnce        sync.Once
}

func NewTokenBucket(cleanupInterval time.Duration) *TokenBucket {
	if cleanupInterval <= 0 {
		cleanupInterval = 5 * time.Minute
	}
	tb := &TokenBucket{
		buckets:         make(map[string]*bucketEntry),
		cleanupInterval: cleanupInterval,
		stopCh:          make(chan struct{}),
		doneCh:          make(chan struct{}),
	}

	go tb.cleanupLoop()

	return tb
}

func (tb *TokenBucket) Allow(_ context.Context, b Budget, key string) (Decision, error) {
	interval := b.Window / time.Duration(b.Limit)
	lim := tb.get(counterKey(b, key), rate.Every(interval), b.Limit)

	d := Decision{Limit: b.Limit}
	if !lim.Allow() {
		// One token refills per interval.
		d.RetryAfter = interval
		return d, nil
	}
	d.Allowed = true
	d.Remaining = max(int(lim.Tokens()), 0)
	return d, nil
}

func (tb *TokenBucket) get(key string, r rate.Limit, burst int) *rate.Limiter {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	e, ok := tb.buckets[key]
	if !ok {
		e = &bucketEntry{limiter: rate.NewLimiter(r, burst)}
		tb.buckets[key] = e
	}
	e.lastAccess = time.Now()
	return e.limiter
}

// Stop ends the cleanup goroutine and waits for it to exit.
func (tb *TokenBucket) Stop() {
	tb.stopOnce.Do(func() { close(tb.stopCh) })
	<-tb.doneCh
}

func (tb *TokenBucket) cleanupLoop() {
	defer close(tb.doneCh)

	ticker := time.NewTicker(tb.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			tb.cleanup()
		case <-tb.stopCh:
			return
		}
	}
}

// cleanup drops buckets idle for two cleanup intervals.
func (tb *TokenBucket) cleanup() {
	ttl := tb.cleanupInterval * 2
	now := time.Now()

	tb.mu.Lock()
	defer tb.mu.Unlock()

	for k, e := range tb.buckets {
		if now.Sub(e.lastAccess) > ttl {
			delete(tb.buckets, k)
		}
	}
}
