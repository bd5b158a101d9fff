// Package ratelimit enforces per-client request budgets.
package ratelimit

import (
	"context"
	"time"
)

// Budget is a number of requests allowed per window. Counters are kept per
// budget name, so exhausting one budget never affects another.
type Budget struct {
	Name   string
	Limit  int
	Window time.Duration
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter counts a request against a budget for a client key. Counting is
// atomic per (budget, key) under concurrent calls.
type Limiter interface {
	Allow(ctx context.Context, b Budget, key string) (Decision, error)
}

func counterKey(b Budget, key string) string {
	return b.Name + ":" + key
}
