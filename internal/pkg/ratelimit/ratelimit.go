package ratelimit

import (
	"context"
	"time"
)

// Store tracks request timestamps per identifier inside a sliding window.
// Implementations must be safe for concurrent use.
type Store interface {
	// Allow records a hit for key unless the window already holds max hits.
	// Returns whether the hit was admitted and, on rejection, how long until
	// the oldest hit leaves the window.
	Allow(ctx context.Context, key string, max int, window time.Duration) (bool, time.Duration, error)
}

// Limiter binds a store to a fixed policy. Endpoints with different budgets
// get their own Limiter over a shared store.
type Limiter struct {
	store  Store
	max    int
	window time.Duration
}

// New creates a limiter allowing max hits per window.
func New(store Store, max int, window time.Duration) *Limiter {
	return &Limiter{store: store, max: max, window: window}
}

// Allow reports whether a request for the given identifier may proceed.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	return l.store.Allow(ctx, key, l.max, l.window)
}
