// Package ratelimit bounds the rate of outbound calls to the upstream API.
//
// A single Limiter is constructed per process by the session factory and
// shared by every client it opens; there is no package-level singleton.
// Every outbound call acquires a permit before issuing its request.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Defaults sized against the upstream allowance of 60 requests per minute,
// kept under it for safety.
const (
	DefaultCapacity = 50
	DefaultWindow   = time.Minute
)

// Limiter is a token-bucket gate: bursts up to capacity, replenished
// continuously so the long-run rate never exceeds capacity/window.
//
// It is safe for concurrent acquisition. Waiters are served from queued
// reservations, so every waiter eventually acquires a permit.
type Limiter struct {
	bucket   *rate.Limiter
	capacity int
	window   time.Duration
}

// New creates a Limiter allowing capacity permits per window.
// Invalid values are normalized: capacity < 1 becomes 1, window <= 0
// becomes one second.
func New(capacity int, window time.Duration) *Limiter {
	if capacity < 1 {
		capacity = 1
	}
	if window <= 0 {
		window = time.Second
	}

	perSecond := float64(capacity) / window.Seconds()
	return &Limiter{
		bucket:   rate.NewLimiter(rate.Limit(perSecond), capacity),
		capacity: capacity,
		window:   window,
	}
}

// Acquire blocks until a permit is available or ctx is done.
// A cancelled waiter returns ctx.Err() and gives its reservation back, so
// cancellation never consumes a permit.
func (l *Limiter) Acquire(ctx context.Context) error {
	return l.bucket.Wait(ctx)
}

// Capacity returns the configured permit count per window.
func (l *Limiter) Capacity() int { return l.capacity }

// Window returns the configured window duration.
func (l *Limiter) Window() time.Duration { return l.window }
