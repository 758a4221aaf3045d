// Package ratelimit provides the per-source token bucket that every
// adapter call contends on.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter is a token bucket with sleep-to-refill semantics: Wait blocks
// until at least MinInterval has elapsed since the previous admitted call.
// Limiters are instance-scoped, one per source adapter.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
}

// PerSecond builds a limiter admitting rps calls per second. Non-positive
// rps yields an unlimited limiter.
func PerSecond(rps float64) *Limiter {
	if rps <= 0 {
		return &Limiter{}
	}
	return &Limiter{interval: time.Duration(float64(time.Second) / rps)}
}

// PerMinute builds a limiter admitting rpm calls per minute.
func PerMinute(rpm float64) *Limiter {
	if rpm <= 0 {
		return &Limiter{}
	}
	return &Limiter{interval: time.Duration(float64(time.Minute) / rpm)}
}

// Interval exposes the configured spacing between calls.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}

// Wait blocks until the caller may proceed or ctx is done. Callers never
// hold the limiter's lock across the sleep.
func (l *Limiter) Wait(ctx context.Context) error {
	if l.interval <= 0 {
		return ctx.Err()
	}

	l.mu.Lock()
	now := time.Now()
	at := l.next
	if at.Before(now) {
		at = now
	}
	l.next = at.Add(l.interval)
	l.mu.Unlock()

	delay := time.Until(at)
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
