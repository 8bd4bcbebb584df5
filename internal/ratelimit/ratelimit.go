package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// SimpleRateLimiter spaces consecutive page loads by a delay drawn from
// [minDelay, maxDelay]. Each Wait reserves the next free slot, so a limiter
// shared by several workers bounds their combined request rate.
type SimpleRateLimiter struct {
	mu       sync.Mutex
	minDelay time.Duration
	maxDelay time.Duration
	next     time.Time
}

func NewSimpleRateLimiter(minDelay, maxDelay time.Duration) *SimpleRateLimiter {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &SimpleRateLimiter{
		minDelay: minDelay,
		maxDelay: maxDelay,
	}
}

// Wait blocks until the caller's slot starts. A canceled wait hands its slot
// back when no later caller has reserved after it.
func (r *SimpleRateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	now := time.Now()
	start := r.next
	if start.Before(now) {
		start = now
	}
	end := start.Add(r.delayLocked())
	r.next = end
	r.mu.Unlock()

	wait := time.Until(start)
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		r.mu.Lock()
		if r.next.Equal(end) {
			r.next = start
		}
		r.mu.Unlock()
		return ctx.Err()
	}
}

// Delay returns the current delay range.
func (r *SimpleRateLimiter) Delay() (time.Duration, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.minDelay, r.maxDelay
}

func (r *SimpleRateLimiter) delayLocked() time.Duration {
	if r.maxDelay <= r.minDelay {
		return r.minDelay
	}
	return r.minDelay + time.Duration(rand.Int63n(int64(r.maxDelay-r.minDelay)))
}

// Policy controls how an AdaptiveRateLimiter reacts to fetch results.
type Policy struct {
	// ErrorThreshold consecutive failures widen the range by BackoffFactor.
	ErrorThreshold int
	BackoffFactor  float64
	// SuccessThreshold consecutive successes narrow the lower bound by
	// RecoveryFactor, never below the configured minimum.
	SuccessThreshold int
	RecoveryFactor   float64
	CeilingMin       time.Duration
	CeilingMax       time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		ErrorThreshold:   3,
		BackoffFactor:    1.5,
		SuccessThreshold: 6,
		RecoveryFactor:   0.9,
		CeilingMin:       60 * time.Second,
		CeilingMax:       120 * time.Second,
	}
}

// AdaptiveRateLimiter slows down after repeated fetch failures and speeds
// back up towards its floor after a run of successes.
type AdaptiveRateLimiter struct {
	*SimpleRateLimiter
	policy    Policy
	floor     time.Duration
	errors    int
	successes int
}

func NewAdaptiveRateLimiter(minDelay, maxDelay time.Duration) *AdaptiveRateLimiter {
	return NewAdaptiveRateLimiterWithPolicy(minDelay, maxDelay, DefaultPolicy())
}

func NewAdaptiveRateLimiterWithPolicy(minDelay, maxDelay time.Duration, policy Policy) *AdaptiveRateLimiter {
	return &AdaptiveRateLimiter{
		SimpleRateLimiter: NewSimpleRateLimiter(minDelay, maxDelay),
		policy:            policy,
		floor:             minDelay,
	}
}

func (a *AdaptiveRateLimiter) RecordSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.errors = 0
	a.successes++
	if a.successes < a.policy.SuccessThreshold {
		return
	}
	a.successes = 0

	newMin := time.Duration(float64(a.minDelay) * a.policy.RecoveryFactor)
	if newMin < a.floor {
		newMin = a.floor
	}
	a.minDelay = newMin
	if a.maxDelay < newMin {
		a.maxDelay = newMin
	}
}

func (a *AdaptiveRateLimiter) RecordError() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.successes = 0
	a.errors++
	if a.errors < a.policy.ErrorThreshold {
		return
	}
	a.errors = 0

	a.minDelay = min(time.Duration(float64(a.minDelay)*a.policy.BackoffFactor), a.policy.CeilingMin)
	a.maxDelay = min(time.Duration(float64(a.maxDelay)*a.policy.BackoffFactor), a.policy.CeilingMax)
}
