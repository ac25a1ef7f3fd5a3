// Package ratelimit provides rate limiting for panel API calls using a token bucket algorithm.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/panelfs/panelfs/internal/constants"
)

// RateLimiter implements a token bucket rate limiter.
// It allows bursts up to maxTokens, then refills at refillRate tokens/second.
// A cooldown (set after HTTP 429) blocks all acquisitions until it expires.
type RateLimiter struct {
	tokens        float64   // Current number of tokens available
	maxTokens     float64   // Maximum bucket capacity
	refillRate    float64   // Tokens added per second
	lastRefill    time.Time // Last time tokens were refilled
	lastWarnTime  time.Time // Last time we warned about rate limiting
	cooldownUntil time.Time
	mu            sync.Mutex
}

// NewRateLimiter creates a new rate limiter.
//
// Parameters:
//   - tokensPerSecond: Rate at which tokens are added (e.g., 3.0 for 3 tokens/second)
//   - burstSize: Maximum tokens that can accumulate (allows brief bursts)
func NewRateLimiter(tokensPerSecond float64, burstSize float64) *RateLimiter {
	return &RateLimiter{
		tokens:     burstSize, // Start with full bucket
		maxTokens:  burstSize,
		refillRate: tokensPerSecond,
		lastRefill: time.Now(),
	}
}

// NewPanelRateLimiter creates the limiter shared by every call made with one
// client API key.
//
// Target Rate: 3.2 req/sec (80% of the panel's 240/minute key throttle)
// Burst Capacity: 60 tokens, enough for a deep tree expansion at startup
func NewPanelRateLimiter() *RateLimiter {
	return NewRateLimiter(constants.PanelRatePerSec, constants.PanelBurstCapacity)
}

// Wait blocks until a token is available or context is cancelled.
// Returns an error if the context is cancelled before a token becomes available.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	startTime := time.Now()

	if d := rl.CooldownRemaining(); d == 0 && rl.tryAcquire() {
		return nil
	}

	waitTime := rl.timeUntilNextToken()
	if waitTime > 2*time.Second {
		rl.mu.Lock()
		if time.Since(rl.lastWarnTime) > constants.RateLimitWarnInterval {
			log.Warn().Msgf("rate limited: waiting ~%.1fs for API capacity", waitTime.Seconds())
			rl.lastWarnTime = time.Now()
		}
		rl.mu.Unlock()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if rl.CooldownRemaining() == 0 && rl.tryAcquire() {
			if actualWait := time.Since(startTime); actualWait > 5*time.Second {
				log.Info().Msgf("rate limit wait completed after %.1fs", actualWait.Seconds())
			}
			return nil
		}

		waitDuration := rl.timeUntilNextToken()
		if waitDuration <= 0 {
			waitDuration = time.Millisecond
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitDuration):
		}
	}
}

// tryAcquire attempts to acquire one token without blocking.
func (rl *RateLimiter) tryAcquire() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refillLocked(time.Now())

	if rl.tokens >= 1.0 {
		rl.tokens -= 1.0
		return true
	}
	return false
}

func (rl *RateLimiter) refillLocked(now time.Time) {
	elapsed := now.Sub(rl.lastRefill).Seconds()
	rl.tokens += elapsed * rl.refillRate
	if rl.tokens > rl.maxTokens {
		rl.tokens = rl.maxTokens
	}
	rl.lastRefill = now
}

// timeUntilNextToken returns how long until a token can be acquired,
// including any active cooldown.
func (rl *RateLimiter) timeUntilNextToken() time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Before(rl.cooldownUntil) {
		return rl.cooldownUntil.Sub(now)
	}

	tokensNeeded := 1.0 - rl.tokens
	if tokensNeeded <= 0 {
		return 0
	}
	return time.Duration(tokensNeeded / rl.refillRate * float64(time.Second))
}

// GetCurrentTokens returns the current number of tokens (for testing/debugging).
func (rl *RateLimiter) GetCurrentTokens() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	elapsed := time.Since(rl.lastRefill).Seconds()
	tokens := rl.tokens + (elapsed * rl.refillRate)
	if tokens > rl.maxTokens {
		tokens = rl.maxTokens
	}
	return tokens
}

// Drain empties the bucket. Called when the panel answers 429, since the
// server-side budget is evidently spent regardless of our local count.
func (rl *RateLimiter) Drain() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.tokens = 0
	rl.lastRefill = time.Now()
}

// SetCooldown blocks acquisitions for d. A cooldown never shortens an
// existing longer one.
func (rl *RateLimiter) SetCooldown(d time.Duration) {
	if d <= 0 {
		return
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if until := time.Now().Add(d); until.After(rl.cooldownUntil) {
		rl.cooldownUntil = until
	}
}

// CooldownRemaining returns the time left on the active cooldown, or 0.
func (rl *RateLimiter) CooldownRemaining() time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if d := time.Until(rl.cooldownUntil); d > 0 {
		return d
	}
	return 0
}
