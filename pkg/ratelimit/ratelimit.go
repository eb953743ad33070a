// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package ratelimit provides command rate limiting using the token bucket
// algorithm.
package ratelimit

import (
	"sync"
	"time"

	"github.com/absmach/hullserver/pkg/errors"
)

// ErrRateLimitExceeded is returned when rate limit is exceeded. The protocol
// answers it with the rate limit line.
var ErrRateLimitExceeded = errors.ErrRateLimited

// TokenBucket implements the token bucket algorithm. It starts full.
type TokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	tokens     float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	now        func() time.Time
}

// NewTokenBucket creates a token bucket holding at most capacity tokens and
// gaining refillRate tokens per second.
func NewTokenBucket(capacity int64, refillRate float64) *TokenBucket {
	return newTokenBucket(capacity, refillRate, time.Now)
}

func newTokenBucket(capacity int64, refillRate float64, now func() time.Time) *TokenBucket {
	return &TokenBucket{
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		refillRate: refillRate,
		lastRefill: now(),
		now:        now,
	}
}

// Allow reports whether one command may proceed and takes its token.
func (tb *TokenBucket) Allow() bool {
	return tb.AllowN(1)
}

// AllowN reports whether n commands may proceed and takes their tokens. A
// refused call takes nothing.
func (tb *TokenBucket) AllowN(n int64) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()

	if tb.tokens >= float64(n) {
		tb.tokens -= float64(n)
		return true
	}
	return false
}

// Available returns the number of whole tokens available.
func (tb *TokenBucket) Available() int64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	return int64(tb.tokens)
}

func (tb *TokenBucket) refill() {
	now := tb.now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	tb.lastRefill = now
	if elapsed <= 0 {
		return
	}

	tb.tokens += elapsed * tb.refillRate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
}

// Limiter keeps one bucket per session.
type Limiter struct {
	mu         sync.Mutex
	limiters   map[string]*TokenBucket
	capacity   int64
	refillRate float64
	maxClients int
	now        func() time.Time
}

// NewLimiter creates a per-session limiter. Sessions beyond maxClients are
// refused until others are removed. Zero maxClients means 10000.
func NewLimiter(capacity int64, refillRate float64, maxClients int) *Limiter {
	if maxClients == 0 {
		maxClients = 10000
	}
	return &Limiter{
		limiters:   make(map[string]*TokenBucket),
		capacity:   capacity,
		refillRate: refillRate,
		maxClients: maxClients,
		now:        time.Now,
	}
}

// Allow reports whether one command from the session may proceed.
func (l *Limiter) Allow(sessionID string) bool {
	return l.AllowN(sessionID, 1)
}

// AllowN reports whether n commands from the session may proceed.
func (l *Limiter) AllowN(sessionID string, n int64) bool {
	l.mu.Lock()
	tb, ok := l.limiters[sessionID]
	if !ok {
		if len(l.limiters) >= l.maxClients {
			l.mu.Unlock()
			return false
		}
		tb = newTokenBucket(l.capacity, l.refillRate, l.now)
		l.limiters[sessionID] = tb
	}
	l.mu.Unlock()

	return tb.AllowN(n)
}

// Remove drops the bucket of a closed session.
func (l *Limiter) Remove(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.limiters, sessionID)
}

// Sessions returns the number of tracked sessions.
func (l *Limiter) Sessions() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
