// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestTokenBucket(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	tb := newTokenBucket(3, 2, clock.now)

	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow(), "bucket should be empty")

	// Fractional refills accumulate.
	clock.advance(250 * time.Millisecond)
	assert.False(t, tb.Allow())
	clock.advance(250 * time.Millisecond)
	assert.True(t, tb.Allow())

	clock.advance(time.Hour)
	assert.Equal(t, int64(3), tb.Available(), "refill is capped at capacity")

	assert.False(t, tb.AllowN(4))
	assert.Equal(t, int64(3), tb.Available(), "refused call takes nothing")
	assert.True(t, tb.AllowN(3))
}

func TestLimiterPerSession(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	l := NewLimiter(1, 1, 2)
	l.now = clock.now

	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"), "sessions have separate buckets")

	assert.False(t, l.Allow("c"), "session limit reached")
	assert.Equal(t, 2, l.Sessions())

	l.Remove("a")
	assert.True(t, l.Allow("c"))

	clock.advance(time.Second)
	assert.True(t, l.Allow("b"))
}

func TestTokenBucketConcurrent(t *testing.T) {
	tb := NewTokenBucket(100, 0)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if tb.Allow() {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, allowed)
}
