// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package guardrails

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock for deterministic window tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(clock *fakeClock, maxIdentities int) *RateLimiter {
	return NewRateLimiter(RateLimitConfig{
		Limit:         10,
		Window:        time.Minute,
		MaxIdentities: maxIdentities,
		Now:           clock.Now,
	})
}

func TestNewRateLimiter_Defaults(t *testing.T) {
	r := NewRateLimiter(RateLimitConfig{})
	assert.Equal(t, DefaultRateLimit, r.Limit())
	assert.Equal(t, DefaultRateWindow, r.Window())
	assert.Equal(t, DefaultMaxIdentities, r.maxIdentities)
	assert.NotNil(t, r.now)
}

func TestRateLimiter_EleventhCallRejected(t *testing.T) {
	clock := newFakeClock()
	r := newTestLimiter(clock, 100)

	for i := 0; i < 10; i++ {
		require.True(t, r.Allow("user-x"), "call %d should be accepted", i+1)
		clock.Advance(time.Second)
	}
	assert.False(t, r.Allow("user-x"), "11th call within the window must be rejected")
	assert.Equal(t, 0, r.Remaining("user-x"))
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	clock := newFakeClock()
	r := newTestLimiter(clock, 100)

	for i := 0; i < 10; i++ {
		require.True(t, r.Allow("user-x"))
	}
	clock.Advance(30 * time.Second)
	require.False(t, r.Allow("user-x"))

	clock.Advance(31 * time.Second) // 61s after the first call
	assert.True(t, r.Allow("user-x"), "call 61s after the first should be accepted")
}

func TestRateLimiter_RejectionDoesNotMutateWindow(t *testing.T) {
	clock := newFakeClock()
	r := newTestLimiter(clock, 100)

	for i := 0; i < 10; i++ {
		require.True(t, r.Allow("user-x"))
	}
	for i := 0; i < 5; i++ {
		clock.Advance(10 * time.Second)
		require.False(t, r.Allow("user-x"))
	}

	// 61s after the burst: only the accepted burst ever entered the window.
	clock.Advance(11 * time.Second)
	require.True(t, r.Allow("user-x"))
	assert.Equal(t, 9, r.Remaining("user-x"), "rejected calls must not have been recorded")
}

func TestRateLimiter_EmptyIdentityAlwaysAllowed(t *testing.T) {
	r := newTestLimiter(newFakeClock(), 100)
	for i := 0; i < 50; i++ {
		require.True(t, r.Allow(""))
	}
	assert.Equal(t, 0, r.Len(), "anonymous requests must not be tracked")
}

func TestRateLimiter_IdentitiesAreIndependent(t *testing.T) {
	r := newTestLimiter(newFakeClock(), 100)
	for i := 0; i < 10; i++ {
		require.True(t, r.Allow("alice"))
	}
	assert.False(t, r.Allow("alice"))
	assert.True(t, r.Allow("bob"))
	assert.Equal(t, 9, r.Remaining("bob"))
	assert.Equal(t, 10, r.Remaining("carol"))
}

func TestRateLimiter_Reset(t *testing.T) {
	r := newTestLimiter(newFakeClock(), 100)
	for i := 0; i < 10; i++ {
		r.Allow("alice")
	}
	r.Reset("alice")
	assert.Equal(t, 0, r.Len())
	assert.True(t, r.Allow("alice"))
}

func TestRateLimiter_ResetKeepsPinnedWindow(t *testing.T) {
	r := newTestLimiter(newFakeClock(), 100)
	for i := 0; i < 10; i++ {
		r.Allow("alice")
	}
	require.Equal(t, 0, r.Remaining("alice"))

	pinned := r.acquire("alice")
	r.Reset("alice")

	elem, ok := r.entries["alice"]
	require.True(t, ok, "a window in use must stay indexed")
	assert.Same(t, pinned, elem.Value.(*rateWindow))
	assert.Equal(t, 10, r.Remaining("alice"))
	assert.Equal(t, 1, r.Len())

	r.release(pinned)
	assert.True(t, r.Allow("alice"))
	assert.Equal(t, 9, r.Remaining("alice"))
	assert.Equal(t, 1, r.Len(), "no duplicate window after release")

	r.Reset("alice")
	assert.Equal(t, 0, r.Len())
}

func TestRateLimiter_EvictsLeastRecentlyUsed(t *testing.T) {
	r := newTestLimiter(newFakeClock(), 2)

	r.Allow("a")
	r.Allow("b")
	r.Allow("a") // a is now most recently used
	r.Allow("c") // evicts b

	assert.Equal(t, 2, r.Len())
	assert.Equal(t, int64(1), r.Evictions())
	_, hasA := r.entries["a"]
	_, hasB := r.entries["b"]
	_, hasC := r.entries["c"]
	assert.True(t, hasA, "recently used identity must survive")
	assert.False(t, hasB, "least recently used identity must be evicted")
	assert.True(t, hasC)
}

func TestRateLimiter_DoesNotEvictPinnedWindow(t *testing.T) {
	r := newTestLimiter(newFakeClock(), 1)

	pinned := r.acquire("busy")
	r.Allow("other")

	_, hasBusy := r.entries["busy"]
	assert.True(t, hasBusy, "a window in use must not be evicted")
	r.release(pinned)

	r.Allow("third")
	assert.Equal(t, 1, r.Len())
}

func TestRateLimiter_ConcurrentSameIdentity(t *testing.T) {
	r := NewRateLimiter(RateLimitConfig{Limit: 10, Window: time.Minute})

	var accepted int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.Allow("shared") {
				atomic.AddInt64(&accepted, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(10), accepted, "exactly limit calls may be accepted without lost updates")
}

func TestRateLimiter_ConcurrentDistinctIdentities(t *testing.T) {
	r := NewRateLimiter(RateLimitConfig{Limit: 10, Window: time.Minute, MaxIdentities: 1000})

	var rejected int64
	var wg sync.WaitGroup
	for id := 0; id < 50; id++ {
		for call := 0; call < 10; call++ {
			wg.Add(1)
			go func(identity string) {
				defer wg.Done()
				if !r.Allow(identity) {
					atomic.AddInt64(&rejected, 1)
				}
			}(fmt.Sprintf("user-%d", id))
		}
	}
	wg.Wait()

	assert.Zero(t, rejected)
	assert.Equal(t, 50, r.Len())
}

func BenchmarkRateLimiter_Allow(b *testing.B) {
	r := NewRateLimiter(RateLimitConfig{Limit: 1 << 30, Window: time.Minute})
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			r.Allow(fmt.Sprintf("user-%d", i%64))
			i++
		}
	})
}
