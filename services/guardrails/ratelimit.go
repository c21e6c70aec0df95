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
	"container/list"
	"sync"
	"sync/atomic"
	"time"
)

// =============================================================================
// Configuration
// =============================================================================

const (
	// DefaultRateLimit is the number of accepted requests per identity per window.
	DefaultRateLimit = 10

	// DefaultRateWindow is the length of the sliding window.
	DefaultRateWindow = time.Minute

	// DefaultMaxIdentities bounds the number of identities tracked at once.
	DefaultMaxIdentities = 10000
)

// RateLimitConfig configures a RateLimiter. Zero fields take defaults.
type RateLimitConfig struct {
	// Limit is the maximum accepted requests inside one window.
	Limit int

	// Window is the trailing interval counted by the limiter.
	Window time.Duration

	// MaxIdentities caps how many identity windows are kept. When the cap is
	// exceeded the least recently used idle identity is evicted.
	MaxIdentities int

	// Now returns the current time. Tests inject a fake clock here.
	Now func() time.Time
}

// DefaultRateLimitConfig returns 10 requests per minute for up to 10k identities.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Limit:         DefaultRateLimit,
		Window:        DefaultRateWindow,
		MaxIdentities: DefaultMaxIdentities,
		Now:           time.Now,
	}
}

// =============================================================================
// RateLimiter
// =============================================================================

// RateLimiter is a per-identity sliding-window request counter.
//
// # Description
//
// Each identity owns an ordered list of timestamps of accepted requests. On
// every call timestamps older than the window are purged; if the remaining
// count has reached the limit the request is rejected and the window is left
// untouched, otherwise the current time is appended and the request accepted.
//
// # Thread Safety
//
// Each identity window carries its own mutex, so requests for different
// identities never contend on a shared lock while counting. The index lock
// is held only to find or create a window and to maintain LRU order.
//
// # Limitations
//
//   - State is process-local. Several replicas each enforce their own limit.
//   - Windows that are in use by an in-flight call are never evicted; the
//     index can briefly exceed MaxIdentities under heavy concurrency.
type RateLimiter struct {
	limit         int
	window        time.Duration
	maxIdentities int
	now           func() time.Time

	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List // front = most recently used

	evictions int64
}

// rateWindow is the per-identity state. stamps is guarded by mu; refs is
// guarded by the limiter's index lock.
type rateWindow struct {
	identity string
	refs     int

	mu     sync.Mutex
	stamps []time.Time
}

// NewRateLimiter builds a limiter, filling unset config fields with defaults.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	def := DefaultRateLimitConfig()
	if cfg.Limit <= 0 {
		cfg.Limit = def.Limit
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.MaxIdentities <= 0 {
		cfg.MaxIdentities = def.MaxIdentities
	}
	if cfg.Now == nil {
		cfg.Now = def.Now
	}
	return &RateLimiter{
		limit:         cfg.Limit,
		window:        cfg.Window,
		maxIdentities: cfg.MaxIdentities,
		now:           cfg.Now,
		entries:       make(map[string]*list.Element),
		lru:           list.New(),
	}
}

// Allow records a request for identity and reports whether it is within the
// limit. An empty identity is always allowed and never tracked.
func (r *RateLimiter) Allow(identity string) bool {
	if identity == "" {
		return true
	}

	w := r.acquire(identity)
	defer r.release(w)

	w.mu.Lock()
	defer w.mu.Unlock()

	now := r.now()
	w.purge(now.Add(-r.window))
	if len(w.stamps) >= r.limit {
		return false
	}
	w.stamps = append(w.stamps, now)
	return true
}

// Remaining returns how many more requests identity may make right now.
func (r *RateLimiter) Remaining(identity string) int {
	if identity == "" {
		return r.limit
	}
	r.mu.Lock()
	elem, ok := r.entries[identity]
	r.mu.Unlock()
	if !ok {
		return r.limit
	}

	w := elem.Value.(*rateWindow)
	w.mu.Lock()
	defer w.mu.Unlock()
	cutoff := r.now().Add(-r.window)
	count := 0
	for _, ts := range w.stamps {
		if ts.After(cutoff) {
			count++
		}
	}
	if count >= r.limit {
		return 0
	}
	return r.limit - count
}

// Reset forgets all state for identity. A window pinned by an in-flight
// Allow is cleared in place so that call keeps counting against the same
// entry.
func (r *RateLimiter) Reset(identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	elem, ok := r.entries[identity]
	if !ok {
		return
	}
	w := elem.Value.(*rateWindow)
	if w.refs > 0 {
		w.mu.Lock()
		w.stamps = nil
		w.mu.Unlock()
		return
	}
	r.lru.Remove(elem)
	delete(r.entries, identity)
}

// Len returns the number of identities currently tracked.
func (r *RateLimiter) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Evictions returns how many identities were dropped by the LRU bound.
func (r *RateLimiter) Evictions() int64 {
	return atomic.LoadInt64(&r.evictions)
}

// Limit returns the configured per-window limit.
func (r *RateLimiter) Limit() int { return r.limit }

// Window returns the configured window length.
func (r *RateLimiter) Window() time.Duration { return r.window }

// acquire finds or creates the window for identity, marks it most recently
// used and pins it against eviction until release.
func (r *RateLimiter) acquire(identity string) *rateWindow {
	r.mu.Lock()
	defer r.mu.Unlock()

	if elem, ok := r.entries[identity]; ok {
		r.lru.MoveToFront(elem)
		w := elem.Value.(*rateWindow)
		w.refs++
		return w
	}

	w := &rateWindow{identity: identity, refs: 1}
	r.entries[identity] = r.lru.PushFront(w)
	r.evictIfNeeded()
	return w
}

func (r *RateLimiter) release(w *rateWindow) {
	r.mu.Lock()
	w.refs--
	r.mu.Unlock()
}

// evictIfNeeded drops idle windows from the back of the LRU list until the
// index fits. Caller holds r.mu.
func (r *RateLimiter) evictIfNeeded() {
	for len(r.entries) > r.maxIdentities {
		if !r.evictOne() {
			return
		}
	}
}

func (r *RateLimiter) evictOne() bool {
	for e := r.lru.Back(); e != nil; e = e.Prev() {
		w := e.Value.(*rateWindow)
		if w.refs > 0 {
			continue
		}
		r.lru.Remove(e)
		delete(r.entries, w.identity)
		atomic.AddInt64(&r.evictions, 1)
		return true
	}
	return false
}

// purge removes timestamps at or before cutoff. Timestamps are appended in
// call order so the slice is sorted.
func (w *rateWindow) purge(cutoff time.Time) {
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return
	}
	n := copy(w.stamps, w.stamps[i:])
	w.stamps = w.stamps[:n]
}
