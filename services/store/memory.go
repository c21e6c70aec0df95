// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// memoryKV keeps everything in a map. Expired entries are dropped lazily.
type memoryKV struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore returns a Store that lives only as long as the process.
func NewMemoryStore(opts Options) Store {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return newKVStore(&memoryKV{entries: make(map[string]memoryEntry), now: opts.Now}, opts)
}

func (m *memoryKV) live(e memoryEntry) bool {
	return e.expires.IsZero() || m.now().Before(e.expires)
}

func (m *memoryKV) get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok || !m.live(e) {
		return nil, errKeyNotFound
	}
	return append([]byte(nil), e.value...), nil
}

func (m *memoryKV) put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
	return nil
}

func (m *memoryKV) putIfAbsent(_ context.Context, key string, value []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok && m.live(e) {
		return false, nil
	}
	m.entries[key] = memoryEntry{value: append([]byte(nil), value...)}
	return true, nil
}

func (m *memoryKV) del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	for _, k := range keys {
		delete(m.entries, k)
	}
	m.mu.Unlock()
	return nil
}

func (m *memoryKV) scan(_ context.Context, prefix string) ([]kvPair, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []kvPair
	for k, e := range m.entries {
		if strings.HasPrefix(k, prefix) && m.live(e) {
			out = append(out, kvPair{key: k, value: append([]byte(nil), e.value...)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out, nil
}

func (m *memoryKV) close() error { return nil }
