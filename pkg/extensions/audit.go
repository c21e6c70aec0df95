// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extensions

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Audit event types emitted by the pipeline.
const (
	EventGuardrailBlocked  = "guardrail.blocked"
	EventGuardrailAdvisory = "guardrail.advisory"
	EventUserRegistered    = "auth.registered"
	EventLoginFailed       = "auth.login_failed"
)

// AuditEvent is one security-relevant occurrence.
type AuditEvent struct {
	EventType    string         `json:"event_type"`
	Timestamp    time.Time      `json:"timestamp"`
	UserID       string         `json:"user_id,omitempty"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type,omitempty"`
	ResourceID   string         `json:"resource_id,omitempty"`
	Outcome      string         `json:"outcome"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// AuditFilter selects events for Query. Zero fields match everything.
type AuditFilter struct {
	EventTypes []string
	UserID     string
	StartTime  time.Time
	EndTime    time.Time
	Outcome    string
	Limit      int
	Offset     int
}

func (f AuditFilter) matches(e AuditEvent) bool {
	if len(f.EventTypes) > 0 {
		found := false
		for _, t := range f.EventTypes {
			if t == e.EventType {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.UserID != "" && f.UserID != e.UserID {
		return false
	}
	if f.Outcome != "" && f.Outcome != e.Outcome {
		return false
	}
	if !f.StartTime.IsZero() && e.Timestamp.Before(f.StartTime) {
		return false
	}
	if !f.EndTime.IsZero() && !e.Timestamp.Before(f.EndTime) {
		return false
	}
	return true
}

// AuditLogger records audit events. Log must not block the request path
// for long; implementations should buffer.
type AuditLogger interface {
	Log(ctx context.Context, event AuditEvent) error
	Query(ctx context.Context, filter AuditFilter) ([]AuditEvent, error)
	Flush(ctx context.Context) error
}

// NopAuditLogger discards events.
type NopAuditLogger struct{}

func (l *NopAuditLogger) Log(context.Context, AuditEvent) error { return nil }

func (l *NopAuditLogger) Query(context.Context, AuditFilter) ([]AuditEvent, error) {
	return []AuditEvent{}, nil
}

func (l *NopAuditLogger) Flush(context.Context) error { return nil }

// =============================================================================
// In-memory audit log
// =============================================================================

// MemoryAuditLogger keeps the most recent events in memory. When capacity
// is reached the oldest event is dropped.
type MemoryAuditLogger struct {
	mu       sync.Mutex
	events   []AuditEvent
	capacity int
	now      func() time.Time
}

// NewMemoryAuditLogger creates a logger holding at most capacity events.
// capacity <= 0 means 1000.
func NewMemoryAuditLogger(capacity int) *MemoryAuditLogger {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemoryAuditLogger{capacity: capacity, now: time.Now}
}

func (l *MemoryAuditLogger) Log(_ context.Context, event AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = l.now()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.events) == l.capacity {
		copy(l.events, l.events[1:])
		l.events = l.events[:len(l.events)-1]
	}
	l.events = append(l.events, event)
	return nil
}

// Query returns matching events, newest first.
func (l *MemoryAuditLogger) Query(_ context.Context, filter AuditFilter) ([]AuditEvent, error) {
	l.mu.Lock()
	matched := make([]AuditEvent, 0, len(l.events))
	for _, e := range l.events {
		if filter.matches(e) {
			matched = append(matched, e)
		}
	}
	l.mu.Unlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []AuditEvent{}, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (l *MemoryAuditLogger) Flush(context.Context) error { return nil }

// =============================================================================
// Structured-log audit sink
// =============================================================================

// SlogAuditLogger writes every event as a structured log record and keeps
// a bounded in-memory copy so Query keeps working.
type SlogAuditLogger struct {
	logger *slog.Logger
	memory *MemoryAuditLogger
}

// NewSlogAuditLogger writes to logger under the "audit" group.
func NewSlogAuditLogger(logger *slog.Logger, capacity int) *SlogAuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogAuditLogger{logger: logger, memory: NewMemoryAuditLogger(capacity)}
}

func (l *SlogAuditLogger) Log(ctx context.Context, event AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	attrs := []any{
		"event_type", event.EventType,
		"action", event.Action,
		"outcome", event.Outcome,
	}
	if event.UserID != "" {
		attrs = append(attrs, "user_id", event.UserID)
	}
	if event.ResourceID != "" {
		attrs = append(attrs, "resource_type", event.ResourceType, "resource_id", event.ResourceID)
	}
	for k, v := range event.Metadata {
		attrs = append(attrs, k, v)
	}
	l.logger.InfoContext(ctx, "Audit event", slog.Group("audit", attrs...))
	return l.memory.Log(ctx, event)
}

func (l *SlogAuditLogger) Query(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	return l.memory.Query(ctx, filter)
}

func (l *SlogAuditLogger) Flush(context.Context) error { return nil }

var (
	_ AuditLogger = (*NopAuditLogger)(nil)
	_ AuditLogger = (*MemoryAuditLogger)(nil)
	_ AuditLogger = (*SlogAuditLogger)(nil)
)
