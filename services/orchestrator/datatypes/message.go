// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes holds the wire types shared by the assistant's
// handlers, pipeline and backend adapters.
package datatypes

import "slices"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"maxbytes"`
}

// IsConversational reports whether role may appear in client history.
// System prompts are only ever authored by the assistant itself.
func IsConversational(role string) bool {
	return role == RoleUser || role == RoleAssistant
}

// TrailingTurns returns a copy of the last n user or assistant turns of
// history, oldest first. Turns with any other role are dropped before
// counting. history itself is never modified.
func TrailingTurns(history []Message, n int) []Message {
	if n <= 0 || len(history) == 0 {
		return nil
	}
	out := make([]Message, 0, min(n, len(history)))
	for i := len(history) - 1; i >= 0 && len(out) < n; i-- {
		if IsConversational(history[i].Role) {
			out = append(out, history[i])
		}
	}
	if len(out) == 0 {
		return nil
	}
	slices.Reverse(out)
	return out
}
