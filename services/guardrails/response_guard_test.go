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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResponseGuard(t *testing.T) *ResponseGuard {
	t.Helper()
	p, err := DefaultPolicy()
	require.NoError(t, err)
	return NewResponseGuard(p.Response)
}

func TestResponseGuard_ValidateResponseQuality(t *testing.T) {
	g := newTestResponseGuard(t)

	tests := []struct {
		name       string
		answer     string
		question   string
		wantReason Reason
		wantMsg    string
	}{
		{"too short", "Yes.", "Is there a dress code?", ReasonQualityTooShort, "Response too short"},
		{
			"restates question",
			"What is the PTO policy? Good question.",
			"what is the pto policy?",
			ReasonQualityRestates,
			"Response just repeats question",
		},
		{"unhelpful stock phrase", "I don't know the answer to that.", "Who is my manager?", ReasonQualityUnhelpful, "Response not helpful"},
		{
			"long answer containing a stock phrase is fine",
			"I'm not sure which office you mean, but every office follows the same 9 to 5 core hours.",
			"What are the office hours?",
			ReasonNone,
			"",
		},
		{
			"long answer containing the question is fine",
			"Who approves expenses? Your direct manager approves expenses under 500 dollars, and finance reviews anything above that amount.",
			"Who approves expenses?",
			ReasonNone,
			"",
		},
		{"good answer", "Employees accrue 20 PTO days per year.", "How much PTO do I get?", ReasonNone, ""},
		{"empty question skips restate", "Employees accrue 20 PTO days per year.", "", ReasonNone, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := g.ValidateResponseQuality(tt.answer, tt.question)
			assert.Equal(t, tt.wantReason, d.Reason)
			assert.Equal(t, tt.wantMsg, d.Message)
		})
	}
}

func TestResponseGuard_EnsureProfessionalTone(t *testing.T) {
	g := newTestResponseGuard(t)

	assert.True(t, g.EnsureProfessionalTone("Your manager will approve your timesheet."))
	assert.True(t, g.EnsureProfessionalTone("Bromine is not on the safety list."))
	assert.False(t, g.EnsureProfessionalTone("Yo, the office opens at 9."))
	assert.False(t, g.EnsureProfessionalTone("That policy is strict LOL."))
	assert.False(t, g.EnsureProfessionalTone("ok bro, here you go"))
}

func TestResponseGuard_EmptyToneList(t *testing.T) {
	g := NewResponseGuard(ResponseRules{})
	assert.True(t, g.EnsureProfessionalTone("dude"))
}

func TestResponseGuard_Review(t *testing.T) {
	g := newTestResponseGuard(t)

	assert.Empty(t, g.Review("Employees accrue 20 PTO days per year.", "How much PTO do I get?"))

	flags := g.Review("lol idk", "How much PTO do I get?")
	require.Len(t, flags, 2)
	assert.Equal(t, ReasonQualityTooShort, flags[0].Reason)
	assert.Equal(t, ReasonUnprofessionalTone, flags[1].Reason)

	long := strings.Repeat("The handbook covers this in detail. ", 3) + "dude"
	flags = g.Review(long, "")
	require.Len(t, flags, 1)
	assert.Equal(t, ReasonUnprofessionalTone, flags[0].Reason)
}
