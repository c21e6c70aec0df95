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
	"unicode"
	"unicode/utf8"
)

// ResponseGuard runs post-hoc quality and tone checks on generated answers.
// Its verdicts are advisory: callers log and count them but keep the answer.
type ResponseGuard struct {
	quality QualityRules
	words   map[string]bool
}

// NewResponseGuard builds a guard from the response section of a policy.
func NewResponseGuard(rules ResponseRules) *ResponseGuard {
	words := make(map[string]bool, len(rules.Tone.UnprofessionalWords))
	for _, w := range rules.Tone.UnprofessionalWords {
		words[strings.ToLower(w)] = true
	}
	return &ResponseGuard{quality: rules.Quality, words: words}
}

// ValidateResponseQuality flags answers that are too short, merely restate
// the question, or are short stock non-answers.
func (g *ResponseGuard) ValidateResponseQuality(answer, question string) Decision {
	n := utf8.RuneCountInString(answer)
	if n < g.quality.MinLength {
		return Block(ReasonQualityTooShort, "Response too short")
	}
	if question != "" && n < g.quality.RestateMaxLength &&
		strings.Contains(strings.ToLower(answer), strings.ToLower(question)) {
		return Block(ReasonQualityRestates, "Response just repeats question")
	}
	if n < g.quality.UnhelpfulMaxLength {
		for _, phrase := range g.quality.UnhelpfulPhrases {
			if strings.Contains(answer, phrase) {
				return Block(ReasonQualityUnhelpful, "Response not helpful")
			}
		}
	}
	return Allow()
}

// EnsureProfessionalTone reports false when the answer uses casual slang.
// Words are matched whole, so "yo" does not flag "your".
func (g *ResponseGuard) EnsureProfessionalTone(answer string) bool {
	if len(g.words) == 0 {
		return true
	}
	tokens := strings.FieldsFunc(strings.ToLower(answer), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, tok := range tokens {
		if g.words[tok] {
			return false
		}
	}
	return true
}

// Review runs both advisory checks and returns every flag raised.
func (g *ResponseGuard) Review(answer, question string) []Decision {
	var flags []Decision
	if d := g.ValidateResponseQuality(answer, question); d.Blocked() {
		flags = append(flags, d)
	}
	if !g.EnsureProfessionalTone(answer) {
		flags = append(flags, Block(ReasonUnprofessionalTone, "Response tone is unprofessional"))
	}
	return flags
}
