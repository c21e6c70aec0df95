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
	"context"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// =============================================================================
// Length
// =============================================================================

type lengthCheck struct {
	min, max          int
	tooShort, tooLong string
}

// NewLengthCheck rejects text outside [min, max] runes. tooLong may contain {max}.
func NewLengthCheck(min, max int, tooShort, tooLong string) Check {
	return &lengthCheck{
		min:      min,
		max:      max,
		tooShort: tooShort,
		tooLong:  render(tooLong, "{max}", strconv.Itoa(max)),
	}
}

func (c *lengthCheck) Name() string { return CheckLength }

func (c *lengthCheck) Evaluate(_ context.Context, text string) Decision {
	n := utf8.RuneCountInString(text)
	if n < c.min {
		return Block(ReasonTooShort, c.tooShort)
	}
	if n > c.max {
		return Block(ReasonTooLong, c.tooLong)
	}
	return Allow()
}

// =============================================================================
// Rate limit
// =============================================================================

type rateLimitCheck struct {
	limiter *RateLimiter
	message string
}

// NewRateLimitCheck consults limiter for the identity carried by the context.
// Requests without an identity are not rate limited.
func NewRateLimitCheck(limiter *RateLimiter, message string) Check {
	return &rateLimitCheck{limiter: limiter, message: message}
}

func (c *rateLimitCheck) Name() string { return CheckRateLimit }

func (c *rateLimitCheck) Evaluate(ctx context.Context, _ string) Decision {
	identity := IdentityFromContext(ctx)
	if identity == "" || c.limiter == nil {
		return Allow()
	}
	if !c.limiter.Allow(identity) {
		return Block(ReasonRateLimited, c.message)
	}
	return Allow()
}

// =============================================================================
// Keywords
// =============================================================================

type keywordCheck struct {
	name       string
	reason     Reason
	categories []KeywordCategory
	message    string
}

// NewKeywordCheck matches lowercase substrings. Categories are tried in
// order and the first category with a matching keyword wins. The category's
// own Message is used when set, otherwise message with {topic} filled in.
func NewKeywordCheck(name string, reason Reason, categories []KeywordCategory, message string) Check {
	lowered := make([]KeywordCategory, len(categories))
	for i, cat := range categories {
		kws := make([]string, len(cat.Keywords))
		for j, kw := range cat.Keywords {
			kws[j] = strings.ToLower(kw)
		}
		lowered[i] = KeywordCategory{Name: cat.Name, Keywords: kws, Message: cat.Message}
	}
	return &keywordCheck{name: name, reason: reason, categories: lowered, message: message}
}

func (c *keywordCheck) Name() string { return c.name }

func (c *keywordCheck) Evaluate(_ context.Context, text string) Decision {
	lower := strings.ToLower(text)
	for _, cat := range c.categories {
		for _, kw := range cat.Keywords {
			if strings.Contains(lower, kw) {
				msg := cat.Message
				if msg == "" {
					msg = render(c.message, "{topic}", cat.Name)
				}
				d := Block(c.reason, msg)
				d.Category = cat.Name
				return d
			}
		}
	}
	return Allow()
}

// NewInjectionCheck flags instruction-override phrasings such as
// "ignore previous instructions".
func NewInjectionCheck(phrases []string, message string) Check {
	return NewKeywordCheck(CheckPromptInjection, ReasonPromptInjection,
		[]KeywordCategory{{Name: "prompt injection", Keywords: phrases, Message: message}}, message)
}

// =============================================================================
// Question format
// =============================================================================

type formatCheck struct {
	maxSpecialRatio float64
	maxRepeatRun    int
	specialMsg      string
	repeatMsg       string
}

// NewFormatCheck rejects gibberish (share of symbols above maxSpecialRatio)
// and spam (any rune repeated maxRepeatRun or more times in a row).
func NewFormatCheck(rules FormatRules, specialMsg, repeatMsg string) Check {
	return &formatCheck{
		maxSpecialRatio: rules.MaxSpecialRatio,
		maxRepeatRun:    rules.MaxRepeatRun,
		specialMsg:      specialMsg,
		repeatMsg:       repeatMsg,
	}
}

func (c *formatCheck) Name() string { return CheckQuestionFormat }

// Evaluate allows empty text; the length gate is responsible for it.
func (c *formatCheck) Evaluate(_ context.Context, text string) Decision {
	total := utf8.RuneCountInString(text)
	if total == 0 {
		return Allow()
	}

	special := 0
	for _, r := range text {
		if !unicode.IsLetter(r) && !unicode.IsNumber(r) && !unicode.IsSpace(r) {
			special++
		}
	}
	if float64(special)/float64(total) > c.maxSpecialRatio {
		return Block(ReasonSpecialCharacters, c.specialMsg)
	}

	if longestRun(text) >= c.maxRepeatRun {
		return Block(ReasonRepeatedCharacters, c.repeatMsg)
	}
	return Allow()
}

// longestRun returns the longest run of one repeated rune, ignoring newlines.
func longestRun(text string) int {
	longest, run := 0, 0
	var prev rune = -1
	for _, r := range text {
		switch {
		case r == '\n':
			run = 0
			prev = -1
			continue
		case r == prev:
			run++
		default:
			run = 1
			prev = r
		}
		if run > longest {
			longest = run
		}
	}
	return longest
}
