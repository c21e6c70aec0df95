// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package guardrails implements the safety gates that sit in front of and
// behind the assistant's language model: input sanitation, prompt-injection
// and format screening, per-identity rate limiting, personal-data,
// harmful-content and blocked-topic detection, response validation and
// output redaction.
//
// Every gate is a Check. Checks are composed into an ordered Chain whose
// first failing check decides the outcome, so gates can be added, removed or
// reordered through the guard policy without touching control flow.
package guardrails

import (
	"context"
)

// Reason identifies which gate produced a blocking Decision.
type Reason string

const (
	ReasonNone                 Reason = ""
	ReasonTooShort             Reason = "too_short"
	ReasonTooLong              Reason = "too_long"
	ReasonRateLimited          Reason = "rate_limited"
	ReasonPersonalInfo         Reason = "personal_info"
	ReasonHarmfulContent       Reason = "harmful_content"
	ReasonBlockedTopic         Reason = "blocked_topic"
	ReasonPromptInjection      Reason = "prompt_injection"
	ReasonSpecialCharacters    Reason = "special_characters"
	ReasonRepeatedCharacters   Reason = "repeated_characters"
	ReasonResponsePersonalInfo Reason = "response_personal_info"
	ReasonResponseTooShort     Reason = "response_too_short"
	ReasonQualityTooShort      Reason = "quality_too_short"
	ReasonQualityRestates      Reason = "quality_repeats_question"
	ReasonQualityUnhelpful     Reason = "quality_unhelpful"
	ReasonUnprofessionalTone   Reason = "unprofessional_tone"
)

// Decision is the verdict of a single gate or a whole chain.
//
// Category carries the detected sub-type when the gate distinguishes one,
// e.g. "Social Security Number" for personal data or "self-harm" for
// harmful content. Check names the gate that produced the verdict.
type Decision struct {
	Allowed  bool   `json:"allowed"`
	Reason   Reason `json:"reason,omitempty"`
	Category string `json:"category,omitempty"`
	Message  string `json:"message,omitempty"`
	Check    string `json:"check,omitempty"`
}

// Allow returns a passing Decision.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Block returns a failing Decision with a user-facing message.
func Block(reason Reason, message string) Decision {
	return Decision{Allowed: false, Reason: reason, Message: message}
}

// Blocked reports whether the decision rejects the text.
func (d Decision) Blocked() bool {
	return !d.Allowed
}

// Check is a single, independently testable guard gate.
type Check interface {
	// Name returns the identifier used for the check in the guard policy.
	Name() string

	// Evaluate inspects text and returns the gate's verdict. Checks must be
	// safe for concurrent use.
	Evaluate(ctx context.Context, text string) Decision
}

// CheckFunc adapts a plain function into a Check.
type CheckFunc struct {
	CheckName string
	Fn        func(ctx context.Context, text string) Decision
}

func (f CheckFunc) Name() string { return f.CheckName }

func (f CheckFunc) Evaluate(ctx context.Context, text string) Decision {
	return f.Fn(ctx, text)
}

// Chain evaluates checks in order and stops at the first failure.
type Chain []Check

// Evaluate runs the chain. An empty chain allows everything.
func (c Chain) Evaluate(ctx context.Context, text string) Decision {
	for _, check := range c {
		d := check.Evaluate(ctx, text)
		if !d.Allowed {
			if d.Check == "" {
				d.Check = check.Name()
			}
			return d
		}
	}
	return Allow()
}

// Names lists the check names in evaluation order.
func (c Chain) Names() []string {
	names := make([]string, len(c))
	for i, check := range c {
		names[i] = check.Name()
	}
	return names
}

type identityKey struct{}

// WithIdentity attaches the caller identity used by the rate-limit check.
func WithIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the identity set by WithIdentity, or "".
func IdentityFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(identityKey{}).(string); ok {
		return id
	}
	return ""
}
