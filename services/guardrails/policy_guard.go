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
	"fmt"
	"sync/atomic"
	"unicode/utf8"
)

// PolicyGuard is the pre- and post-generation gatekeeper.
//
// # Description
//
// PolicyGuard turns a Policy into two ordered check chains. The pre chain
// (prompt injection, question format) screens the sanitized question before
// anything else happens. The input chain (length, rate limit, personal data,
// harmful content, blocked topics) then decides whether the question may be
// routed at all. After generation, ValidateResponse and SanitizeOutput guard
// what leaves the system.
//
// # Thread Safety
//
// Safe for concurrent use. Reload swaps the compiled rule set atomically;
// in-flight evaluations finish against the rules they started with. The
// RateLimiter is shared across reloads so rate state is never reset.
type PolicyGuard struct {
	limiter *RateLimiter
	state   atomic.Pointer[guardState]
}

type guardState struct {
	policy    *Policy
	pii       *PIIDetector
	pre       Chain
	input     Chain
	injection Check
	format    Check
	response  *ResponseGuard
}

// NewPolicyGuard compiles policy into check chains. A nil limiter gets a
// private limiter with default settings.
func NewPolicyGuard(policy *Policy, limiter *RateLimiter) (*PolicyGuard, error) {
	if policy == nil {
		return nil, fmt.Errorf("guard policy must not be nil")
	}
	if limiter == nil {
		limiter = NewRateLimiter(DefaultRateLimitConfig())
	}
	g := &PolicyGuard{limiter: limiter}
	if err := g.Reload(policy); err != nil {
		return nil, err
	}
	return g, nil
}

// Reload replaces the running policy.
func (g *PolicyGuard) Reload(policy *Policy) error {
	st, err := g.compile(policy)
	if err != nil {
		return err
	}
	g.state.Store(st)
	return nil
}

func (g *PolicyGuard) compile(p *Policy) (*guardState, error) {
	pii, err := NewPIIDetector(p.PersonalInfo)
	if err != nil {
		return nil, err
	}
	m := p.Messages
	st := &guardState{
		policy:    p,
		pii:       pii,
		injection: NewInjectionCheck(p.Injection, m.PromptInjection),
		format:    NewFormatCheck(p.Format, m.SpecialCharacters, m.RepeatedCharacters),
		response:  NewResponseGuard(p.Response),
	}

	build := func(name string) Check {
		switch name {
		case CheckLength:
			return NewLengthCheck(p.Limits.MinInputLength, p.Limits.MaxInputLength, m.TooShort, m.TooLong)
		case CheckRateLimit:
			return NewRateLimitCheck(g.limiter, m.RateLimited)
		case CheckPersonalInfo:
			return NewPIICheck(pii, ReasonPersonalInfo, m.PersonalInfo)
		case CheckHarmfulContent:
			return NewKeywordCheck(CheckHarmfulContent, ReasonHarmfulContent, p.HarmfulContent, m.HarmfulDefault)
		case CheckBlockedTopic:
			return NewKeywordCheck(CheckBlockedTopic, ReasonBlockedTopic, p.BlockedTopics, m.BlockedTopic)
		case CheckPromptInjection:
			return st.injection
		case CheckQuestionFormat:
			return st.format
		}
		return nil
	}
	for _, name := range p.PreChecks {
		c := build(name)
		if c == nil {
			return nil, fmt.Errorf("unknown check %q", name)
		}
		st.pre = append(st.pre, c)
	}
	for _, name := range p.InputChecks {
		c := build(name)
		if c == nil {
			return nil, fmt.Errorf("unknown check %q", name)
		}
		st.input = append(st.input, c)
	}
	return st, nil
}

// Policy returns the policy currently enforced.
func (g *PolicyGuard) Policy() *Policy {
	return g.state.Load().policy
}

// Limiter returns the rate limiter shared by every policy version.
func (g *PolicyGuard) Limiter() *RateLimiter {
	return g.limiter
}

// ResponseGuard returns the advisory checker for the current policy.
func (g *PolicyGuard) ResponseGuard() *ResponseGuard {
	return g.state.Load().response
}

// PreChain and InputChain expose the compiled chains for inspection.
func (g *PolicyGuard) PreChain() Chain   { return g.state.Load().pre }
func (g *PolicyGuard) InputChain() Chain { return g.state.Load().input }

// ScreenQuestion runs the pre chain (injection, format by default).
func (g *PolicyGuard) ScreenQuestion(ctx context.Context, text string) Decision {
	return g.state.Load().pre.Evaluate(ctx, text)
}

// ValidateInput runs the input chain. identity may be empty, in which case
// rate limiting is skipped.
func (g *PolicyGuard) ValidateInput(ctx context.Context, text, identity string) Decision {
	if identity != "" {
		ctx = WithIdentity(ctx, identity)
	}
	return g.state.Load().input.Evaluate(ctx, text)
}

// ValidateResponse rejects generated text that leaks personal data or is
// implausibly short.
func (g *PolicyGuard) ValidateResponse(text string) Decision {
	st := g.state.Load()
	if finding, found := st.pii.Detect(text); found {
		d := Block(ReasonResponsePersonalInfo, render(st.policy.Messages.ResponsePersonalInfo, "{type}", finding.Name))
		d.Category = finding.Name
		d.Check = CheckPersonalInfo
		return d
	}
	if utf8.RuneCountInString(text) < st.policy.Limits.MinResponseLength {
		d := Block(ReasonResponseTooShort, st.policy.Messages.ResponseTooShort)
		d.Check = CheckLength
		return d
	}
	return Allow()
}

// SanitizeOutput masks personal data in outbound text. It is idempotent and
// is applied whatever ValidateResponse decided.
func (g *PolicyGuard) SanitizeOutput(text string) string {
	return g.state.Load().pii.Redact(text)
}

// SafeResponse is the generic answer used when a response is rejected.
func (g *PolicyGuard) SafeResponse() string {
	return g.state.Load().policy.Messages.SafeResponse
}

// DetectPromptInjection reports whether text tries to override instructions.
func (g *PolicyGuard) DetectPromptInjection(text string) bool {
	return g.state.Load().injection.Evaluate(context.Background(), text).Blocked()
}

// ValidateQuestionFormat runs the gibberish and repeated-character heuristics.
func (g *PolicyGuard) ValidateQuestionFormat(text string) Decision {
	d := g.state.Load().format.Evaluate(context.Background(), text)
	if d.Blocked() && d.Check == "" {
		d.Check = CheckQuestionFormat
	}
	return d
}

// ScanPersonalInfo lists every personal-data match in text.
func (g *PolicyGuard) ScanPersonalInfo(text string) []PIIFinding {
	return g.state.Load().pii.Scan(text)
}
