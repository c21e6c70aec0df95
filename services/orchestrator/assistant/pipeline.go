// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package assistant answers employee questions. A question is screened by
// the guardrails, classified by the router, answered by the synthesizer
// and reviewed again before it is returned.
package assistant

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianAssist/pkg/extensions"
	"github.com/AleutianAI/AleutianAssist/pkg/telemetry"
	"github.com/AleutianAI/AleutianAssist/services/guardrails"
	"github.com/AleutianAI/AleutianAssist/services/llm"
	"github.com/AleutianAI/AleutianAssist/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianAssist/services/orchestrator/observability"
	"github.com/AleutianAI/AleutianAssist/services/retrieval"
)

const snippetLimit = 100

// Error values placed in PipelineResult.Error when a backend failed.
const (
	ErrorGeneration = "generation backend failed"
	ErrorRetrieval  = "retrieval backend failed"
)

// Query is one question together with who asked it and the prior turns.
type Query struct {
	Text     string
	Identity string
	History  []datatypes.Message
}

// Pipeline runs the full question flow.
type Pipeline struct {
	guard  *guardrails.PolicyGuard
	router *Router
	synth  *Synthesizer
	opts   Options
}

// NewPipeline wires an existing router and synthesizer behind guard.
func NewPipeline(guard *guardrails.PolicyGuard, router *Router, synth *Synthesizer, opts Options) *Pipeline {
	return &Pipeline{guard: guard, router: router, synth: synth, opts: opts.withDefaults()}
}

// New builds a pipeline whose router and synthesizer share client.
func New(guard *guardrails.PolicyGuard, client llm.LLMClient, retriever retrieval.Retriever, opts Options) *Pipeline {
	return NewPipeline(guard, NewRouter(client, opts), NewSynthesizer(client, retriever, opts), opts)
}

// Guard returns the policy guard in use.
func (p *Pipeline) Guard() *guardrails.PolicyGuard { return p.guard }

// RemainingQuota returns how many more questions identity may ask in the
// current rate window.
func (p *Pipeline) RemainingQuota(identity string) int {
	return p.guard.Limiter().Remaining(identity)
}

// Router returns the question router.
func (p *Pipeline) Router() *Router { return p.router }

// Answer runs a question through every stage. It never panics and always
// returns a result; backend failures are reported through Error.
func (p *Pipeline) Answer(ctx context.Context, q Query) datatypes.PipelineResult {
	ctx, span := tracer.Start(ctx, "Pipeline.Answer")
	defer span.End()
	defer p.opts.Metrics.Started()()
	start := time.Now()
	logger := telemetry.LoggerWithTrace(ctx, p.opts.Logger)

	text := guardrails.Sanitize(q.Text)

	stageStart := time.Now()
	if d := p.guard.ScreenQuestion(ctx, text); d.Blocked() {
		return p.blocked(ctx, q, text, "screen", d)
	}
	if d := p.guard.ValidateInput(ctx, text, q.Identity); d.Blocked() {
		return p.blocked(ctx, q, text, "input", d)
	}
	p.opts.Metrics.ObserveStage("guard", time.Since(stageStart))

	route := p.router.Classify(ctx, text, q.History)
	span.SetAttributes(attribute.String("route", route.String()))

	outcome := p.synth.Synthesize(ctx, text, route, q.History)
	answer := outcome.Answer

	if outcome.Err == nil {
		for _, d := range p.guard.ResponseGuard().Review(answer, text) {
			logger.Info("Response flagged",
				"reason", d.Reason,
				"check", d.Check,
				"route", route,
			)
			p.opts.Metrics.RecordAdvisory(string(d.Reason))
			p.audit(ctx, q.Identity, extensions.EventGuardrailAdvisory, "review_response", "flagged", d, route, p.redactedSnippet(answer))
		}
	}

	if d := p.guard.ValidateResponse(answer); d.Blocked() {
		logger.Warn("Response rejected, substituting safe response",
			"reason", d.Reason,
			"category", d.Category,
			"route", route,
		)
		p.opts.Metrics.RecordBlock(string(d.Reason))
		p.audit(ctx, q.Identity, extensions.EventGuardrailBlocked, "validate_response", "replaced", d, route, p.redactedSnippet(answer))
		answer = p.guard.SafeResponse()
	}
	answer = p.guard.SanitizeOutput(answer)

	result := datatypes.PipelineResult{
		Question:    q.Text,
		Answer:      answer,
		Route:       route,
		Sources:     datatypes.SourceSet(outcome.Sources),
		ContextUsed: outcome.ContextUsed,
	}

	outcomeLabel := observability.OutcomeAnswered
	if outcome.Err != nil {
		outcomeLabel = observability.OutcomeError
		result.Error = ErrorGeneration
		if retrieval.IsBackendError(outcome.Err) {
			result.Error = ErrorRetrieval
		}
		telemetry.RecordError(span, outcome.Err, attribute.String("route", route.String()))
	} else {
		telemetry.SetSpanOK(span)
	}
	p.opts.Metrics.RecordQuestion(route.String(), outcomeLabel)
	p.opts.Telemetry.RecordQuestion(ctx, route.String(), false)
	p.opts.Telemetry.ObserveStage(ctx, "total", time.Since(start))

	logger.Info("Question answered",
		"route", route,
		"sources", len(result.Sources),
		"context_used", result.ContextUsed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result
}

func (p *Pipeline) blocked(ctx context.Context, q Query, text, stage string, d guardrails.Decision) datatypes.PipelineResult {
	snippet := p.redactedSnippet(text)
	telemetry.LoggerWithTrace(ctx, p.opts.Logger).Warn("Question blocked by guardrails",
		"stage", stage,
		"reason", d.Reason,
		"check", d.Check,
		"category", d.Category,
		"identity", q.Identity,
		"snippet", snippet,
	)
	p.opts.Metrics.RecordBlock(string(d.Reason))
	p.opts.Metrics.RecordQuestion(datatypes.RouteGuardrailBlocked.String(), observability.OutcomeBlocked)
	p.opts.Telemetry.RecordQuestion(ctx, datatypes.RouteGuardrailBlocked.String(), true)
	p.audit(ctx, q.Identity, extensions.EventGuardrailBlocked, "ask", "blocked", d, datatypes.RouteGuardrailBlocked, snippet)

	return datatypes.PipelineResult{
		Question: q.Text,
		Answer:   d.Message,
		Route:    datatypes.RouteGuardrailBlocked,
		Sources:  []string{},
		Blocked:  true,
		Reason:   string(d.Reason),
	}
}

func (p *Pipeline) audit(ctx context.Context, identity, eventType, action, outcome string, d guardrails.Decision, route datatypes.Route, snippet string) {
	event := extensions.AuditEvent{
		EventType:    eventType,
		Timestamp:    time.Now().UTC(),
		UserID:       identity,
		Action:       action,
		ResourceType: "question",
		Outcome:      outcome,
		Metadata: map[string]any{
			"reason":  string(d.Reason),
			"check":   d.Check,
			"route":   route.String(),
			"snippet": snippet,
		},
	}
	if d.Category != "" {
		event.Metadata["category"] = d.Category
	}
	if err := p.opts.Audit.Log(ctx, event); err != nil {
		p.opts.Logger.Warn("Failed to write audit event", "event_type", eventType, "error", err)
	}
}

// redactedSnippet returns at most snippetLimit runes of text with personal
// data replaced by its pattern id.
func (p *Pipeline) redactedSnippet(text string) string {
	out := text
	for _, f := range p.guard.ScanPersonalInfo(text) {
		out = strings.ReplaceAll(out, f.Match, "["+f.PatternID+"]")
	}
	out = p.guard.SanitizeOutput(out)
	runes := []rune(out)
	if len(runes) > snippetLimit {
		return string(runes[:snippetLimit]) + "..."
	}
	return out
}
