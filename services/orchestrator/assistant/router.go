// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package assistant

import (
	"context"

	"github.com/AleutianAI/AleutianAssist/services/llm"
	"github.com/AleutianAI/AleutianAssist/services/orchestrator/datatypes"
)

const (
	routerHistoryTurns = 4
	routerTemperature  = float32(0.1)
	routerMaxTokens    = 50
)

// Router classifies a question into one of datatypes.Categories by asking
// the generation backend for a label.
type Router struct {
	client llm.LLMClient
	opts   Options
}

// NewRouter builds a router over client.
func NewRouter(client llm.LLMClient, opts Options) *Router {
	return &Router{client: client, opts: opts.withDefaults()}
}

// Classify returns the category for question. Up to the four most recent
// history turns are sent for context. An unrecognised label or any backend
// failure yields direct_llm. It never retries.
func (r *Router) Classify(ctx context.Context, question string, history []datatypes.Message) datatypes.Route {
	ctx, span := tracer.Start(ctx, "Router.Classify")
	defer span.End()

	turns := datatypes.TrailingTurns(history, routerHistoryTurns)
	messages := make([]datatypes.Message, 0, len(turns)+2)
	messages = append(messages, datatypes.Message{Role: datatypes.RoleSystem, Content: RouterSystemPrompt})
	messages = append(messages, turns...)
	messages = append(messages, datatypes.Message{
		Role:    datatypes.RoleUser,
		Content: fill(RouterUserTemplate, "{question}", question),
	})

	label, err := r.opts.chat(ctx, r.client, "route", messages, llm.GenerationParams{
		Temperature: llm.Ptr(routerTemperature),
		MaxTokens:   llm.Ptr(routerMaxTokens),
	})
	if err != nil {
		r.opts.Logger.WarnContext(ctx, "Router classification failed, defaulting to direct_llm", "error", err)
		return datatypes.RouteDirectLLM
	}

	route, ok := datatypes.ParseCategory(label)
	if !ok {
		r.opts.Logger.InfoContext(ctx, "Router returned unknown category, defaulting to direct_llm", "label_length", len(label))
	}
	return route
}
