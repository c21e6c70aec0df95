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
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianAssist/services/llm"
	"github.com/AleutianAI/AleutianAssist/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianAssist/services/retrieval"
)

const (
	synthHistoryTurns = 10

	ragTemperature    = float32(0.3)
	ragMaxTokens      = 500
	directTemperature = float32(0.7)
	directMaxTokens   = 300
)

// Fixed answers for the failure paths.
const (
	NoContextAnswer   = "I couldn't find relevant information in the knowledge base for this question."
	RAGErrorAnswer    = "I encountered an error generating the answer. Please try again."
	DirectErrorAnswer = "I encountered an error. Please try again."
)

// Outcome is the result of synthesizing one answer. Err is set when a
// backend failed; Answer then holds the user-facing fallback.
type Outcome struct {
	Answer      string
	Sources     []string
	ContextUsed bool
	Err         error
}

// Synthesizer produces the answer for a routed question, grounded in
// retrieved passages unless the route is direct_llm.
type Synthesizer struct {
	client    llm.LLMClient
	retriever retrieval.Retriever
	opts      Options
}

// NewSynthesizer builds a synthesizer.
func NewSynthesizer(client llm.LLMClient, retriever retrieval.Retriever, opts Options) *Synthesizer {
	return &Synthesizer{client: client, retriever: retriever, opts: opts.withDefaults()}
}

// Synthesize answers question under category using at most ten history
// turns. It does not retry.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, category datatypes.Route, history []datatypes.Message) Outcome {
	ctx, span := tracer.Start(ctx, "Synthesizer.Synthesize")
	defer span.End()
	span.SetAttributes(attribute.String("category", category.String()))

	if category.UsesRetrieval() {
		return s.ragAnswer(ctx, question, category, history)
	}
	return s.directAnswer(ctx, question, history)
}

func (s *Synthesizer) ragAnswer(ctx context.Context, question string, category datatypes.Route, history []datatypes.Message) Outcome {
	passages, err := s.opts.search(ctx, s.retriever, question, category)
	if err != nil {
		s.opts.Logger.ErrorContext(ctx, "Retrieval failed", "category", category, "error", err)
		return Outcome{Answer: RAGErrorAnswer, Sources: []string{}, Err: err}
	}
	if len(passages) == 0 {
		return Outcome{Answer: NoContextAnswer, Sources: []string{}}
	}

	parts := make([]string, len(passages))
	sources := make([]string, 0, len(passages))
	for i, p := range passages {
		parts[i] = "[" + p.Source + "]\n" + p.Text + "\n"
		sources = append(sources, p.Source)
	}
	contextText := strings.Join(parts, "\n---\n")

	turns := datatypes.TrailingTurns(history, synthHistoryTurns)
	messages := make([]datatypes.Message, 0, len(turns)+2)
	messages = append(messages, datatypes.Message{Role: datatypes.RoleSystem, Content: RAGSystemPrompt})
	messages = append(messages, turns...)
	messages = append(messages, datatypes.Message{
		Role:    datatypes.RoleUser,
		Content: fill(RAGUserTemplate, "{context}", contextText, "{question}", question),
	})

	answer, err := s.opts.chat(ctx, s.client, "rag", messages, llm.GenerationParams{
		Temperature: llm.Ptr(ragTemperature),
		MaxTokens:   llm.Ptr(ragMaxTokens),
	})
	if err != nil {
		s.opts.Logger.ErrorContext(ctx, "RAG generation failed", "category", category, "error", err)
		return Outcome{Answer: RAGErrorAnswer, Sources: []string{}, Err: err}
	}
	return Outcome{
		Answer:      strings.TrimSpace(answer),
		Sources:     datatypes.SourceSet(sources),
		ContextUsed: true,
	}
}

func (s *Synthesizer) directAnswer(ctx context.Context, question string, history []datatypes.Message) Outcome {
	turns := datatypes.TrailingTurns(history, synthHistoryTurns)
	messages := make([]datatypes.Message, 0, len(turns)+1)
	messages = append(messages, turns...)
	messages = append(messages, datatypes.Message{
		Role:    datatypes.RoleUser,
		Content: fill(DirectPrompt, "{question}", question),
	})

	answer, err := s.opts.chat(ctx, s.client, "direct", messages, llm.GenerationParams{
		Temperature: llm.Ptr(directTemperature),
		MaxTokens:   llm.Ptr(directMaxTokens),
	})
	if err != nil {
		s.opts.Logger.ErrorContext(ctx, "Direct generation failed", "error", err)
		return Outcome{Answer: DirectErrorAnswer, Sources: []string{}, Err: err}
	}
	return Outcome{Answer: strings.TrimSpace(answer), Sources: []string{}}
}
