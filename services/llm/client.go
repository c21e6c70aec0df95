// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm adapts chat-completion backends (OpenAI, Ollama, Anthropic,
// llama.cpp) to a single LLMClient interface.
package llm

import (
	"context"

	"github.com/AleutianAI/AleutianAssist/services/orchestrator/datatypes"
)

// GenerationParams are per-call sampling settings. Nil fields fall back to
// the backend's defaults.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient generates the next assistant turn for a conversation.
// Implementations must be safe for concurrent use and must honour ctx
// cancellation.
type LLMClient interface {
	Chat(ctx context.Context, messages []datatypes.Message, params GenerationParams) (string, error)
}

// Embedder turns texts into vectors for similarity search.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Ptr returns a pointer to v, for filling GenerationParams.
func Ptr[T any](v T) *T { return &v }
