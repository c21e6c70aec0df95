// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianAssist/services/orchestrator/datatypes"
)

// RateLimitedClient caps the request rate to a wrapped client with a token
// bucket. Callers wait for a token; a cancelled ctx aborts the wait.
type RateLimitedClient struct {
	next    LLMClient
	limiter *rate.Limiter
}

// NewRateLimitedClient allows qps requests per second with the given
// burst. burst < 1 is treated as 1.
func NewRateLimitedClient(next LLMClient, qps float64, burst int) *RateLimitedClient {
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedClient{next: next, limiter: rate.NewLimiter(rate.Limit(qps), burst)}
}

func (c *RateLimitedClient) Chat(ctx context.Context, messages []datatypes.Message, params GenerationParams) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", backendErr("ratelimit", "wait", 0, err)
	}
	return c.next.Chat(ctx, messages, params)
}

// Embed forwards to the wrapped client when it can embed.
func (c *RateLimitedClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e, ok := c.next.(Embedder)
	if !ok {
		return nil, backendErr("ratelimit", "embed", 0, errNoEmbedder)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, backendErr("ratelimit", "wait", 0, err)
	}
	return e.Embed(ctx, texts)
}

// Unwrap returns the wrapped client.
func (c *RateLimitedClient) Unwrap() LLMClient { return c.next }

var _ LLMClient = (*RateLimitedClient)(nil)
