// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianAssist/pkg/ux"
	"github.com/AleutianAI/AleutianAssist/services/guardrails"
	"github.com/AleutianAI/AleutianAssist/services/llm"
	"github.com/AleutianAI/AleutianAssist/services/orchestrator"
	"github.com/AleutianAI/AleutianAssist/services/orchestrator/assistant"
	"github.com/AleutianAI/AleutianAssist/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianAssist/services/retrieval"
)

var (
	askIdentity string
	askJSON     bool
)

// answerer is the part of the pipeline the ask command drives.
type answerer interface {
	Answer(ctx context.Context, q assistant.Query) datatypes.PipelineResult
}

func runAsk(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	pipeline, closeFn, err := buildLocalPipeline(ctx, config)
	if err != nil {
		OutputError(out, askJSON, "Failed to build the pipeline", err)
		exit(CLIExitError)
	}
	code := askQuestion(ctx, out, pipeline, args[0], askIdentity, askJSON)
	if err := closeFn(); err != nil {
		logger.Warn("Failed to release backends", "error", err)
	}
	exit(code)
}

// askQuestion prints one pipeline result.
//
// # Exit Codes
//
//   - 0: Answered
//   - 1: Blocked by a guard
//   - 2: A backend failed
func askQuestion(ctx context.Context, w io.Writer, p answerer, question, identity string, asJSON bool) int {
	result := p.Answer(ctx, assistant.Query{Text: question, Identity: identity})

	if asJSON {
		if err := OutputJSON(w, result, false); err != nil {
			return CLIExitError
		}
	} else if result.Blocked {
		fmt.Fprint(w, ux.RenderBlocked(result.Reason, result.Answer))
	} else {
		fmt.Fprint(w, ux.RenderAnswer(ux.Answer{
			Route:   string(result.Route),
			Text:    result.Answer,
			Sources: result.Sources,
			Err:     result.Error,
		}))
	}

	switch {
	case result.Blocked:
		return CLIExitFindings
	case result.Error != "":
		return CLIExitError
	default:
		return CLIExitSuccess
	}
}

// buildLocalPipeline wires the pipeline without the HTTP layer or the
// session store. The returned func releases the retriever.
func buildLocalPipeline(ctx context.Context, cfg orchestrator.Config) (*assistant.Pipeline, func() error, error) {
	policy, err := cfg.Policy.Load()
	if err != nil {
		return nil, nil, err
	}
	limiter := guardrails.NewRateLimiter(guardrails.RateLimitConfig{
		Limit:         cfg.Limits.RateLimit,
		Window:        cfg.Limits.RateWindow,
		MaxIdentities: cfg.Limits.MaxIdentities,
	})
	guard, err := guardrails.NewPolicyGuard(policy, limiter)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compile guard policy: %w", err)
	}

	client, err := llm.New(cfg.LLM)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	embedder, _ := client.(llm.Embedder)
	retriever, err := retrieval.New(ctx, cfg.Retrieval, embedder)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize retriever: %w", err)
	}
	closeFn := func() error {
		if c, ok := retriever.(interface{ Close() error }); ok {
			return c.Close()
		}
		return nil
	}

	pipeline := assistant.New(guard, client, retriever, assistant.Options{
		Logger:  logger,
		Timeout: cfg.Limits.BackendTimeout,
		TopK:    cfg.Limits.TopK,
	})
	return pipeline, closeFn, nil
}
