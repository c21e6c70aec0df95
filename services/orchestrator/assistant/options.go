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
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/AleutianAssist/pkg/extensions"
	"github.com/AleutianAI/AleutianAssist/pkg/telemetry"
	"github.com/AleutianAI/AleutianAssist/services/llm"
	"github.com/AleutianAI/AleutianAssist/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianAssist/services/orchestrator/observability"
	"github.com/AleutianAI/AleutianAssist/services/retrieval"
)

var tracer = otel.Tracer("assistant.pipeline")

const (
	// DefaultBackendTimeout bounds every generation and retrieval call.
	DefaultBackendTimeout = 30 * time.Second

	// DefaultTopK is the number of passages retrieved per question.
	DefaultTopK = 3
)

// Options carries the shared dependencies of the router, synthesizer and
// pipeline. Zero fields get working defaults.
type Options struct {
	Logger    *slog.Logger
	Audit     extensions.AuditLogger
	Metrics   *observability.PipelineMetrics
	Telemetry *telemetry.Metrics

	// Timeout bounds each backend call. Default DefaultBackendTimeout.
	Timeout time.Duration
	// TopK passages per retrieval. Default DefaultTopK.
	TopK int
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Audit == nil {
		o.Audit = &extensions.NopAuditLogger{}
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultBackendTimeout
	}
	if o.TopK <= 0 {
		o.TopK = DefaultTopK
	}
	return o
}

// chat calls the generation backend under the configured timeout. A panic
// inside the adapter is returned as a *llm.BackendError.
func (o Options) chat(ctx context.Context, client llm.LLMClient, purpose string, messages []datatypes.Message, params llm.GenerationParams) (out string, err error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, o.Timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = &llm.BackendError{Backend: "llm", Op: purpose, Err: fmt.Errorf("panic in generation adapter: %v", r)}
		}
		if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !llm.IsBackendError(err) {
			err = &llm.BackendError{Backend: "llm", Op: purpose, Err: err}
		}
		o.Telemetry.RecordLLMCall(ctx, purpose, err)
		o.Metrics.ObserveStage(purpose, time.Since(start))
		if err != nil {
			o.Metrics.RecordBackendError(observability.BackendLLM, purpose)
		}
	}()
	return client.Chat(ctx, messages, params)
}

// search calls the retrieval backend under the configured timeout. A panic
// inside the adapter is returned as a *retrieval.BackendError. Passages
// without a source come back labelled retrieval.UnknownSource.
func (o Options) search(ctx context.Context, r retrieval.Retriever, query string, category datatypes.Route) (out []retrieval.Passage, err error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, o.Timeout)
	defer cancel()
	defer func() {
		if rec := recover(); rec != nil {
			out = nil
			err = &retrieval.BackendError{Backend: "retriever", Op: "search", Err: fmt.Errorf("panic in retrieval adapter: %v", rec)}
		}
		o.Metrics.ObserveStage("retrieve", time.Since(start))
		if err != nil {
			if !retrieval.IsBackendError(err) {
				err = &retrieval.BackendError{Backend: "retriever", Op: "search", Err: err}
			}
			o.Metrics.RecordBackendError(observability.BackendRetrieval, "search")
			return
		}
		o.Telemetry.RecordPassages(ctx, category.String(), len(out))
	}()
	out, err = r.Search(ctx, query, category, o.TopK)
	return retrieval.LabelUnknownSources(out), err
}
