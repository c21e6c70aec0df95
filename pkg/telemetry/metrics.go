// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope for pipeline instruments.
const MeterName = "assistant.pipeline"

// Metrics holds the pipeline's OTel instruments. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	QuestionsTotal    metric.Int64Counter
	StageDuration     metric.Float64Histogram
	LLMCallsTotal     metric.Int64Counter
	PassagesRetrieved metric.Int64Histogram
}

// NewMetrics creates the instruments on meter. A nil meter uses the global
// provider.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(MeterName)
	}
	m := &Metrics{}
	var err error

	m.QuestionsTotal, err = meter.Int64Counter(
		"assistant_questions_total",
		metric.WithDescription("Questions answered, by final route"),
		metric.WithUnit("{question}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create questions_total: %w", err)
	}

	m.StageDuration, err = meter.Float64Histogram(
		"assistant_stage_duration_seconds",
		metric.WithDescription("Pipeline stage duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, fmt.Errorf("create stage_duration: %w", err)
	}

	m.LLMCallsTotal, err = meter.Int64Counter(
		"assistant_llm_calls_total",
		metric.WithDescription("Chat completions by purpose and outcome"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create llm_calls_total: %w", err)
	}

	m.PassagesRetrieved, err = meter.Int64Histogram(
		"assistant_passages_retrieved",
		metric.WithDescription("Passages returned per retrieval"),
		metric.WithUnit("{passage}"),
		metric.WithExplicitBucketBoundaries(0, 1, 2, 3, 5, 10),
	)
	if err != nil {
		return nil, fmt.Errorf("create passages_retrieved: %w", err)
	}
	return m, nil
}

// RecordQuestion counts one finished question.
func (m *Metrics) RecordQuestion(ctx context.Context, route string, blocked bool) {
	if m == nil {
		return
	}
	m.QuestionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("route", route),
		attribute.Bool("blocked", blocked),
	))
}

// ObserveStage records how long a pipeline stage took.
func (m *Metrics) ObserveStage(ctx context.Context, stage string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordLLMCall counts a chat completion. purpose is router, rag or direct.
func (m *Metrics) RecordLLMCall(ctx context.Context, purpose string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.LLMCallsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("purpose", purpose),
		attribute.String("outcome", outcome),
	))
}

// RecordPassages records how many passages a retrieval returned.
func (m *Metrics) RecordPassages(ctx context.Context, category string, n int) {
	if m == nil {
		return
	}
	m.PassagesRetrieved.Record(ctx, int64(n), metric.WithAttributes(attribute.String("category", category)))
}
