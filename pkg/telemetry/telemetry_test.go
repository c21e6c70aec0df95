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
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// =============================================================================
// Init Tests
// =============================================================================

func TestDefaultConfig(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "")
	t.Setenv("OTEL_METRICS_EXPORTER", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	cfg := DefaultConfig()

	if cfg.ServiceName != "assistant" {
		t.Errorf("ServiceName = %q, want assistant", cfg.ServiceName)
	}
	if cfg.TraceExporter != ExporterOTLP {
		t.Errorf("TraceExporter = %q, want otlp", cfg.TraceExporter)
	}
	if cfg.MetricExporter != ExporterPrometheus {
		t.Errorf("MetricExporter = %q, want prometheus", cfg.MetricExporter)
	}
	if cfg.OTLPEndpoint != "localhost:4317" {
		t.Errorf("OTLPEndpoint = %q", cfg.OTLPEndpoint)
	}
}

func TestDefaultConfig_Env(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "stdout")
	t.Setenv("ASSISTANT_ENV", "staging")
	cfg := DefaultConfig()
	if cfg.TraceExporter != "stdout" || cfg.Environment != "staging" {
		t.Errorf("env overrides not applied: %+v", cfg)
	}
}

func TestInit_NilContext(t *testing.T) {
	//nolint:staticcheck // nil context is the case under test
	_, err := Init(nil, Config{TraceExporter: ExporterNone, MetricExporter: ExporterNone})
	if !errors.Is(err, ErrNilContext) {
		t.Errorf("Init(nil) error = %v, want ErrNilContext", err)
	}
}

func TestInit_None(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{TraceExporter: ExporterNone, MetricExporter: ExporterNone})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error = %v", err)
	}
}

func TestInit_Stdout(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{ServiceName: "test", TraceExporter: ExporterStdout, MetricExporter: ExporterStdout, Writer: &buf}

	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	_, span := StartSpan(context.Background(), "test", "op")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error = %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("\"Name\": \"op\"")) {
		t.Errorf("stdout exporter did not write the span: %s", buf.String())
	}
}

func TestInit_UnknownExporter(t *testing.T) {
	_, err := Init(context.Background(), Config{TraceExporter: "zipkin", MetricExporter: ExporterNone})
	if !errors.Is(err, ErrUnknownExporter) {
		t.Errorf("trace error = %v, want ErrUnknownExporter", err)
	}
	_, err = Init(context.Background(), Config{TraceExporter: ExporterNone, MetricExporter: "statsd"})
	if !errors.Is(err, ErrUnknownExporter) {
		t.Errorf("metric error = %v, want ErrUnknownExporter", err)
	}
}

// =============================================================================
// Tracing Tests
// =============================================================================

func TestRecordError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	_, span := tp.Tracer("test").Start(context.Background(), "failing")

	RecordError(span, errors.New("boom"))
	RecordError(span, nil)
	RecordError(nil, errors.New("ignored"))
	span.End()

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status().Code != codes.Error || spans[0].Status().Description != "boom" {
		t.Errorf("status = %+v", spans[0].Status())
	}
	if len(spans[0].Events()) != 1 {
		t.Errorf("expected one error event, got %d", len(spans[0].Events()))
	}
}

func TestSetSpanOK(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	_, span := tp.Tracer("test").Start(context.Background(), "ok")
	SetSpanOK(span)
	SetSpanOK(nil)
	span.End()

	if recorder.Ended()[0].Status().Code != codes.Ok {
		t.Errorf("status = %+v", recorder.Ended()[0].Status())
	}
}

func TestTraceAndSpanID(t *testing.T) {
	if TraceID(context.Background()) != "" || SpanID(context.Background()) != "" {
		t.Error("IDs should be empty without a span")
	}
	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	if TraceID(ctx) != span.SpanContext().TraceID().String() {
		t.Errorf("TraceID = %q", TraceID(ctx))
	}
	if len(SpanID(ctx)) != 16 {
		t.Errorf("SpanID = %q, want 16 hex chars", SpanID(ctx))
	}
}

func TestLoggerWithTrace(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	if LoggerWithTrace(context.Background(), base) != base {
		t.Error("logger without span should be returned unchanged")
	}

	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	LoggerWithTrace(ctx, base).Info("hello")
	if !strings.Contains(buf.String(), "trace_id="+span.SpanContext().TraceID().String()) {
		t.Errorf("missing trace_id: %s", buf.String())
	}
}

// =============================================================================
// Metrics Tests
// =============================================================================

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestMetrics_Record(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp.Meter(MeterName))
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	ctx := context.Background()

	m.RecordQuestion(ctx, "admin_policy", false)
	m.RecordQuestion(ctx, "guardrail_blocked", true)
	m.ObserveStage(ctx, "router", 20*time.Millisecond)
	m.RecordLLMCall(ctx, "router", nil)
	m.RecordLLMCall(ctx, "rag", errors.New("timeout"))
	m.RecordPassages(ctx, "admin_policy", 3)

	got := collect(t, reader)
	questions, ok := got["assistant_questions_total"].Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("questions_total missing: %v", got)
	}
	var total int64
	for _, dp := range questions.DataPoints {
		total += dp.Value
	}
	if total != 2 {
		t.Errorf("questions_total = %d, want 2", total)
	}
	calls := got["assistant_llm_calls_total"].Data.(metricdata.Sum[int64])
	if len(calls.DataPoints) != 2 {
		t.Errorf("llm_calls_total should have one series per outcome, got %d", len(calls.DataPoints))
	}
	if _, ok := got["assistant_stage_duration_seconds"]; !ok {
		t.Error("stage_duration missing")
	}
	if _, ok := got["assistant_passages_retrieved"]; !ok {
		t.Error("passages_retrieved missing")
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordQuestion(ctx, "direct_llm", false)
	m.ObserveStage(ctx, "router", time.Second)
	m.RecordLLMCall(ctx, "router", nil)
	m.RecordPassages(ctx, "role_specific", 1)
}
