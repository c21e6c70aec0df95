// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the assistant.
//
// # Description
//
// PipelineMetrics counts questions by route and outcome, guardrail blocks
// and advisory flags by reason, backend failures, and stage latency.
// HTTPMetrics counts API requests. RegisterLimiterMetrics samples the rate
// limiter. All are exposed on /metrics.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
// Every method is a no-op on a nil receiver so tests can omit metrics.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "assistant"

const (
	pipelineSubsystem  = "pipeline"
	httpSubsystem      = "http"
	rateLimitSubsystem = "rate_limit"
)

// Outcome labels for QuestionsTotal.
const (
	OutcomeAnswered = "answered"
	OutcomeBlocked  = "blocked"
	OutcomeError    = "error"
)

// Backend labels for BackendErrorsTotal.
const (
	BackendLLM       = "llm"
	BackendRetrieval = "retrieval"
)

// PipelineMetrics holds the guarded query pipeline metrics.
//
// # Fields
//
//   - QuestionsTotal: questions by final route and outcome
//   - GuardrailBlocksTotal: blocking decisions by reason
//   - AdvisoryFlagsTotal: quality and tone flags by reason
//   - BackendErrorsTotal: failed backend calls by backend and purpose
//   - StageDurationSeconds: latency of each pipeline stage
//   - InFlight: questions currently being answered
type PipelineMetrics struct {
	QuestionsTotal       *prometheus.CounterVec
	GuardrailBlocksTotal *prometheus.CounterVec
	AdvisoryFlagsTotal   *prometheus.CounterVec
	BackendErrorsTotal   *prometheus.CounterVec
	StageDurationSeconds *prometheus.HistogramVec
	InFlight             prometheus.Gauge
}

// NewPipelineMetrics registers the pipeline metrics with reg. Registering
// twice with the same registry panics; pass prometheus.NewRegistry() in
// tests.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	factory := promauto.With(reg)
	return &PipelineMetrics{
		QuestionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "questions_total",
				Help:      "Total questions by route and outcome",
			},
			[]string{"route", "outcome"},
		),

		GuardrailBlocksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "guardrail_blocks_total",
				Help:      "Total blocking guardrail decisions by reason",
			},
			[]string{"reason"},
		),

		AdvisoryFlagsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "advisory_flags_total",
				Help:      "Total advisory response flags by reason",
			},
			[]string{"reason"},
		),

		BackendErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "backend_errors_total",
				Help:      "Total failed backend calls by backend and purpose",
			},
			[]string{"backend", "purpose"},
		),

		StageDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "stage_duration_seconds",
				Help:      "Pipeline stage latency in seconds",
				Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"stage"},
		),

		InFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "in_flight",
				Help:      "Questions currently being answered",
			},
		),
	}
}

// =============================================================================
// Helper Methods
// =============================================================================

// RecordQuestion counts a finished question.
func (m *PipelineMetrics) RecordQuestion(route, outcome string) {
	if m == nil {
		return
	}
	m.QuestionsTotal.WithLabelValues(route, outcome).Inc()
}

// RecordBlock counts a blocking guardrail decision.
func (m *PipelineMetrics) RecordBlock(reason string) {
	if m == nil {
		return
	}
	m.GuardrailBlocksTotal.WithLabelValues(reason).Inc()
}

// RecordAdvisory counts an advisory response flag.
func (m *PipelineMetrics) RecordAdvisory(reason string) {
	if m == nil {
		return
	}
	m.AdvisoryFlagsTotal.WithLabelValues(reason).Inc()
}

// RecordBackendError counts a failed backend call.
func (m *PipelineMetrics) RecordBackendError(backend, purpose string) {
	if m == nil {
		return
	}
	m.BackendErrorsTotal.WithLabelValues(backend, purpose).Inc()
}

// ObserveStage records how long a stage took.
func (m *PipelineMetrics) ObserveStage(stage string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.StageDurationSeconds.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// Started increments the in-flight gauge; call the returned func when done.
func (m *PipelineMetrics) Started() func() {
	if m == nil {
		return func() {}
	}
	m.InFlight.Inc()
	return m.InFlight.Dec
}

// =============================================================================
// HTTP
// =============================================================================

// LimiterStats is the read side of the per-identity rate limiter.
type LimiterStats interface {
	Len() int
	Evictions() int64
}

// RegisterLimiterMetrics exposes stats as gauges sampled at scrape time.
func RegisterLimiterMetrics(reg prometheus.Registerer, stats LimiterStats) {
	factory := promauto.With(reg)
	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: rateLimitSubsystem,
			Name:      "identities",
			Help:      "Identities currently tracked by the rate limiter",
		},
		func() float64 { return float64(stats.Len()) },
	)
	factory.NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: rateLimitSubsystem,
			Name:      "evictions_total",
			Help:      "Identities dropped by the rate limiter's LRU bound",
		},
		func() float64 { return float64(stats.Evictions()) },
	)
}

// HTTPMetrics counts API requests.
type HTTPMetrics struct {
	RequestsTotal   *prometheus.CounterVec
	DurationSeconds *prometheus.HistogramVec
}

// NewHTTPMetrics registers the HTTP metrics with reg.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	factory := promauto.With(reg)
	return &HTTPMetrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: httpSubsystem,
				Name:      "requests_total",
				Help:      "Total HTTP requests by route template, method and status",
			},
			[]string{"path", "method", "status"},
		),
		DurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: httpSubsystem,
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"path", "method"},
		),
	}
}

// Observe records one finished request.
func (m *HTTPMetrics) Observe(path, method, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(path, method, status).Inc()
	m.DurationSeconds.WithLabelValues(path, method).Observe(elapsed.Seconds())
}
