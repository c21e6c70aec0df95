// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator assembles the assistant service: guard policy, LLM
// backend, retriever, session store, pipeline and HTTP routes.
//
// # Usage
//
//	cfg := orchestrator.DefaultConfig()
//	svc, err := orchestrator.New(ctx, cfg, nil, logger)
//	if err != nil {
//	    return err
//	}
//	defer svc.Close()
//	return svc.Run(ctx)
//
// Extension points (token validation, audit sink) are injected through
// extensions.ServiceOptions. Nil options use the store-backed token
// provider and a structured-log audit sink.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianAssist/pkg/extensions"
	"github.com/AleutianAI/AleutianAssist/pkg/telemetry"
	"github.com/AleutianAI/AleutianAssist/services/guardrails"
	"github.com/AleutianAI/AleutianAssist/services/llm"
	"github.com/AleutianAI/AleutianAssist/services/orchestrator/assistant"
	"github.com/AleutianAI/AleutianAssist/services/orchestrator/middleware"
	"github.com/AleutianAI/AleutianAssist/services/orchestrator/observability"
	"github.com/AleutianAI/AleutianAssist/services/orchestrator/routes"
	"github.com/AleutianAI/AleutianAssist/services/retrieval"
	"github.com/AleutianAI/AleutianAssist/services/store"
)

// auditBufferSize is how many recent audit events the default sink keeps
// for Query.
const auditBufferSize = 1000

// Service is a running assistant server.
type Service interface {
	// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
	Run(ctx context.Context) error

	// Router returns the configured Gin engine.
	Router() *gin.Engine

	// Pipeline returns the question pipeline the routes use.
	Pipeline() *assistant.Pipeline

	// Close releases the store, retriever and telemetry providers.
	Close() error
}

type service struct {
	config    Config
	opts      extensions.ServiceOptions
	logger    *slog.Logger
	router    *gin.Engine
	guard     *guardrails.PolicyGuard
	pipeline  *assistant.Pipeline
	retriever retrieval.Retriever
	store     store.Store
	shutdown  func(context.Context) error
}

// New builds every component named by cfg. On error, anything already
// opened is released.
func New(ctx context.Context, cfg Config, opts *extensions.ServiceOptions, logger *slog.Logger) (Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &service{config: applyConfigDefaults(cfg), logger: logger}
	if opts != nil {
		s.opts = *opts
	}
	if err := s.init(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *service) init(ctx context.Context) error {
	cfg := s.config

	shutdown, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	s.shutdown = shutdown
	otelMetrics, err := telemetry.NewMetrics(otel.Meter("assistant"))
	if err != nil {
		return fmt.Errorf("failed to create telemetry instruments: %w", err)
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewBuildInfoCollector())
	}
	pipelineMetrics := observability.NewPipelineMetrics(registry)
	httpMetrics := observability.NewHTTPMetrics(registry)

	policy, err := cfg.Policy.Load()
	if err != nil {
		return err
	}
	limiter := guardrails.NewRateLimiter(guardrails.RateLimitConfig{
		Limit:         cfg.Limits.RateLimit,
		Window:        cfg.Limits.RateWindow,
		MaxIdentities: cfg.Limits.MaxIdentities,
	})
	observability.RegisterLimiterMetrics(registry, limiter)
	s.guard, err = guardrails.NewPolicyGuard(policy, limiter)
	if err != nil {
		return fmt.Errorf("failed to compile guard policy: %w", err)
	}
	s.logger.Info("Guard policy loaded", "fingerprint", policy.Fingerprint(), "path", cfg.Policy.Path)

	client, err := llm.New(cfg.LLM)
	if err != nil {
		return fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	embedder, _ := client.(llm.Embedder)

	s.retriever, err = retrieval.New(ctx, cfg.Retrieval, embedder)
	if err != nil {
		return fmt.Errorf("failed to initialize retriever: %w", err)
	}

	s.store, err = store.Open(ctx, cfg.Store, store.Options{TokenTTL: cfg.Auth.TokenTTL}, s.logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	if s.opts.AuthProvider == nil && !cfg.Auth.Disabled {
		s.opts.AuthProvider = middleware.StoreAuthProvider(s.store)
	}
	if s.opts.AuditLogger == nil {
		s.opts.AuditLogger = extensions.NewSlogAuditLogger(s.logger, auditBufferSize)
	}
	s.opts = s.opts.Normalize()

	s.pipeline = assistant.New(s.guard, client, s.retriever, assistant.Options{
		Logger:    s.logger,
		Audit:     s.opts.AuditLogger,
		Metrics:   pipelineMetrics,
		Telemetry: otelMetrics,
		Timeout:   cfg.Limits.BackendTimeout,
		TopK:      cfg.Limits.TopK,
	})

	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}
	s.router = gin.New()
	s.router.Use(
		gin.Recovery(),
		otelgin.Middleware(cfg.Telemetry.ServiceName),
		middleware.RequestLogger(s.logger),
		middleware.Metrics(httpMetrics),
	)
	routes.SetupRoutes(s.router, routes.Dependencies{
		Pipeline: s.pipeline,
		Store:    s.store,
		Options:  s.opts,
		Gatherer: prometheus.Gatherers{registry, prometheus.DefaultGatherer},
	})
	return nil
}

// Run serves until ctx is cancelled, the listener fails, or the policy
// watcher stops with an error.
func (s *service) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.Port),
		Handler: s.router,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("Starting assistant server", "port", s.config.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		s.logger.Info("Shutting down assistant server")
		return server.Shutdown(shutdownCtx)
	})
	if s.config.Policy.HotReload && s.config.Policy.Path != "" {
		watcher, err := guardrails.NewPolicyWatcher(s.config.Policy.Path, s.guard, s.logger)
		if err != nil {
			return err
		}
		g.Go(func() error { return watcher.Run(gctx) })
	}
	return g.Wait()
}

func (s *service) Router() *gin.Engine { return s.router }

func (s *service) Pipeline() *assistant.Pipeline { return s.pipeline }

// Close releases resources in reverse order of creation. Safe to call on a
// partially built service.
func (s *service) Close() error {
	var errs []error
	if s.opts.AuditLogger != nil {
		errs = append(errs, s.opts.AuditLogger.Flush(context.Background()))
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	if c, ok := s.retriever.(interface{ Close() error }); ok {
		errs = append(errs, c.Close())
	}
	if s.shutdown != nil {
		errs = append(errs, s.shutdown(context.Background()))
	}
	return errors.Join(errs...)
}
