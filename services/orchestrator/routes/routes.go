// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package routes registers the HTTP routes of the assistant service.
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/AleutianAssist/pkg/extensions"
	"github.com/AleutianAI/AleutianAssist/services/orchestrator/handlers"
	"github.com/AleutianAI/AleutianAssist/services/orchestrator/middleware"
	"github.com/AleutianAI/AleutianAssist/services/store"
)

// Dependencies are the components the routes are bound to.
type Dependencies struct {
	Pipeline handlers.Answerer
	Store    store.Store
	Options  extensions.ServiceOptions

	// Gatherer backs /metrics. Nil serves the default registry.
	Gatherer prometheus.Gatherer
}

// SetupRoutes registers every route on router. /health, /metrics and the
// auth endpoints are public; everything else under /v1 requires a bearer
// token accepted by deps.Options.AuthProvider.
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	opts := deps.Options.Normalize()
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	v1 := router.Group("/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/register", handlers.HandleRegister(deps.Store, opts.AuditLogger))
			auth.POST("/login", handlers.HandleLogin(deps.Store, opts.AuditLogger))
		}

		protected := v1.Group("")
		protected.Use(middleware.AuthMiddleware(opts.AuthProvider))
		{
			protected.POST("/ask", handlers.HandleAsk(deps.Pipeline, deps.Store))

			sessions := protected.Group("/sessions")
			{
				sessions.GET("", handlers.ListSessions(deps.Store))
				sessions.POST("", handlers.CreateSession(deps.Store))
				sessions.DELETE("/:sessionId", handlers.DeleteSession(deps.Store))
				sessions.GET("/:sessionId/messages", handlers.GetSessionMessages(deps.Store))
			}
		}
	}
}
