// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package middleware

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianAssist/pkg/telemetry"
	"github.com/AleutianAI/AleutianAssist/services/orchestrator/observability"
)

// RequestLogger logs one line per request. Query strings are not logged.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if info := GetAuthInfo(c); info != nil {
			attrs = append(attrs, "user_id", info.UserID)
		}
		l := telemetry.LoggerWithTrace(c.Request.Context(), logger)
		if c.Writer.Status() >= 500 {
			l.Error("HTTP request failed", attrs...)
			return
		}
		l.Info("HTTP request", attrs...)
	}
}

// Metrics records request counts and latency by route template.
func Metrics(m *observability.HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.Observe(path, c.Request.Method, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
