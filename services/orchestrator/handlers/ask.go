// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the HTTP handlers of the assistant service.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianAssist/services/orchestrator/assistant"
	"github.com/AleutianAI/AleutianAssist/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianAssist/services/orchestrator/middleware"
	"github.com/AleutianAI/AleutianAssist/services/store"
)

var askTracer = otel.Tracer("assistant.handlers")

// sessionHistoryLimit is how many stored turns are loaded for a session.
const sessionHistoryLimit = 20

// Answerer runs one question through the guarded pipeline.
type Answerer interface {
	Answer(ctx context.Context, q assistant.Query) datatypes.PipelineResult
}

// QuotaReporter is implemented by pipelines that rate limit per identity.
type QuotaReporter interface {
	RemainingQuota(identity string) int
}

// HandleAsk answers a question. With a session_id the stored history is
// used and the exchange is appended to the session; otherwise the history
// in the request body is used and nothing is stored. Guardrail blocks are
// reported in the body with status 200. When pipeline is a QuotaReporter the
// caller's remaining quota is sent in X-RateLimit-Remaining.
func HandleAsk(pipeline Answerer, st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := askTracer.Start(c.Request.Context(), "HandleAsk")
		defer span.End()

		var req datatypes.AskRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			slog.Warn("Failed to parse the ask request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
			return
		}

		var userID string
		if info := middleware.GetAuthInfo(c); info != nil {
			userID = info.UserID
		}

		history := req.History
		if req.SessionID != "" {
			stored, err := loadSessionHistory(ctx, st, userID, req.SessionID)
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
				return
			}
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				slog.Error("Failed to load session history", "session_id", req.SessionID, "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session history"})
				return
			}
			history = stored
		}

		result := pipeline.Answer(ctx, assistant.Query{
			Text:     req.Question,
			Identity: userID,
			History:  history,
		})

		if req.SessionID != "" && !result.Blocked {
			saveExchange(ctx, st, userID, req.SessionID, result)
		}

		if quota, ok := pipeline.(QuotaReporter); ok && userID != "" {
			c.Header("X-RateLimit-Remaining", strconv.Itoa(quota.RemainingQuota(userID)))
		}
		c.JSON(http.StatusOK, datatypes.AskResponse{PipelineResult: result, SessionID: req.SessionID})
	}
}

func loadSessionHistory(ctx context.Context, st store.Store, userID, sessionID string) ([]datatypes.Message, error) {
	stored, err := st.GetHistory(ctx, userID, sessionID, sessionHistoryLimit)
	if err != nil {
		return nil, err
	}
	history := make([]datatypes.Message, 0, len(stored))
	for _, m := range stored {
		history = append(history, datatypes.Message{Role: m.Role, Content: m.Content})
	}
	return history, nil
}

// saveExchange stores the question and answer. Failures are logged only;
// the caller already has its answer.
func saveExchange(ctx context.Context, st store.Store, userID, sessionID string, result datatypes.PipelineResult) {
	if _, err := st.SaveMessage(ctx, userID, sessionID, datatypes.RoleUser, result.Question, nil); err != nil {
		slog.Error("Failed to save question", "session_id", sessionID, "error", err)
		return
	}
	meta := map[string]any{
		"route":        result.Route.String(),
		"sources":      result.Sources,
		"context_used": result.ContextUsed,
	}
	if result.Error != "" {
		meta["error"] = result.Error
	}
	if _, err := st.SaveMessage(ctx, userID, sessionID, datatypes.RoleAssistant, result.Answer, meta); err != nil {
		slog.Error("Failed to save answer", "session_id", sessionID, "error", err)
	}
}
