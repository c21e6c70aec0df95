// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianAssist/pkg/extensions"
	"github.com/AleutianAI/AleutianAssist/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianAssist/services/store"
)

// HandleRegister creates an account. Returns 201 with the user id, 409 when
// the username or email is taken.
func HandleRegister(st store.Store, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
			return
		}

		user, err := st.RegisterUser(c.Request.Context(), req.Username, req.Password, req.Email)
		if errors.Is(err, store.ErrUserExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "username or email already registered"})
			return
		}
		if err != nil {
			slog.Error("Failed to register user", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register user"})
			return
		}

		logAudit(c, audit, extensions.AuditEvent{
			EventType:    extensions.EventUserRegistered,
			UserID:       user.ID,
			Action:       "register",
			ResourceType: "user",
			ResourceID:   user.ID,
			Outcome:      "success",
		})
		c.JSON(http.StatusCreated, gin.H{"user_id": user.ID, "username": user.Username})
	}
}

// HandleLogin checks credentials and issues a bearer token.
func HandleLogin(st store.Store, audit extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
			return
		}

		ctx := c.Request.Context()
		user, err := st.Authenticate(ctx, req.Username, req.Password)
		if errors.Is(err, store.ErrInvalidCredentials) {
			logAudit(c, audit, extensions.AuditEvent{
				EventType:    extensions.EventLoginFailed,
				Action:       "login",
				ResourceType: "user",
				Outcome:      "denied",
				Metadata:     map[string]any{"username": req.Username},
			})
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
			return
		}
		if err != nil {
			slog.Error("Failed to authenticate user", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to authenticate"})
			return
		}

		token, err := st.IssueToken(ctx, user.ID)
		if err != nil {
			slog.Error("Failed to issue token", "user_id", user.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"token":      token,
			"token_type": "Bearer",
			"user_id":    user.ID,
			"username":   user.Username,
		})
	}
}

func logAudit(c *gin.Context, audit extensions.AuditLogger, event extensions.AuditEvent) {
	if audit == nil {
		return
	}
	event.Timestamp = time.Now().UTC()
	if err := audit.Log(c.Request.Context(), event); err != nil {
		slog.Warn("Failed to write audit event", "event_type", event.EventType, "error", err)
	}
}
