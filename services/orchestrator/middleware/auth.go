// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the assistant service.
//
// # Authentication Flow
//
// The auth middleware extracts a bearer token from the Authorization header,
// validates it using the configured AuthProvider, and stores the resulting
// AuthInfo in the Gin context for downstream handlers.
//
//	Request
//	   │
//	   ▼
//	AuthMiddleware
//	   │
//	   ├─► Extract token from "Authorization: Bearer <token>"
//	   │
//	   ├─► provider.Validate(ctx, token)
//	   │
//	   └─► Store AuthInfo in context
//	           │
//	           ▼
//	       Handler (retrieves via GetAuthInfo)
//
// The server validates tokens issued at login against the session store
// (StoreAuthProvider). With NopAuthProvider every request is the local
// user, which is what the CLI and tests use.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianAssist/pkg/extensions"
	"github.com/AleutianAI/AleutianAssist/services/store"
)

// authInfoKey is the context key for storing AuthInfo.
const authInfoKey = "aleutian_auth_info"

// SetAuthInfo stores the authenticated user info in the Gin context.
// Overwrites any previously set value.
func SetAuthInfo(c *gin.Context, info *extensions.AuthInfo) {
	c.Set(authInfoKey, info)
}

// GetAuthInfo retrieves the authenticated user info from the Gin context.
// Returns nil if the request was not authenticated.
func GetAuthInfo(c *gin.Context) *extensions.AuthInfo {
	if info, exists := c.Get(authInfoKey); exists {
		if authInfo, ok := info.(*extensions.AuthInfo); ok {
			return authInfo
		}
	}
	return nil
}

// AuthMiddleware creates a Gin middleware that authenticates requests.
//
// # Description
//
// Extracts the bearer token, validates it with provider and stores the
// resulting AuthInfo for handlers. A missing or malformed header is passed
// to the provider as an empty token.
//
// # Outputs
//
// On failure the request is aborted with 401 and {"error":"unauthorized"}
// for rejected tokens, or {"error":"authentication failed"} when the
// provider itself failed.
//
// # Thread Safety
//
// Thread-safe. The returned middleware can be used concurrently.
func AuthMiddleware(provider extensions.AuthProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)

		authInfo, err := provider.Validate(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, extensions.ErrUnauthorized) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "unauthorized",
				})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "authentication failed",
			})
			return
		}
		if authInfo == nil || authInfo.UserID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "unauthorized",
			})
			return
		}

		SetAuthInfo(c, authInfo)
		c.Next()
	}
}

// StoreAuthProvider validates tokens issued by st at login.
func StoreAuthProvider(st store.Store) extensions.AuthProvider {
	return extensions.AuthProviderFunc(func(ctx context.Context, token string) (*extensions.AuthInfo, error) {
		if token == "" {
			return nil, fmt.Errorf("missing bearer token: %w", extensions.ErrUnauthorized)
		}
		user, err := st.ResolveToken(ctx, token)
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("unknown or expired token: %w", extensions.ErrUnauthorized)
		}
		if err != nil {
			return nil, fmt.Errorf("resolve token: %w", err)
		}
		return &extensions.AuthInfo{
			UserID:   user.ID,
			Username: user.Username,
			Email:    user.Email,
			Roles:    []string{"user"},
		}, nil
	})
}

// extractBearerToken returns the token from "Authorization: Bearer <token>",
// or "" when the header is missing or uses another scheme. The scheme is
// matched case-insensitively per RFC 7235.
func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
