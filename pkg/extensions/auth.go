// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extensions

import (
	"context"
	"errors"
)

// ErrUnauthorized is returned when a token is missing, unknown or expired.
// Implementations should wrap it with context.
var ErrUnauthorized = errors.New("unauthorized")

// AuthInfo is the identity behind a validated token.
type AuthInfo struct {
	// UserID is the stable identifier used for rate limiting and session
	// ownership. Never empty.
	UserID string

	// Username is the login name, when the provider knows it.
	Username string

	Email string
	Roles []string
}

// HasRole reports whether the user holds role.
func (a *AuthInfo) HasRole(role string) bool {
	if a == nil {
		return false
	}
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// AuthProvider validates bearer tokens.
type AuthProvider interface {
	// Validate returns the identity for token, or an error wrapping
	// ErrUnauthorized when the token is not acceptable.
	Validate(ctx context.Context, token string) (*AuthInfo, error)
}

// AuthProviderFunc adapts a function to AuthProvider.
type AuthProviderFunc func(ctx context.Context, token string) (*AuthInfo, error)

func (f AuthProviderFunc) Validate(ctx context.Context, token string) (*AuthInfo, error) {
	return f(ctx, token)
}

// NopAuthProvider accepts any token as the single local user.
type NopAuthProvider struct{}

func (p *NopAuthProvider) Validate(_ context.Context, _ string) (*AuthInfo, error) {
	return &AuthInfo{
		UserID:   "local-user",
		Username: "local-user",
		Roles:    []string{"admin"},
	}, nil
}

var (
	_ AuthProvider = (*NopAuthProvider)(nil)
	_ AuthProvider = AuthProviderFunc(nil)
)
