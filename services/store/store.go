// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists users, chat sessions and messages.
//
// One implementation of Store runs over a small key-value contract with
// three drivers: in-process memory, Redis and an embedded BadgerDB.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrNotFound is returned for unknown users, sessions and tokens, and for
	// sessions that belong to another user.
	ErrNotFound = errors.New("not found")

	// ErrUserExists is returned when the username or email is taken.
	ErrUserExists = errors.New("username or email already registered")

	// ErrInvalidCredentials is returned for an unknown user or wrong password.
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// User is a registered account.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
	LastLogin    time.Time `json:"last_login,omitzero"`
}

// Session is a named conversation owned by one user.
type Session struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// Message is one stored chat turn.
type Message struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Seq       int64          `json:"seq"`
}

// Store is the persistence contract used by the HTTP layer.
type Store interface {
	RegisterUser(ctx context.Context, username, password, email string) (User, error)
	Authenticate(ctx context.Context, username, password string) (User, error)
	GetUser(ctx context.Context, userID string) (User, error)

	CreateSession(ctx context.Context, userID, name string) (Session, error)
	GetSession(ctx context.Context, userID, sessionID string) (Session, error)
	// ListSessions returns the user's sessions, most recent activity first.
	ListSessions(ctx context.Context, userID string) ([]Session, error)
	// DeleteSession removes the session and all of its messages.
	DeleteSession(ctx context.Context, userID, sessionID string) error

	SaveMessage(ctx context.Context, userID, sessionID, role, content string, metadata map[string]any) (Message, error)
	// GetHistory returns messages oldest first. limit > 0 keeps only the
	// most recent limit messages.
	GetHistory(ctx context.Context, userID, sessionID string, limit int) ([]Message, error)

	IssueToken(ctx context.Context, userID string) (string, error)
	ResolveToken(ctx context.Context, token string) (User, error)
	RevokeToken(ctx context.Context, token string) error

	Close() error
}

// HashPassword returns a bcrypt hash of password at cost. cost 0 uses
// bcrypt.DefaultCost.
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// placeholderEmail stands in for a missing email so the uniqueness index
// never collides on "".
func placeholderEmail(username string, now time.Time) string {
	return fmt.Sprintf("__no_email__%s_%d@local", username, now.Unix())
}
