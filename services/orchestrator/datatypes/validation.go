// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"github.com/go-playground/validator/v10"
)

const (
	// MaxMessageContentBytes bounds a single question or history turn.
	MaxMessageContentBytes = 32 * 1024

	// MaxHistoryTurns bounds client-supplied history.
	MaxHistoryTurns = 100
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= MaxMessageContentBytes
	})
}

// AskRequest is the body of POST /v1/ask.
type AskRequest struct {
	Question  string    `json:"question" validate:"required,maxbytes"`
	SessionID string    `json:"session_id,omitempty" validate:"omitempty,uuid4"`
	History   []Message `json:"history,omitempty" validate:"max=100,dive"`
}

func (r *AskRequest) Validate() error { return validate.Struct(r) }

// RegisterRequest is the body of POST /v1/auth/register.
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64,alphanumunicode"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Email    string `json:"email,omitempty" validate:"omitempty,email"`
}

func (r *RegisterRequest) Validate() error { return validate.Struct(r) }

// LoginRequest is the body of POST /v1/auth/login.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (r *LoginRequest) Validate() error { return validate.Struct(r) }

// CreateSessionRequest is the body of POST /v1/sessions.
type CreateSessionRequest struct {
	Name string `json:"name" validate:"max=200"`
}

func (r *CreateSessionRequest) Validate() error { return validate.Struct(r) }
