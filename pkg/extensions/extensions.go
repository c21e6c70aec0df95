// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package extensions holds the pluggable edges of the assistant service:
// who the caller is (AuthProvider) and where security events go
// (AuditLogger). The server wires the store-backed token provider and a
// structured-log audit sink; tests and the CLI use the no-op defaults.
//
// All implementations must be safe for concurrent use.
package extensions

// ServiceOptions groups the extension points passed to the server.
// Nil fields are replaced with no-op defaults by Normalize.
type ServiceOptions struct {
	// AuthProvider validates bearer tokens on /v1 routes.
	AuthProvider AuthProvider

	// AuditLogger records guardrail blocks and advisory flags.
	AuditLogger AuditLogger
}

// DefaultOptions returns options with no-op implementations: every request
// is the local user and no audit trail is kept.
func DefaultOptions() ServiceOptions {
	return ServiceOptions{
		AuthProvider: &NopAuthProvider{},
		AuditLogger:  &NopAuditLogger{},
	}
}

// WithAuth returns a copy of opts with the given AuthProvider.
func (opts ServiceOptions) WithAuth(provider AuthProvider) ServiceOptions {
	opts.AuthProvider = provider
	return opts
}

// WithAudit returns a copy of opts with the given AuditLogger.
func (opts ServiceOptions) WithAudit(logger AuditLogger) ServiceOptions {
	opts.AuditLogger = logger
	return opts
}

// Normalize fills nil fields with no-op defaults.
func (opts ServiceOptions) Normalize() ServiceOptions {
	if opts.AuthProvider == nil {
		opts.AuthProvider = &NopAuthProvider{}
	}
	if opts.AuditLogger == nil {
		opts.AuditLogger = &NopAuditLogger{}
	}
	return opts
}
