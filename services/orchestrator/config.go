// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package orchestrator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AleutianAI/AleutianAssist/pkg/telemetry"
	"github.com/AleutianAI/AleutianAssist/services/guardrails"
	"github.com/AleutianAI/AleutianAssist/services/llm"
	"github.com/AleutianAI/AleutianAssist/services/orchestrator/assistant"
	"github.com/AleutianAI/AleutianAssist/services/retrieval"
	"github.com/AleutianAI/AleutianAssist/services/store"
)

// DefaultPort is the HTTP port used when none is configured.
const DefaultPort = 12210

// Config is the full service configuration. Zero values use defaults.
type Config struct {
	// Port is the HTTP server port. Default: 12210
	Port int `yaml:"port"`

	// GinMode is "debug", "release" or "test". Empty keeps gin's default.
	GinMode string `yaml:"gin_mode"`

	// ShutdownTimeout bounds graceful shutdown. Default: 10s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	LLM       llm.Config       `yaml:"llm"`
	Retrieval retrieval.Config `yaml:"retrieval"`
	Store     store.Config     `yaml:"store"`
	Limits    LimitsConfig     `yaml:"limits"`
	Policy    PolicyConfig     `yaml:"policy"`
	Auth      AuthConfig       `yaml:"auth"`
	Telemetry telemetry.Config `yaml:"telemetry"`

	// Registry receives the service's Prometheus collectors. Nil creates a
	// private registry; /metrics serves it together with the default one.
	Registry *prometheus.Registry `yaml:"-"`
}

// LimitsConfig bounds per-user and per-backend load.
type LimitsConfig struct {
	RateLimit      int           `yaml:"rate_limit"`
	RateWindow     time.Duration `yaml:"rate_window"`
	MaxIdentities  int           `yaml:"max_identities"`
	BackendTimeout time.Duration `yaml:"backend_timeout"`
	TopK           int           `yaml:"top_k"`
}

// PolicyConfig locates the guard policy. An empty Path uses the embedded
// policy.
type PolicyConfig struct {
	Path      string `yaml:"path"`
	HotReload bool   `yaml:"hot_reload"`
}

// AuthConfig controls bearer-token authentication.
// Load parses the policy file, or the embedded default when Path is empty.
func (c PolicyConfig) Load() (*guardrails.Policy, error) {
	if c.Path == "" {
		return guardrails.DefaultPolicy()
	}
	return guardrails.LoadPolicyFile(c.Path)
}

type AuthConfig struct {
	// Disabled treats every request as the local user.
	Disabled bool          `yaml:"disabled"`
	TokenTTL time.Duration `yaml:"token_ttl"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return applyConfigDefaults(Config{Telemetry: telemetry.DefaultConfig()})
}

// applyConfigDefaults fills in missing configuration values.
// WithDefaults fills every unset field with its default.
func (c Config) WithDefaults() Config {
	return applyConfigDefaults(c)
}

func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.LLM.Backend == "" {
		cfg.LLM.Backend = llm.BackendOpenAI
	}
	if cfg.Retrieval.Backend == "" {
		cfg.Retrieval.Backend = retrieval.BackendMemory
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = store.DriverMemory
	}
	if cfg.Limits.RateLimit <= 0 {
		cfg.Limits.RateLimit = guardrails.DefaultRateLimit
	}
	if cfg.Limits.RateWindow <= 0 {
		cfg.Limits.RateWindow = guardrails.DefaultRateWindow
	}
	if cfg.Limits.MaxIdentities <= 0 {
		cfg.Limits.MaxIdentities = guardrails.DefaultMaxIdentities
	}
	if cfg.Limits.BackendTimeout <= 0 {
		cfg.Limits.BackendTimeout = assistant.DefaultBackendTimeout
	}
	if cfg.Limits.TopK <= 0 {
		cfg.Limits.TopK = assistant.DefaultTopK
	}
	if cfg.Auth.TokenTTL <= 0 {
		cfg.Auth.TokenTTL = store.DefaultTokenTTL
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "assistant"
	}
	return cfg
}
