// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Backend names accepted by New.
const (
	BackendOpenAI    = "openai"
	BackendOllama    = "ollama"
	BackendAnthropic = "anthropic"
	BackendLlamaCpp  = "llamacpp"
)

// secretsDir is where container secrets are mounted.
var secretsDir = "/run/secrets"

// Config selects and configures a backend.
type Config struct {
	Backend        string        `yaml:"backend"`
	Model          string        `yaml:"model"`
	EmbeddingModel string        `yaml:"embedding_model"`
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"-"`
	Timeout        time.Duration `yaml:"timeout"`

	// QPS caps outbound requests per second. Zero disables the cap.
	QPS   float64 `yaml:"qps"`
	Burst int     `yaml:"burst"`

	HTTPClient *http.Client `yaml:"-"`
}

func (c Config) httpClient(fallback time.Duration) *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = fallback
	}
	return &http.Client{Timeout: timeout}
}

// New builds the client named by cfg.Backend, wrapped in a
// RateLimitedClient when cfg.QPS is positive.
func New(cfg Config) (LLMClient, error) {
	var (
		client LLMClient
		err    error
	)
	switch strings.ToLower(cfg.Backend) {
	case BackendOpenAI, "":
		client, err = NewOpenAIClient(cfg)
	case BackendOllama:
		client, err = NewOllamaClient(cfg)
	case BackendAnthropic, "claude":
		client, err = NewAnthropicClient(cfg)
	case BackendLlamaCpp, "local":
		client, err = NewLlamaCppClient(cfg)
	default:
		return nil, fmt.Errorf("unknown LLM backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	if cfg.QPS > 0 {
		client = NewRateLimitedClient(client, cfg.QPS, cfg.Burst)
	}
	return client, nil
}

// readSecret returns the env var, or the trimmed content of the mounted
// secret file with the given name.
func readSecret(envKey, secretName string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	path := filepath.Join(secretsDir, secretName)
	content, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	slog.Info("Read API key from mounted secret", "path", path)
	return strings.TrimSpace(string(content))
}
