// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianAssist/services/orchestrator"
)

const defaultConfigPath = "config.yaml"

// loadConfig reads the YAML file at path over the defaults, then applies
// environment overrides. A missing file is only an error when required.
func loadConfig(path string, required bool) (orchestrator.Config, error) {
	cfg := orchestrator.DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !required:
		slog.Debug("No configuration file, using defaults", "path", path)
	default:
		return cfg, fmt.Errorf("failed to read %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)
	return cfg.WithDefaults(), nil
}

// applyEnvOverrides lets deployments adjust the file without editing it.
// Secrets are only ever read from the environment.
func applyEnvOverrides(cfg *orchestrator.Config) {
	cfg.Port = getEnvInt("ASSISTANT_PORT", cfg.Port)
	cfg.GinMode = getEnvString("GIN_MODE", cfg.GinMode)

	cfg.LLM.Backend = getEnvString("LLM_BACKEND", cfg.LLM.Backend)
	cfg.LLM.Model = getEnvString("LLM_MODEL", cfg.LLM.Model)
	cfg.LLM.EmbeddingModel = getEnvString("LLM_EMBEDDING_MODEL", cfg.LLM.EmbeddingModel)
	cfg.LLM.BaseURL = getEnvString("LLM_BASE_URL", cfg.LLM.BaseURL)

	cfg.Retrieval.Backend = getEnvString("RETRIEVAL_BACKEND", cfg.Retrieval.Backend)
	cfg.Retrieval.SeedPath = getEnvString("KNOWLEDGE_BASE_PATH", cfg.Retrieval.SeedPath)
	cfg.Retrieval.WeaviateURL = getEnvString("WEAVIATE_URL", cfg.Retrieval.WeaviateURL)
	cfg.Retrieval.WeaviateClass = getEnvString("WEAVIATE_CLASS", cfg.Retrieval.WeaviateClass)
	cfg.Retrieval.QdrantURL = getEnvString("QDRANT_URL", cfg.Retrieval.QdrantURL)
	cfg.Retrieval.QdrantAPIKey = getEnvString("QDRANT_API_KEY", cfg.Retrieval.QdrantAPIKey)

	cfg.Store.Driver = getEnvString("STORE_DRIVER", cfg.Store.Driver)
	cfg.Store.RedisAddr = getEnvString("REDIS_ADDR", cfg.Store.RedisAddr)
	cfg.Store.RedisPassword = getEnvString("REDIS_PASSWORD", cfg.Store.RedisPassword)
	cfg.Store.RedisDB = getEnvInt("REDIS_DB", cfg.Store.RedisDB)
	cfg.Store.BadgerPath = getEnvString("BADGER_PATH", cfg.Store.BadgerPath)

	cfg.Limits.RateLimit = getEnvInt("RATE_LIMIT", cfg.Limits.RateLimit)
	cfg.Limits.RateWindow = getEnvDuration("RATE_WINDOW", cfg.Limits.RateWindow)
	cfg.Limits.BackendTimeout = getEnvDuration("BACKEND_TIMEOUT", cfg.Limits.BackendTimeout)
	cfg.Limits.TopK = getEnvInt("TOP_K", cfg.Limits.TopK)

	cfg.Policy.Path = getEnvString("GUARD_POLICY_PATH", cfg.Policy.Path)
	cfg.Policy.HotReload = getEnvBool("GUARD_POLICY_HOT_RELOAD", cfg.Policy.HotReload)

	cfg.Auth.Disabled = getEnvBool("AUTH_DISABLED", cfg.Auth.Disabled)
	cfg.Auth.TokenTTL = getEnvDuration("TOKEN_TTL", cfg.Auth.TokenTTL)
}

func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if i, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return i
		}
		slog.Warn("Ignoring non-integer environment value", "key", key)
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
		slog.Warn("Ignoring non-boolean environment value", "key", key)
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
		slog.Warn("Ignoring malformed duration in environment", "key", key)
	}
	return defaultValue
}
