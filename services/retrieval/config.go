// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"github.com/AleutianAI/AleutianAssist/services/llm"
)

// Backend names accepted by New.
const (
	BackendMemory   = "memory"
	BackendWeaviate = "weaviate"
	BackendQdrant   = "qdrant"
)

// Config selects and configures a retrieval backend.
type Config struct {
	Backend string `yaml:"backend"`

	// SeedPath is a YAML knowledge base for the memory backend. Empty uses
	// the embedded sample.
	SeedPath string `yaml:"seed_path"`

	WeaviateURL   string `yaml:"weaviate_url"`
	WeaviateClass string `yaml:"weaviate_class"`

	QdrantURL    string `yaml:"qdrant_url"`
	QdrantAPIKey string `yaml:"-"`
}

// New builds the configured retriever. The vector backends embed queries
// with embedder; Qdrant requires one, Weaviate falls back to BM25 without.
func New(ctx context.Context, cfg Config, embedder llm.Embedder) (Retriever, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendMemory:
		if cfg.SeedPath == "" {
			return NewDefaultMemoryRetriever()
		}
		return LoadMemoryRetriever(cfg.SeedPath)

	case BackendWeaviate:
		u, err := url.Parse(strings.Trim(cfg.WeaviateURL, "\"' "))
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid Weaviate URL: %q", cfg.WeaviateURL)
		}
		client, err := weaviate.NewClient(weaviate.Config{Host: u.Host, Scheme: u.Scheme})
		if err != nil {
			return nil, fmt.Errorf("failed to create Weaviate client: %w", err)
		}
		r := NewWeaviateRetriever(client, cfg.WeaviateClass, embedder)
		if err := r.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		slog.Info("Weaviate retriever initialized", "url", u.String(), "class", r.class)
		return r, nil

	case BackendQdrant:
		if embedder == nil {
			return nil, fmt.Errorf("qdrant retrieval requires an embedding backend")
		}
		return NewQdrantRetriever(QdrantConfig{URL: cfg.QdrantURL, APIKey: cfg.QdrantAPIKey}, embedder)

	default:
		return nil, fmt.Errorf("unknown retrieval backend: %q", cfg.Backend)
	}
}
