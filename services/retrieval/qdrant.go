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
	"net/url"
	"strconv"
	"strings"

	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianAssist/services/llm"
	"github.com/AleutianAI/AleutianAssist/services/orchestrator/datatypes"
)

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	// URL is the gRPC address, e.g. "http://localhost:6334". https enables
	// TLS. The port defaults to 6334.
	URL    string
	APIKey string
}

// QdrantRetriever searches one collection per category, named by
// Route.Collection ("admin_policy_docs").
type QdrantRetriever struct {
	client   *qdrant.Client
	embedder llm.Embedder
}

// NewQdrantRetriever connects to Qdrant.
func NewQdrantRetriever(cfg QdrantConfig, embedder llm.Embedder) (*QdrantRetriever, error) {
	host, port, useTLS, err := parseQdrantURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}
	return &QdrantRetriever{client: client, embedder: embedder}, nil
}

func parseQdrantURL(raw string) (host string, port int, useTLS bool, err error) {
	if raw == "" {
		return "", 0, false, fmt.Errorf("qdrant url is required")
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", 0, false, fmt.Errorf("failed to parse qdrant url: %w", err)
	}
	port = 6334
	if u.Port() != "" {
		if port, err = strconv.Atoi(u.Port()); err != nil {
			return "", 0, false, fmt.Errorf("invalid port: %w", err)
		}
	}
	return u.Hostname(), port, u.Scheme == "https", nil
}

func (q *QdrantRetriever) Search(ctx context.Context, query string, category datatypes.Route, k int) ([]Passage, error) {
	ctx, span := tracer.Start(ctx, "QdrantRetriever.Search")
	defer span.End()
	span.SetAttributes(attribute.String("collection", category.Collection()), attribute.Int("k", k))

	vecs, err := q.embedder.Embed(ctx, []string{query})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embed failed")
		return nil, backendErr(BackendQdrant, "embed", err)
	}
	if len(vecs) != 1 {
		return nil, backendErr(BackendQdrant, "embed", fmt.Errorf("expected 1 vector, got %d", len(vecs)))
	}

	limit := uint64(k)
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: category.Collection(),
		Query:          qdrant.NewQuery(vecs[0]...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, backendErr(BackendQdrant, "search", err)
	}

	out := make([]Passage, 0, len(points))
	for _, point := range points {
		if p, ok := passageFromPayload(point.GetPayload()); ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// passageFromPayload reads text from "content" (or "text") and the source
// from "source_file" (or "source"). Points without text are skipped.
func passageFromPayload(payload map[string]*qdrant.Value) (Passage, bool) {
	var p Passage
	for _, key := range []string{"content", "text"} {
		if v, ok := payload[key]; ok && v.GetStringValue() != "" {
			p.Text = v.GetStringValue()
			break
		}
	}
	for _, key := range []string{"source_file", "source"} {
		if v, ok := payload[key]; ok && v.GetStringValue() != "" {
			p.Source = v.GetStringValue()
			break
		}
	}
	return p, p.Text != ""
}

// Close releases the gRPC connection.
func (q *QdrantRetriever) Close() error {
	return q.client.Close()
}

var _ Retriever = (*QdrantRetriever)(nil)
