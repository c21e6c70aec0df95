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
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianAssist/services/llm"
	"github.com/AleutianAI/AleutianAssist/services/orchestrator/datatypes"
)

// DefaultWeaviateClass holds every knowledge-base chunk; the category
// property partitions it the way separate per-route collections would.
const DefaultWeaviateClass = "KnowledgeDocument"

var tracer = otel.Tracer("assistant.retrieval")

// WeaviateRetriever searches a Weaviate class filtered by category. With
// an embedder it runs a nearVector query, otherwise BM25 over content.
type WeaviateRetriever struct {
	client   *weaviate.Client
	class    string
	embedder llm.Embedder
}

// NewWeaviateRetriever wraps client. An empty class uses
// DefaultWeaviateClass; embedder may be nil.
func NewWeaviateRetriever(client *weaviate.Client, class string, embedder llm.Embedder) *WeaviateRetriever {
	if class == "" {
		class = DefaultWeaviateClass
	}
	return &WeaviateRetriever{client: client, class: class, embedder: embedder}
}

// KnowledgeDocumentSchema returns the class definition for knowledge-base
// chunks. Vectors are supplied by the indexer.
func KnowledgeDocumentSchema(class string) *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       class,
		Description: "A chunk of a company document used to ground assistant answers.",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{
				Name:         "content",
				DataType:     []string{"text"},
				Description:  "Chunk text",
				Tokenization: "word",
			},
			{
				Name:            "source",
				DataType:        []string{"text"},
				Description:     "Source file the chunk was taken from",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "category",
				DataType:        []string{"text"},
				Description:     "Route the chunk answers: general_company, role_specific or admin_policy",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
		},
	}
}

// EnsureSchema creates the class if it does not exist.
func (w *WeaviateRetriever) EnsureSchema(ctx context.Context) error {
	if _, err := w.client.Schema().ClassGetter().WithClassName(w.class).Do(ctx); err == nil {
		slog.Debug("Weaviate schema already exists", "class", w.class)
		return nil
	}
	slog.Info("Schema not found, creating it", "class", w.class)
	if err := w.client.Schema().ClassCreator().WithClass(KnowledgeDocumentSchema(w.class)).Do(ctx); err != nil {
		return fmt.Errorf("creating %s schema: %w", w.class, err)
	}
	return nil
}

// weaviateGetResponse is the typed form of a Get query over the class.
type weaviateGetResponse struct {
	Get map[string][]struct {
		Content string `json:"content"`
		Source  string `json:"source"`
	} `json:"Get"`
}

func (w *WeaviateRetriever) Search(ctx context.Context, query string, category datatypes.Route, k int) ([]Passage, error) {
	ctx, span := tracer.Start(ctx, "WeaviateRetriever.Search")
	defer span.End()
	span.SetAttributes(attribute.String("category", category.String()), attribute.Int("k", k))

	where := filters.Where().
		WithPath([]string{"category"}).
		WithOperator(filters.Equal).
		WithValueString(category.String())

	get := w.client.GraphQL().Get().
		WithClassName(w.class).
		WithFields(graphql.Field{Name: "content"}, graphql.Field{Name: "source"}).
		WithWhere(where).
		WithLimit(k)

	if w.embedder != nil {
		vecs, err := w.embedder.Embed(ctx, []string{query})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "embed failed")
			return nil, backendErr(BackendWeaviate, "embed", err)
		}
		if len(vecs) != 1 {
			return nil, backendErr(BackendWeaviate, "embed", fmt.Errorf("expected 1 vector, got %d", len(vecs)))
		}
		get = get.WithNearVector(w.client.GraphQL().NearVectorArgBuilder().WithVector(vecs[0]))
	} else {
		get = get.WithBM25(w.client.GraphQL().Bm25ArgBuilder().WithQuery(query).WithProperties("content"))
	}

	result, err := get.Do(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search failed")
		return nil, backendErr(BackendWeaviate, "search", err)
	}
	if len(result.Errors) > 0 {
		err := fmt.Errorf("graphql: %s", result.Errors[0].Message)
		span.RecordError(err)
		span.SetStatus(codes.Error, "search failed")
		return nil, backendErr(BackendWeaviate, "search", err)
	}

	passages, err := parseWeaviatePassages(result, w.class)
	if err != nil {
		return nil, backendErr(BackendWeaviate, "parse", err)
	}
	span.SetAttributes(attribute.Int("passages", len(passages)))
	return passages, nil
}

func parseWeaviatePassages(resp *models.GraphQLResponse, class string) ([]Passage, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}
	var parsed weaviateGetResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal GraphQL response data: %w", err)
	}
	rows := parsed.Get[class]
	out := make([]Passage, 0, len(rows))
	for _, row := range rows {
		if row.Content == "" {
			continue
		}
		out = append(out, Passage{Text: row.Content, Source: row.Source})
	}
	return out, nil
}

var _ Retriever = (*WeaviateRetriever)(nil)
