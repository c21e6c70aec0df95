// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package retrieval finds knowledge-base passages for a routed question.
//
// Three backends implement Retriever: an in-process keyword index seeded
// from YAML (MemoryRetriever), Weaviate (WeaviateRetriever) and Qdrant
// (QdrantRetriever). Document ingestion is out of scope; the vector
// backends expect collections populated by an external indexer.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/AleutianAI/AleutianAssist/services/orchestrator/datatypes"
)

// UnknownSource labels a passage whose backend row carried no source.
const UnknownSource = "unknown"

// Passage is one retrieved chunk of a source document.
type Passage struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

// LabelUnknownSources returns passages with every empty Source set to
// UnknownSource. The input slice is copied only when a label is missing.
func LabelUnknownSources(passages []Passage) []Passage {
	for i, p := range passages {
		if p.Source != "" {
			continue
		}
		out := slices.Clone(passages)
		for j := i; j < len(out); j++ {
			if out[j].Source == "" {
				out[j].Source = UnknownSource
			}
		}
		return out
	}
	return passages
}

// Retriever searches the collection for category. An empty result is not
// an error.
type Retriever interface {
	Search(ctx context.Context, query string, category datatypes.Route, k int) ([]Passage, error)
}

// RetrieverFunc adapts a function to Retriever.
type RetrieverFunc func(ctx context.Context, query string, category datatypes.Route, k int) ([]Passage, error)

func (f RetrieverFunc) Search(ctx context.Context, query string, category datatypes.Route, k int) ([]Passage, error) {
	return f(ctx, query, category, k)
}

// BackendError reports a failed call to a retrieval backend.
type BackendError struct {
	Backend string
	Op      string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Backend, e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// IsBackendError reports whether err wraps a *BackendError.
func IsBackendError(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}

func backendErr(backend, op string, err error) error {
	return &BackendError{Backend: backend, Op: op, Err: err}
}
