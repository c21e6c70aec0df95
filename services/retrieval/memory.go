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
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianAssist/services/orchestrator/datatypes"
)

//go:embed seed/knowledge_base.yaml
var defaultSeed []byte

// seedFile is the YAML layout of a knowledge-base seed.
type seedFile struct {
	Documents []struct {
		Category string `yaml:"category"`
		Source   string `yaml:"source"`
		Text     string `yaml:"text"`
	} `yaml:"documents"`
}

// MemoryRetriever ranks passages by how many distinct query terms they
// contain. It needs no external service and backs local runs and tests.
type MemoryRetriever struct {
	mu   sync.RWMutex
	docs map[datatypes.Route][]indexedPassage
}

type indexedPassage struct {
	Passage
	terms map[string]struct{}
}

// NewMemoryRetriever returns an empty index.
func NewMemoryRetriever() *MemoryRetriever {
	return &MemoryRetriever{docs: make(map[datatypes.Route][]indexedPassage)}
}

// NewDefaultMemoryRetriever loads the embedded sample knowledge base.
func NewDefaultMemoryRetriever() (*MemoryRetriever, error) {
	return ParseMemorySeed(defaultSeed)
}

// LoadMemoryRetriever loads a seed file from disk.
func LoadMemoryRetriever(path string) (*MemoryRetriever, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge base %s: %w", path, err)
	}
	return ParseMemorySeed(data)
}

// ParseMemorySeed builds an index from seed YAML. Every document must name
// a retrievable category and carry text.
func ParseMemorySeed(data []byte) (*MemoryRetriever, error) {
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal knowledge base: %w", err)
	}
	r := NewMemoryRetriever()
	for i, d := range seed.Documents {
		route, ok := datatypes.ParseCategory(d.Category)
		if !ok || !route.UsesRetrieval() {
			return nil, fmt.Errorf("document %d: invalid category %q", i, d.Category)
		}
		if strings.TrimSpace(d.Text) == "" {
			return nil, fmt.Errorf("document %d: empty text", i)
		}
		r.Add(route, Passage{Text: strings.TrimSpace(d.Text), Source: d.Source})
	}
	return r, nil
}

// Add indexes p under category.
func (r *MemoryRetriever) Add(category datatypes.Route, p Passage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[category] = append(r.docs[category], indexedPassage{Passage: p, terms: termSet(p.Text)})
}

// Len returns the number of passages indexed under category.
func (r *MemoryRetriever) Len(category datatypes.Route) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.docs[category])
}

func (r *MemoryRetriever) Search(ctx context.Context, query string, category datatypes.Route, k int) ([]Passage, error) {
	if err := ctx.Err(); err != nil {
		return nil, backendErr(BackendMemory, "search", err)
	}
	if k <= 0 {
		return nil, nil
	}
	queryTerms := termSet(query)

	r.mu.RLock()
	defer r.mu.RUnlock()

	type scored struct {
		idx   int
		score int
	}
	var hits []scored
	for i, doc := range r.docs[category] {
		score := 0
		for term := range queryTerms {
			if _, ok := doc.terms[term]; ok {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, scored{idx: i, score: score})
		}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].score > hits[b].score })
	if len(hits) > k {
		hits = hits[:k]
	}

	out := make([]Passage, len(hits))
	for i, h := range hits {
		out[i] = r.docs[category][h.idx].Passage
	}
	return out, nil
}

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "our": {}, "what": {}, "how": {},
	"who": {}, "does": {}, "can": {}, "you": {}, "with": {}, "this": {}, "that": {},
	"from": {}, "have": {}, "has": {}, "is": {}, "do": {}, "an": {}, "of": {},
	"to": {}, "in": {}, "on": {}, "my": {}, "we": {}, "me": {},
}

// termSet lowercases text and keeps words of three or more runes that are
// not stop words. A trailing "s" is dropped so "values" matches "value".
func termSet(text string) map[string]struct{} {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := make(map[string]struct{}, len(words))
	for _, w := range words {
		if len([]rune(w)) < 3 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		if len(w) > 3 && strings.HasSuffix(w, "s") {
			w = strings.TrimSuffix(w, "s")
		}
		terms[w] = struct{}{}
	}
	return terms
}

var _ Retriever = (*MemoryRetriever)(nil)
