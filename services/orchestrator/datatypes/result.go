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

import "sort"

// PipelineResult is the outcome of answering one question. Every failure
// is encoded here; the pipeline never returns an error.
type PipelineResult struct {
	Question    string   `json:"question"`
	Answer      string   `json:"answer"`
	Route       Route    `json:"route"`
	Sources     []string `json:"sources"`
	Blocked     bool     `json:"blocked"`
	Reason      string   `json:"reason,omitempty"`
	ContextUsed bool     `json:"context_used"`
	Error       string   `json:"error,omitempty"`
}

// SourceSet deduplicates sources and returns them sorted. The result is
// never nil so the JSON form is always an array.
func SourceSet(sources []string) []string {
	seen := make(map[string]struct{}, len(sources))
	out := make([]string, 0, len(sources))
	for _, s := range sources {
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// AskResponse is returned by POST /v1/ask.
type AskResponse struct {
	PipelineResult
	SessionID string `json:"session_id,omitempty"`
}
