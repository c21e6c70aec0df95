// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package assistant

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/AleutianAI/AleutianAssist/services/orchestrator/datatypes"
)

// RoutingCase is one labelled question and what the router said about it.
type RoutingCase struct {
	Question string          `json:"question"`
	Expected datatypes.Route `json:"expected_route"`
	Got      datatypes.Route `json:"got_route"`
	Correct  bool            `json:"correct"`
}

// RoutingReport summarises a routing evaluation run.
type RoutingReport struct {
	Total      int           `json:"total"`
	Correct    int           `json:"correct"`
	Accuracy   float64       `json:"accuracy_pct"`
	Cases      []RoutingCase `json:"cases"`
	Mismatches []RoutingCase `json:"mismatches"`
}

// EvaluateRouting classifies every row of a CSV file with "question" and
// "expected_route" columns and reports the share routed correctly. Rows
// without an expected route are skipped.
func EvaluateRouting(ctx context.Context, router *Router, r io.Reader) (RoutingReport, error) {
	report := RoutingReport{Cases: []RoutingCase{}, Mismatches: []RoutingCase{}}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return report, fmt.Errorf("failed to read evaluation header: %w", err)
	}
	qCol, eCol := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "question":
			qCol = i
		case "expected_route":
			eCol = i
		}
	}
	if qCol < 0 || eCol < 0 {
		return report, errors.New("evaluation file needs question and expected_route columns")
	}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return report, fmt.Errorf("failed to read evaluation row: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if qCol >= len(record) || eCol >= len(record) {
			continue
		}
		question := strings.TrimSpace(record[qCol])
		expected := datatypes.Route(strings.ToLower(strings.TrimSpace(record[eCol])))
		if question == "" || expected == "" {
			continue
		}

		got := router.Classify(ctx, question, nil)
		c := RoutingCase{Question: question, Expected: expected, Got: got, Correct: got == expected}
		report.Total++
		report.Cases = append(report.Cases, c)
		if c.Correct {
			report.Correct++
			continue
		}
		report.Mismatches = append(report.Mismatches, c)
	}
	if report.Total > 0 {
		report.Accuracy = float64(report.Correct) / float64(report.Total) * 100
	}
	return report, nil
}
