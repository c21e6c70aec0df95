// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package guardrails

import (
	"context"
	"fmt"
	"regexp"
)

// PIIFinding is one personal-data match.
type PIIFinding struct {
	PatternID  string          `json:"pattern_id"`
	Name       string          `json:"name"`
	Match      string          `json:"match"`
	Confidence ConfidenceLevel `json:"confidence"`
}

// PIIDetector matches and masks personal data using priority-ordered patterns.
type PIIDetector struct {
	patterns []PIIPattern
}

// NewPIIDetector compiles any pattern not already compiled by LoadPolicy.
func NewPIIDetector(patterns []PIIPattern) (*PIIDetector, error) {
	compiled := make([]PIIPattern, len(patterns))
	copy(compiled, patterns)
	for i := range compiled {
		if compiled[i].compiled != nil {
			continue
		}
		re, err := regexp.Compile("(?i)" + compiled[i].Regex)
		if err != nil {
			return nil, fmt.Errorf("failed to compile the regex %s: %w", compiled[i].Regex, err)
		}
		compiled[i].compiled = re
	}
	return &PIIDetector{patterns: compiled}, nil
}

// Detect returns the highest-priority category found in text.
func (d *PIIDetector) Detect(text string) (PIIFinding, bool) {
	for _, p := range d.patterns {
		if m := p.compiled.FindString(text); m != "" {
			return PIIFinding{PatternID: p.ID, Name: p.Name, Match: m, Confidence: p.Confidence}, true
		}
	}
	return PIIFinding{}, false
}

// Scan returns every match of every pattern, in priority order.
func (d *PIIDetector) Scan(text string) []PIIFinding {
	var findings []PIIFinding
	for _, p := range d.patterns {
		for _, m := range p.compiled.FindAllString(text, -1) {
			findings = append(findings, PIIFinding{PatternID: p.ID, Name: p.Name, Match: m, Confidence: p.Confidence})
		}
	}
	return findings
}

// Redact replaces every match of a maskable pattern with its mask. Masks
// contain no digits, so Redact(Redact(s)) == Redact(s).
func (d *PIIDetector) Redact(text string) string {
	for _, p := range d.patterns {
		if p.Mask == "" {
			continue
		}
		text = p.compiled.ReplaceAllLiteralString(text, p.Mask)
	}
	return text
}

// piiCheck rejects text containing personal data.
type piiCheck struct {
	detector *PIIDetector
	reason   Reason
	message  string
}

// NewPIICheck builds the personal-data gate. message may contain {type}.
func NewPIICheck(detector *PIIDetector, reason Reason, message string) Check {
	return &piiCheck{detector: detector, reason: reason, message: message}
}

func (c *piiCheck) Name() string { return CheckPersonalInfo }

func (c *piiCheck) Evaluate(_ context.Context, text string) Decision {
	finding, found := c.detector.Detect(text)
	if !found {
		return Allow()
	}
	d := Block(c.reason, render(c.message, "{type}", finding.Name))
	d.Category = finding.Name
	return d
}
