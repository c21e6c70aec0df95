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
	"bytes"
	"strings"
	"testing"

	"github.com/AleutianAI/AleutianAssist/services/guardrails/enforcement"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mutatePolicy(t *testing.T, old, replacement string) []byte {
	t.Helper()
	require.True(t, bytes.Contains(enforcement.GuardPolicy, []byte(old)), "embedded policy must contain %q", old)
	return bytes.Replace(enforcement.GuardPolicy, []byte(old), []byte(replacement), 1)
}

func TestDefaultPolicy_Loads(t *testing.T) {
	p, err := DefaultPolicy()
	require.NoError(t, err)

	assert.Equal(t, []string{CheckPromptInjection, CheckQuestionFormat}, p.PreChecks)
	assert.Equal(t, []string{CheckLength, CheckRateLimit, CheckPersonalInfo, CheckHarmfulContent, CheckBlockedTopic}, p.InputChecks)
	assert.Equal(t, 3, p.Limits.MinInputLength)
	assert.Equal(t, 2000, p.Limits.MaxInputLength)
	assert.Equal(t, 10, p.Limits.MinResponseLength)
	assert.InDelta(t, 0.3, p.Format.MaxSpecialRatio, 1e-9)
	assert.Equal(t, 6, p.Format.MaxRepeatRun)
	assert.True(t, strings.HasPrefix(p.Fingerprint(), "sha256:"))
}

func TestDefaultPolicy_PIISortedByPriority(t *testing.T) {
	p, err := DefaultPolicy()
	require.NoError(t, err)

	ids := make([]string, len(p.PersonalInfo))
	for i, pattern := range p.PersonalInfo {
		ids[i] = pattern.ID
		assert.NotNil(t, pattern.compiled, "pattern %s should be compiled", pattern.ID)
	}
	assert.Equal(t, []string{"ssn", "credit_card", "phone", "email"}, ids)
}

func TestDefaultPolicy_Categories(t *testing.T) {
	p, err := DefaultPolicy()
	require.NoError(t, err)

	var harmful, topics []string
	for _, c := range p.HarmfulContent {
		harmful = append(harmful, c.Name)
	}
	for _, c := range p.BlockedTopics {
		topics = append(topics, c.Name)
	}
	assert.Equal(t, []string{"self-harm", "illegal activity", "violence"}, harmful)
	assert.Equal(t, []string{"medical advice", "legal advice", "financial advice", "hacking"}, topics)
	assert.Len(t, p.Injection, 6)
}

func TestLoadPolicy_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    func(t *testing.T) []byte
		wantErr string
	}{
		{
			name:    "malformed yaml",
			data:    func(t *testing.T) []byte { return []byte("version: [unterminated") },
			wantErr: "unmarshal",
		},
		{
			name:    "unknown check",
			data:    func(t *testing.T) []byte { return mutatePolicy(t, "  - blocked_topic\n", "  - blocked_topix\n") },
			wantErr: "unknown check",
		},
		{
			name:    "invalid confidence",
			data:    func(t *testing.T) []byte { return mutatePolicy(t, "confidence: medium", "confidence: extreme") },
			wantErr: "confidence",
		},
		{
			name:    "bad regex",
			data:    func(t *testing.T) []byte { return mutatePolicy(t, `'\b\d{16}\b'`, `'(\d{16}'`) },
			wantErr: "compile",
		},
		{
			name:    "min above max",
			data:    func(t *testing.T) []byte { return mutatePolicy(t, "min_input_length: 3", "min_input_length: 3000") },
			wantErr: "exceeds",
		},
		{
			name:    "ratio out of range",
			data:    func(t *testing.T) []byte { return mutatePolicy(t, "max_special_ratio: 0.3", "max_special_ratio: 1.5") },
			wantErr: "max_special_ratio",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadPolicy(tt.data(t))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadPolicyFile_Missing(t *testing.T) {
	_, err := LoadPolicyFile("/nonexistent/guard_policy.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read guard policy")
}

func TestRender(t *testing.T) {
	assert.Equal(t, "no placeholders", render("no placeholders"))
	assert.Equal(t, "share Email Address", render("share {type}", "{type}", "Email Address"))
}
