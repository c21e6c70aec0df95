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
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianAssist/pkg/ux"
	"github.com/AleutianAI/AleutianAssist/services/guardrails"
	"github.com/AleutianAI/AleutianAssist/services/guardrails/enforcement"
	"github.com/AleutianAI/AleutianAssist/services/orchestrator"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	policyVerifyJSON bool
	policyDumpJSON   bool
	policyTestJSON   bool
	policyTestRedact bool
)

// =============================================================================
// RESULT TYPES
// =============================================================================

// PolicyVerifyResult is the JSON form of "policy verify".
type PolicyVerifyResult struct {
	Valid       bool     `json:"valid"`
	Source      string   `json:"source"`
	Version     string   `json:"version"`
	Fingerprint string   `json:"fingerprint"`
	PreChecks   []string `json:"pre_checks"`
	InputChecks []string `json:"input_checks"`
}

// PolicyTestMatch is one personal-data finding in "policy test".
type PolicyTestMatch struct {
	Rule       string `json:"rule"`
	Name       string `json:"name"`
	Match      string `json:"match"`
	Confidence string `json:"confidence"`
}

// PolicyTestResult is the JSON form of "policy test".
type PolicyTestResult struct {
	Input    string            `json:"input"`
	Allowed  bool              `json:"allowed"`
	Reason   string            `json:"reason,omitempty"`
	Check    string            `json:"check,omitempty"`
	Category string            `json:"category,omitempty"`
	Message  string            `json:"message,omitempty"`
	Matches  []PolicyTestMatch `json:"matches"`
}

func policySource(cfg orchestrator.PolicyConfig) string {
	if cfg.Path == "" {
		return "embedded"
	}
	return cfg.Path
}

// =============================================================================
// POLICY VERIFY COMMAND
// =============================================================================

func verifyPolicy(cmd *cobra.Command, args []string) {
	exit(runPolicyVerify(cmd.OutOrStdout(), config.Policy, policyVerifyJSON))
}

// runPolicyVerify parses and validates the active policy and prints its
// SHA-256 fingerprint, so operators can confirm which rule set a
// deployment enforces.
//
// # Exit Codes
//
//   - 0: Policy is valid
//   - 2: Policy could not be read or failed validation
func runPolicyVerify(w io.Writer, cfg orchestrator.PolicyConfig, asJSON bool) int {
	policy, err := cfg.Load()
	if err != nil {
		OutputError(w, asJSON, "Guard policy is invalid", err)
		return CLIExitError
	}

	if asJSON {
		result := PolicyVerifyResult{
			Valid:       true,
			Source:      policySource(cfg),
			Version:     policy.Version,
			Fingerprint: policy.Fingerprint(),
			PreChecks:   policy.PreChecks,
			InputChecks: policy.InputChecks,
		}
		if err := OutputJSON(w, result, false); err != nil {
			return CLIExitError
		}
		return CLIExitSuccess
	}

	fmt.Fprintln(w, "--- Guard Policy Verification ---")
	fmt.Fprintf(w, "Source:       %s\n", policySource(cfg))
	fmt.Fprintf(w, "Version:      %s\n", policy.Version)
	fmt.Fprintf(w, "Pre checks:   %s\n", strings.Join(policy.PreChecks, ", "))
	fmt.Fprintf(w, "Input checks: %s\n", strings.Join(policy.InputChecks, ", "))
	fmt.Fprintf(w, "Fingerprint:  %s\n", policy.Fingerprint())
	fmt.Fprintln(w, "---------------------------------")
	return CLIExitSuccess
}

// =============================================================================
// POLICY DUMP COMMAND
// =============================================================================

func dumpPolicy(cmd *cobra.Command, args []string) {
	exit(runPolicyDump(cmd.OutOrStdout(), config.Policy, policyDumpJSON))
}

// runPolicyDump prints the policy document as deployed. With asJSON the
// YAML is wrapped in a JSON envelope.
func runPolicyDump(w io.Writer, cfg orchestrator.PolicyConfig, asJSON bool) int {
	data := enforcement.GuardPolicy
	if cfg.Path != "" {
		var err error
		if data, err = os.ReadFile(cfg.Path); err != nil {
			OutputError(w, asJSON, "Failed to read guard policy", err)
			return CLIExitError
		}
	}

	if asJSON {
		result := struct {
			APIVersion string `json:"api_version"`
			Source     string `json:"source"`
			Format     string `json:"format"`
			Content    string `json:"content"`
		}{
			APIVersion: "1.0",
			Source:     policySource(cfg),
			Format:     "yaml",
			Content:    string(data),
		}
		if err := OutputJSON(w, result, false); err != nil {
			return CLIExitError
		}
		return CLIExitSuccess
	}

	fmt.Fprint(w, string(data))
	return CLIExitSuccess
}

// =============================================================================
// POLICY TEST COMMAND
// =============================================================================

func testPolicyString(cmd *cobra.Command, args []string) {
	exit(runPolicyTest(cmd.Context(), cmd.OutOrStdout(), config.Policy, args[0], policyTestJSON, policyTestRedact))
}

// runPolicyTest runs text through the same gates a question meets before
// routing. Rate limiting is skipped because no identity is charged.
//
// # Exit Codes
//
//   - 0: Text would be accepted
//   - 1: Text would be blocked
//   - 2: Error
func runPolicyTest(ctx context.Context, w io.Writer, cfg orchestrator.PolicyConfig, text string, asJSON, redact bool) int {
	policy, err := cfg.Load()
	if err != nil {
		OutputError(w, asJSON, "Failed to load guard policy", err)
		return CLIExitError
	}
	guard, err := guardrails.NewPolicyGuard(policy, nil)
	if err != nil {
		OutputError(w, asJSON, "Failed to compile guard policy", err)
		return CLIExitError
	}

	clean := guardrails.Sanitize(text)
	d := guard.ScreenQuestion(ctx, clean)
	if d.Allowed {
		d = guard.ValidateInput(ctx, clean, "")
	}

	findings := guard.ScanPersonalInfo(clean)
	matches := make([]PolicyTestMatch, 0, len(findings))
	for _, f := range findings {
		match := f.Match
		if redact {
			match = "[REDACTED]"
		}
		matches = append(matches, PolicyTestMatch{
			Rule:       f.PatternID,
			Name:       f.Name,
			Match:      match,
			Confidence: string(f.Confidence),
		})
	}
	input := clean
	if redact {
		input = guard.SanitizeOutput(clean)
	}

	if asJSON {
		result := PolicyTestResult{
			Input:    input,
			Allowed:  d.Allowed,
			Reason:   string(d.Reason),
			Check:    d.Check,
			Category: d.Category,
			Message:  d.Message,
			Matches:  matches,
		}
		if err := OutputJSON(w, result, false); err != nil {
			return CLIExitError
		}
	} else {
		if d.Allowed {
			fmt.Fprintln(w, ux.StatusLine(ux.IconSuccess, "Allowed", "the question would be routed"))
		} else {
			fmt.Fprintln(w, ux.StatusLine(ux.IconWarning, "Blocked by "+d.Check, fmt.Sprintf("(%s): %s", d.Reason, d.Message)))
		}
		for _, m := range matches {
			fmt.Fprintf(w, "  %s [%s] %s: %s\n", ux.IconBullet.Render(), m.Confidence, m.Name, m.Match)
		}
	}

	if d.Allowed {
		return CLIExitSuccess
	}
	return CLIExitFindings
}
