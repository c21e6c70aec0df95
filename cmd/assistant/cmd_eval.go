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

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianAssist/pkg/ux"
	"github.com/AleutianAI/AleutianAssist/services/llm"
	"github.com/AleutianAI/AleutianAssist/services/orchestrator"
	"github.com/AleutianAI/AleutianAssist/services/orchestrator/assistant"
)

var (
	evalJSON        bool
	evalMinAccuracy float64
)

func runEval(cmd *cobra.Command, args []string) {
	out := cmd.OutOrStdout()
	router, err := newCLIRouter(config)
	if err != nil {
		OutputError(out, evalJSON, "Failed to build the router", err)
		exit(CLIExitError)
	}
	exit(evaluateFile(cmd.Context(), out, router, args[0], evalJSON, evalMinAccuracy))
}

// evaluateFile runs a routing evaluation and prints one line per row.
//
// # Exit Codes
//
//   - 0: Accuracy at or above minAccuracy
//   - 1: Accuracy below minAccuracy
//   - 2: The file could not be read
func evaluateFile(ctx context.Context, w io.Writer, router *assistant.Router, path string, asJSON bool, minAccuracy float64) int {
	f, err := os.Open(path)
	if err != nil {
		OutputError(w, asJSON, "Failed to open evaluation file", err)
		return CLIExitError
	}
	defer f.Close()

	report, err := assistant.EvaluateRouting(ctx, router, f)
	if err != nil {
		OutputError(w, asJSON, "Evaluation failed", err)
		return CLIExitError
	}

	if asJSON {
		if err := OutputJSON(w, report, false); err != nil {
			return CLIExitError
		}
	} else {
		for _, c := range report.Cases {
			if c.Correct {
				fmt.Fprintln(w, ux.StatusLine(ux.IconSuccess, string(c.Got), c.Question))
				continue
			}
			fmt.Fprintln(w, ux.StatusLine(ux.IconError, string(c.Got), fmt.Sprintf("%s (expected %s)", c.Question, c.Expected)))
		}
		fmt.Fprintf(w, "%s %.1f%% (%d/%d)\n", ux.Heading("Accuracy:"), report.Accuracy, report.Correct, report.Total)
	}

	if report.Accuracy < minAccuracy {
		return CLIExitFindings
	}
	return CLIExitSuccess
}

// newCLIRouter builds a router for the configured LLM backend.
func newCLIRouter(cfg orchestrator.Config) (*assistant.Router, error) {
	client, err := llm.New(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	return assistant.NewRouter(client, assistant.Options{
		Logger:  logger,
		Timeout: cfg.Limits.BackendTimeout,
	}), nil
}
