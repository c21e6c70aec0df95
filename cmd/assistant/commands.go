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
	"github.com/spf13/cobra"
)

var (
	rootCmd = &cobra.Command{
		Use:   "assistant",
		Short: "A guarded question-answering assistant for employees",
		Long: `assistant answers employee questions from the company knowledge base.
Every question passes the guard policy before any model is consulted and
every answer is screened again before it is returned.`,
		SilenceUsage: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	askCmd = &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question through the full pipeline",
		Args:  cobra.ExactArgs(1),
		Run:   runAsk,
	}

	policyCmd = &cobra.Command{
		Use:   "policy",
		Short: "Inspect and exercise the guard policy",
	}

	policyVerifyCmd = &cobra.Command{
		Use:   "verify",
		Short: "Validate the active guard policy and print its fingerprint",
		Args:  cobra.NoArgs,
		Run:   verifyPolicy,
	}

	policyDumpCmd = &cobra.Command{
		Use:   "dump",
		Short: "Print the active guard policy document",
		Args:  cobra.NoArgs,
		Run:   dumpPolicy,
	}

	policyTestCmd = &cobra.Command{
		Use:   "test <text>",
		Short: "Run the input gates against a piece of text",
		Args:  cobra.ExactArgs(1),
		Run:   testPolicyString,
	}

	evalCmd = &cobra.Command{
		Use:   "eval <csv>",
		Short: "Measure routing accuracy against labelled questions",
		Long: `eval classifies every row of a CSV file with "question" and
"expected_route" columns and reports how many were routed correctly.`,
		Args: cobra.ExactArgs(1),
		Run:  runEval,
	}
)

func init() {
	askCmd.Flags().StringVar(&askIdentity, "identity", "cli", "Identity charged against the rate limit")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "Print the full result as JSON")

	policyVerifyCmd.Flags().BoolVar(&policyVerifyJSON, "json", false, "Output as JSON")
	policyDumpCmd.Flags().BoolVar(&policyDumpJSON, "json", false, "Output as JSON")
	policyTestCmd.Flags().BoolVar(&policyTestJSON, "json", false, "Output as JSON")
	policyTestCmd.Flags().BoolVar(&policyTestRedact, "redact", false, "Hide matched personal data in the output")

	evalCmd.Flags().BoolVar(&evalJSON, "json", false, "Output the report as JSON")
	evalCmd.Flags().Float64Var(&evalMinAccuracy, "min-accuracy", 0, "Exit 1 when accuracy falls below this percentage")

	policyCmd.AddCommand(policyVerifyCmd, policyDumpCmd, policyTestCmd)
	rootCmd.AddCommand(serveCmd, askCmd, policyCmd, evalCmd)
}
