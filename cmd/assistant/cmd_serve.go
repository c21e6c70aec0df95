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
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianAssist/services/orchestrator"
)

// runServe starts the HTTP API and blocks until SIGINT or SIGTERM.
func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := orchestrator.New(ctx, config, nil, logger)
	if err != nil {
		return fmt.Errorf("failed to start the assistant: %w", err)
	}
	logger.Info("Starting assistant",
		"port", config.Port,
		"llm_backend", config.LLM.Backend,
		"retrieval_backend", config.Retrieval.Backend,
		"store_driver", config.Store.Driver,
		"auth_disabled", config.Auth.Disabled)

	runErr := svc.Run(ctx)
	closeErr := svc.Close()
	if err := errors.Join(runErr, closeErr); err != nil {
		return err
	}
	logger.Info("Assistant stopped")
	return nil
}
