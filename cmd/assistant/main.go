// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command assistant runs and operates the guarded employee assistant.
//
//	assistant serve                      # HTTP API on :12210
//	assistant ask "What are our values?" # one question against local backends
//	assistant policy verify              # fingerprint the active guard policy
//	assistant eval routes.csv            # routing accuracy against labelled questions
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianAssist/pkg/logging"
	"github.com/AleutianAI/AleutianAssist/pkg/ux"
	"github.com/AleutianAI/AleutianAssist/services/orchestrator"
)

var (
	configPath string
	logLevel   string
	logFormat  string
	plainOut   bool

	config    orchestrator.Config
	appLogger *logging.Logger
	logger    *slog.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		exit(CLIExitError)
	}
	exit(CLIExitSuccess)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", getEnvString("ASSISTANT_CONFIG", defaultConfigPath),
		"Path to the service configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", getEnvString("LOG_LEVEL", "info"),
		"Minimum log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", getEnvString("LOG_FORMAT", ""),
		"Console log format (text, json). Empty picks text on a terminal")
	rootCmd.PersistentFlags().BoolVar(&plainOut, "plain", getEnvBool("ASSISTANT_PLAIN", false),
		"Undecorated text output for scripts")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		ux.SetPlain(plainOut)
		level, err := logging.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		appLogger = logging.New(logging.Config{
			Level:   level,
			Format:  logging.Format(logFormat),
			Service: "assistant",
			LogDir:  getEnvString("LOG_DIR", ""),
		})
		logger = appLogger.Slog()
		slog.SetDefault(logger)

		loaded, err := loadConfig(configPath, cmd.Flags().Changed("config"))
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		config = loaded
		return nil
	}
}

// exit flushes the log file before terminating with code.
func exit(code int) {
	if appLogger != nil {
		_ = appLogger.Close()
	}
	os.Exit(code)
}
