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
	"encoding/json"
	"fmt"
	"io"
)

// Exit codes shared by every command.
const (
	CLIExitSuccess  = 0 // Operation completed successfully
	CLIExitFindings = 1 // Question blocked, policy violation or accuracy below threshold
	CLIExitError    = 2 // Operation failed
)

// ErrorOutput is the JSON shape of a command failure.
type ErrorOutput struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// OutputJSON writes v as JSON followed by a newline.
func OutputJSON(w io.Writer, v any, compact bool) error {
	enc := json.NewEncoder(w)
	if !compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

// OutputError reports a failure as JSON or as a plain message.
func OutputError(w io.Writer, asJSON bool, message string, err error) {
	if asJSON {
		out := ErrorOutput{Error: message}
		if err != nil {
			out.Details = err.Error()
		}
		_ = OutputJSON(w, out, false)
		return
	}
	if err != nil {
		fmt.Fprintf(w, "Error: %s: %v\n", message, err)
		return
	}
	fmt.Fprintf(w, "Error: %s\n", message)
}
