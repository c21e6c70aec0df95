// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"fmt"
	"strings"
)

// Answer is the displayable part of a pipeline result.
type Answer struct {
	Route   string
	Text    string
	Sources []string
	Err     string
}

// RenderAnswer formats an answer with its route and sources.
func RenderAnswer(a Answer) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", style(Styles.Label, "Route:"), a.Route)
	if Plain() {
		fmt.Fprintf(&b, "Answer: %s\n", a.Text)
	} else {
		b.WriteString(Styles.AnswerBox.Render(a.Text))
		b.WriteByte('\n')
	}
	if len(a.Sources) > 0 {
		fmt.Fprintf(&b, "%s %s\n", style(Styles.Label, "Sources:"), strings.Join(a.Sources, ", "))
	}
	if a.Err != "" {
		fmt.Fprintf(&b, "%s %s\n", IconError.Render(), style(Styles.Error, a.Err))
	}
	return b.String()
}

// RenderBlocked formats a refusal. The message is shown as the user would
// see it.
func RenderBlocked(reason, message string) string {
	header := fmt.Sprintf("%s Blocked (%s)", IconWarning.Render(), reason)
	if Plain() {
		return header + ": " + message + "\n"
	}
	return header + "\n" + Styles.BlockedBox.Render(message) + "\n"
}

// StatusLine renders "<icon> <label> <detail>".
func StatusLine(icon Icon, label, detail string) string {
	line := icon.Render() + " " + style(Styles.Title, label)
	if detail != "" {
		line += " " + detail
	}
	return line
}

// Heading renders a section title.
func Heading(text string) string {
	return style(Styles.Title, text)
}
