// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "strings"

// Route is the category a question was answered under.
type Route string

const (
	RouteGeneralCompany   Route = "general_company"
	RouteRoleSpecific     Route = "role_specific"
	RouteAdminPolicy      Route = "admin_policy"
	RouteDirectLLM        Route = "direct_llm"
	RouteGuardrailBlocked Route = "guardrail_blocked"
)

// Categories lists the routes a classifier may choose, in prompt order.
var Categories = []Route{RouteGeneralCompany, RouteRoleSpecific, RouteAdminPolicy, RouteDirectLLM}

// ParseCategory normalises a classifier label. ok is false for anything
// that is not one of Categories.
func ParseCategory(label string) (Route, bool) {
	r := Route(strings.ToLower(strings.TrimSpace(label)))
	for _, c := range Categories {
		if r == c {
			return r, true
		}
	}
	return RouteDirectLLM, false
}

// UsesRetrieval reports whether answers for r are grounded in documents.
func (r Route) UsesRetrieval() bool {
	switch r {
	case RouteGeneralCompany, RouteRoleSpecific, RouteAdminPolicy:
		return true
	}
	return false
}

// Collection is the vector store collection holding r's documents.
func (r Route) Collection() string {
	return string(r) + "_docs"
}

func (r Route) String() string { return string(r) }
