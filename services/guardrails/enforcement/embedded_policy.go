// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package enforcement bakes the default guard policy into the binary so the
assistant always starts with a known rule set, even when no policy file is
deployed next to it.
*/
package enforcement

import (
	_ "embed"
)

// GuardPolicy holds the raw bytes of guard_policy.yaml.
//
// Usage:
//
//	policy, err := guardrails.LoadPolicy(enforcement.GuardPolicy)
//
//go:embed guard_policy.yaml
var GuardPolicy []byte
