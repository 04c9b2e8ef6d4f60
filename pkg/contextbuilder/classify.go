// Copyright 2025 The OpsCore Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package contextbuilder implements the Tiered Context Builder (C5,
// spec §4.5): it assembles a ContextBundle for a sub-agent in one of
// two modes, core or full, deciding based on explicit bulk signals in
// the task text.
package contextbuilder

import (
	"regexp"
	"unicode"
)

const fullSliceInputThreshold = 5 * 1024 // 5 KiB

var (
	bulkKeywordRe = regexp.MustCompile(`(?i)\b(bulk|batch|all\s+products)\b`)
	exportHintRe  = regexp.MustCompile(`(?i)\b(json\s+array|csv|export)\b`)
	bigCountRe    = regexp.MustCompile(`\b\d{3,}\b`)
	skuTokenRe    = regexp.MustCompile(`\b[A-Za-z0-9]*[A-Za-z][A-Za-z0-9]*-[A-Za-z0-9-]+\b`)
)

// ShouldBuildFull reports whether task text carries one of the
// documented explicit bulk signals that force buildFull over
// buildCore (spec §4.5).
func ShouldBuildFull(task string, forceFull bool) bool {
	if forceFull {
		return true
	}
	if bulkKeywordRe.MatchString(task) {
		return true
	}
	if exportHintRe.MatchString(task) {
		return true
	}
	if hasCountAtLeast(task, 100) {
		return true
	}
	if len([]byte(task)) > fullSliceInputThreshold {
		return true
	}
	if len(skuTokenRe.FindAllString(task, -1)) >= 6 {
		return true
	}
	return false
}

// hasCountAtLeast reports whether task contains a standalone integer
// ≥ min. bigCountRe already filters to ≥3-digit runs, which covers
// every min we're called with (100) without needing full int parsing
// of arbitrarily large numbers.
func hasCountAtLeast(task string, min int) bool {
	for _, m := range bigCountRe.FindAllString(task, -1) {
		n := 0
		for _, r := range m {
			if !unicode.IsDigit(r) {
				continue
			}
			n = n*10 + int(r-'0')
		}
		if n >= min {
			return true
		}
	}
	return false
}
