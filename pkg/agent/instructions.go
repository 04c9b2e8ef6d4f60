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

package agent

import (
	"fmt"
	"strings"

	"github.com/opscore/orchestrator/pkg/model"
)

// autonomyPreamble returns the instruction preamble for level (spec
// §4.6): high acts immediately, medium confirms only on risky
// operations, low confirms every write.
func autonomyPreamble(level model.AutonomyLevel) string {
	switch level {
	case model.AutonomyHigh:
		return "Autonomy: high. Act immediately on the task without asking for confirmation."
	case model.AutonomyLow:
		return "Autonomy: low. Confirm with the user before any write operation, however small."
	default:
		return "Autonomy: medium. Confirm with the user before risky or destructive operations; act immediately otherwise."
	}
}

// BuildInstructions assembles the stable instruction template every
// Agent Factory agent uses, from a ContextBundle plus a role-specific
// preamble (spec §4.6: "assembled from the ContextBundle via a stable
// template").
func BuildInstructions(role string, bundle *model.ContextBundle) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s.\n\n", role)
	b.WriteString(autonomyPreamble(bundle.AutonomyLevel))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Task: %s\n\n", bundle.Task)

	if len(bundle.RelevantRules) > 0 {
		b.WriteString("Business rules:\n")
		for _, r := range bundle.RelevantRules {
			b.WriteString("- ")
			b.WriteString(r)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(bundle.BusinessLogic.Patterns) > 0 {
		fmt.Fprintf(&b, "Detected patterns: %s\n\n", strings.Join(bundle.BusinessLogic.Patterns, ", "))
	}

	if len(bundle.RelevantMemories) > 0 {
		b.WriteString("Relevant memories:\n")
		for _, m := range bundle.RelevantMemories {
			b.WriteString("- ")
			b.WriteString(m.Content)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(bundle.PromptFragments) > 0 {
		b.WriteString("Guidance:\n")
		for _, f := range bundle.PromptFragments {
			b.WriteString("- ")
			b.WriteString(f.Content)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(bundle.CurrentTasks) > 0 {
		b.WriteString("Current task plan:\n")
		for _, task := range bundle.CurrentTasks {
			fmt.Fprintf(&b, "- [%s] %d: %s\n", task.Status, task.Index, task.Description)
		}
		b.WriteString("\n")
	}

	if bundle.AdditionalContext != "" {
		b.WriteString("Additional context:\n")
		b.WriteString(bundle.AdditionalContext)
		b.WriteString("\n\n")
	}

	for _, marker := range bundle.TruncationMarkers {
		b.WriteString(marker)
		b.WriteString("\n")
	}

	return b.String()
}
