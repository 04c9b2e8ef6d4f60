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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opscore/orchestrator/pkg/model"
)

func TestBuildInstructionsIncludesAutonomyPreamble(t *testing.T) {
	bundle := &model.ContextBundle{
		Task:          "update pricing for SKU-1",
		AutonomyLevel: model.AutonomyHigh,
	}

	instructions := BuildInstructions("a bash agent", bundle)
	require.Contains(t, instructions, "Autonomy: high")
	require.Contains(t, instructions, "update pricing for SKU-1")
}

func TestBuildInstructionsLowAutonomyConfirmsEveryWrite(t *testing.T) {
	bundle := &model.ContextBundle{Task: "t", AutonomyLevel: model.AutonomyLow}
	instructions := BuildInstructions("a bash agent", bundle)
	require.Contains(t, instructions, "Confirm with the user before any write operation")
}

func TestBuildInstructionsIncludesRulesAndPatterns(t *testing.T) {
	bundle := &model.ContextBundle{
		Task:          "t",
		AutonomyLevel: model.AutonomyMedium,
		RelevantRules: []string{"CRITICAL: never discount below MAP"},
		BusinessLogic: model.BusinessLogic{Patterns: []string{"map_pricing"}},
	}
	instructions := BuildInstructions("a bash agent", bundle)
	require.Contains(t, instructions, "never discount below MAP")
	require.Contains(t, instructions, "map_pricing")
}
