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
	"github.com/opscore/orchestrator/pkg/model"
	"github.com/opscore/orchestrator/pkg/tool"
)

// BashAgent performs file/git/system tasks and runs legacy non-tool
// scripts via the bash capability (spec §4.6).
type BashAgent struct {
	Instructions string
	Tools        []tool.Tool
}

// NewBashAgent builds a BashAgent for bundle, wiring the bash
// capability plus task-status and topic-update tools.
func NewBashAgent(bundle *model.ContextBundle, bash *BashTool, taskTool *UpdateTaskStatusTool, topicTool *UpdateTopicTool) *BashAgent {
	return &BashAgent{
		Instructions: BuildInstructions("a bash agent that performs file, git, and system tasks", bundle),
		Tools:        []tool.Tool{bash, taskTool, topicTool},
	}
}

// SoftwareEngineeringAgent augments BashAgent with documentation
// introspection tools, used for tool creation and refactoring work
// (spec §4.6).
type SoftwareEngineeringAgent struct {
	Instructions string
	Tools        []tool.Tool
}

// NewSoftwareEngineeringAgent builds a SoftwareEngineeringAgent,
// extending the bash agent's tool set with docTools (e.g. a
// documentation-search or API-reference tool).
func NewSoftwareEngineeringAgent(bundle *model.ContextBundle, bash *BashTool, taskTool *UpdateTaskStatusTool, topicTool *UpdateTopicTool, docTools ...tool.Tool) *SoftwareEngineeringAgent {
	tools := []tool.Tool{bash, taskTool, topicTool}
	tools = append(tools, docTools...)
	return &SoftwareEngineeringAgent{
		Instructions: BuildInstructions("a software engineering agent that creates and refactors tools", bundle),
		Tools:        tools,
	}
}
