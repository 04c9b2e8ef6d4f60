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

package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/opscore/orchestrator/pkg/agent"
	"github.com/opscore/orchestrator/pkg/llm"
	"github.com/opscore/orchestrator/pkg/model"
	"github.com/opscore/orchestrator/pkg/sse"
	"github.com/opscore/orchestrator/pkg/tool"
)

// maxSubAgentTurns bounds a single Agent Factory sub-agent's own tool
// call loop, independent of the parent Run's maxTurns.
const maxSubAgentTurns = 25

// subAgentSpec is one sub-agent instantiation: its stable instruction
// template (spec §4.6, built once from the ContextBundle) plus the
// tools it was wired with.
type subAgentSpec struct {
	name         string
	instructions string
	tools        []tool.Tool
}

func (s *Supervisor) dispatchBashAgent(ctx context.Context, convID int64, bundle *model.ContextBundle, args map[string]any) string {
	task, _ := args["task"].(string)
	if task == "" {
		return "bash agent error: task is required"
	}
	bash := agent.NewBashTool(s.bashConfig, s.bashLookupEnv)
	taskTool := agent.NewUpdateTaskStatusTool(convID, s.conversations)
	topicTool := agent.NewUpdateTopicTool(convID, s.conversations)
	a := agent.NewBashAgent(bundle, bash, taskTool, topicTool)

	out, err := s.runSubAgent(ctx, convID, subAgentSpec{name: "bash_agent", instructions: a.Instructions, tools: a.Tools}, task)
	if err != nil {
		return fmt.Sprintf("bash agent error: %v", err)
	}
	return out
}

func (s *Supervisor) dispatchSoftwareEngineeringAgent(ctx context.Context, convID int64, bundle *model.ContextBundle, args map[string]any) string {
	task, _ := args["task"].(string)
	if task == "" {
		return "software engineering agent error: task is required"
	}
	bash := agent.NewBashTool(s.bashConfig, s.bashLookupEnv)
	taskTool := agent.NewUpdateTaskStatusTool(convID, s.conversations)
	topicTool := agent.NewUpdateTopicTool(convID, s.conversations)
	a := agent.NewSoftwareEngineeringAgent(bundle, bash, taskTool, topicTool, s.docTools...)

	out, err := s.runSubAgent(ctx, convID, subAgentSpec{name: "software_engineering_agent", instructions: a.Instructions, tools: a.Tools}, task)
	if err != nil {
		return fmt.Sprintf("software engineering agent error: %v", err)
	}
	return out
}

// dispatchParallelExecutor spawns one sub-agent per item and runs them
// through agent.ParallelExecutorAgent's concurrency/throttle/retry
// policy (spec §4.6). Results are collected into the same
// stable-ordered array the policy already returns (spec §4.9
// "Ordering guarantees").
func (s *Supervisor) dispatchParallelExecutor(ctx context.Context, convID int64, bundle *model.ContextBundle, args map[string]any) string {
	tasks := stringItems(args["tasks"])
	if !agent.ValidateBatchSize(len(tasks)) {
		return fmt.Sprintf("parallel executor agent rejected: batch of %d items is outside the light-bulk range of 10-50", len(tasks))
	}

	policy := agent.ParallelPolicy{}
	if c, ok := args["concurrency"].(float64); ok {
		policy.Concurrency = int(c)
	}
	if dr, ok := args["dry_run"].(bool); ok {
		policy.DryRun = dr
	}
	exec := agent.NewParallelExecutorAgent(policy)

	bash := agent.NewBashTool(s.bashConfig, s.bashLookupEnv)
	taskTool := agent.NewUpdateTaskStatusTool(convID, s.conversations)
	topicTool := agent.NewUpdateTopicTool(convID, s.conversations)
	spec := subAgentSpec{
		name:         "parallel_executor_agent",
		instructions: agent.BuildInstructions("a parallel executor agent that processes independent batch items concurrently", bundle),
		tools:        []tool.Tool{bash, taskTool, topicTool},
	}

	var mu sync.Mutex
	outputs := make(map[string]string, len(tasks))
	results := exec.Run(ctx, tasks, func(ctx context.Context, item string) error {
		out, err := s.runSubAgent(ctx, convID, spec, item)
		mu.Lock()
		outputs[item] = out
		mu.Unlock()
		return err
	})

	var b strings.Builder
	for _, r := range results {
		status := "ok"
		if r.Err != nil {
			status = r.Err.Error()
		}
		fmt.Fprintf(&b, "- %s [%s, attempt %d]: %s\n", r.Item, status, r.Attempt, outputs[r.Item])
	}
	return b.String()
}

func stringItems(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// runSubAgent drives a bounded tool-call loop for one Agent Factory
// sub-agent instance, returning its final text output once the model
// stops requesting tools (spec §4.9 step 5: "the sub-agent's final
// output is returned to the parent").
func (s *Supervisor) runSubAgent(ctx context.Context, convID int64, spec subAgentSpec, task string) (string, error) {
	registry := tool.New(nil, nil)
	for _, t := range spec.tools {
		registry.Register(t)
	}
	defs := toToolDefinitions(registry.List())

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: spec.instructions},
		{Role: llm.RoleUser, Content: task},
	}

	for turn := 0; turn < maxSubAgentTurns; turn++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		text, calls, err := s.streamTurn(ctx, convID, messages, defs)
		if err != nil {
			return text, err
		}
		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: text})

		if len(calls) == 0 {
			return text, nil
		}

		for _, tc := range calls {
			s.bus.Emit(convID, sse.EventAgentToolCall, map[string]any{"agent": spec.name, "tool": tc.Name, "args": tc.Arguments})

			started := time.Now()
			result, err := registry.Invoke(ctx, convID, tc.Name, tc.Arguments)
			s.metrics.RecordToolCall(tc.Name, time.Since(started))

			content := result.Content
			switch {
			case err != nil:
				s.metrics.RecordToolError(tc.Name)
				content = fmt.Sprintf("error: %v", err)
			case result.Error != "":
				s.metrics.RecordToolError(tc.Name)
				content = result.Error
			}
			messages = append(messages, llm.Message{Role: llm.RoleTool, Content: content, ToolCallID: tc.ID, Name: tc.Name})
		}
	}

	return "", fmt.Errorf("sub-agent %s exceeded max turns (%d)", spec.name, maxSubAgentTurns)
}
