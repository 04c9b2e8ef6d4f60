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
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opscore/orchestrator/pkg/model"
	"github.com/opscore/orchestrator/pkg/tool"
)

type stubTaskStore struct {
	lastConvID int64
	lastIndex  int
	lastStatus model.TaskStatus
}

func (s *stubTaskStore) SetTaskStatus(ctx context.Context, convID int64, index int, status model.TaskStatus) error {
	s.lastConvID, s.lastIndex, s.lastStatus = convID, index, status
	return nil
}

type stubTopicStore struct {
	lastTitle, lastDetails string
}

func (s *stubTopicStore) SetTopic(ctx context.Context, convID int64, title, details string) error {
	s.lastTitle, s.lastDetails = title, details
	return nil
}

func TestNewBashAgentWiresCoreTools(t *testing.T) {
	bundle := &model.ContextBundle{Task: "fix the deploy script", AutonomyLevel: model.AutonomyHigh}
	bash := NewBashTool(BashConfig{}, nil)
	tasks := &stubTaskStore{}
	topics := &stubTopicStore{}

	a := NewBashAgent(bundle, bash, NewUpdateTaskStatusTool(1, tasks), NewUpdateTopicTool(1, topics))

	require.Contains(t, a.Instructions, "fix the deploy script")
	require.Len(t, a.Tools, 3)

	names := make([]string, len(a.Tools))
	for i, tl := range a.Tools {
		names[i] = tl.Name()
	}
	require.Contains(t, names, "bash")
	require.Contains(t, names, "update_task_status")
	require.Contains(t, names, "update_topic")
}

func TestUpdateTaskStatusToolInvokesStore(t *testing.T) {
	tasks := &stubTaskStore{}
	tl := NewUpdateTaskStatusTool(7, tasks)

	result, err := tl.Invoke(context.Background(), map[string]any{"index": float64(2), "status": "completed"})
	require.NoError(t, err)
	require.NotEmpty(t, result.Content)
	require.Equal(t, int64(7), tasks.lastConvID)
	require.Equal(t, 2, tasks.lastIndex)
	require.Equal(t, model.TaskCompleted, tasks.lastStatus)
}

func TestUpdateTopicToolInvokesStore(t *testing.T) {
	topics := &stubTopicStore{}
	tl := NewUpdateTopicTool(7, topics)

	_, err := tl.Invoke(context.Background(), map[string]any{"title": "pricing", "details": "MAP enforcement"})
	require.NoError(t, err)
	require.Equal(t, "pricing", topics.lastTitle)
	require.Equal(t, "MAP enforcement", topics.lastDetails)
}

func TestNewSoftwareEngineeringAgentIncludesDocTools(t *testing.T) {
	bundle := &model.ContextBundle{Task: "add a new tool", AutonomyLevel: model.AutonomyMedium}
	bash := NewBashTool(BashConfig{}, nil)
	docTool := mockDocTool{}

	a := NewSoftwareEngineeringAgent(bundle, bash, NewUpdateTaskStatusTool(1, &stubTaskStore{}), NewUpdateTopicTool(1, &stubTopicStore{}), docTool)
	require.Len(t, a.Tools, 4)
}

type mockDocTool struct{}

func (mockDocTool) Name() string        { return "search_docs" }
func (mockDocTool) Description() string { return "Search internal documentation." }
func (mockDocTool) ReadOnly() bool      { return true }
func (mockDocTool) Schema() map[string]any { return map[string]any{"type": "object"} }
func (mockDocTool) Invoke(ctx context.Context, args map[string]any) (tool.Result, error) {
	return tool.Result{Content: "docs"}, nil
}
