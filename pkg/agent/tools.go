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
	"fmt"

	"github.com/opscore/orchestrator/pkg/model"
	"github.com/opscore/orchestrator/pkg/tool"
)

// TaskStore is the narrow slice of the conversation/task manager (C9)
// the BashAgent's status-update tool needs.
type TaskStore interface {
	SetTaskStatus(ctx context.Context, convID int64, index int, status model.TaskStatus) error
}

// TopicStore is the narrow slice of C9 the topic-update tool needs.
type TopicStore interface {
	SetTopic(ctx context.Context, convID int64, title, details string) error
}

// UpdateTaskStatusTool lets an agent advance a task's lifecycle state
// (spec §4.6: "tools for updating task status").
type UpdateTaskStatusTool struct {
	convID int64
	store  TaskStore
}

// NewUpdateTaskStatusTool builds the tool, scoped to one conversation.
func NewUpdateTaskStatusTool(convID int64, store TaskStore) *UpdateTaskStatusTool {
	return &UpdateTaskStatusTool{convID: convID, store: store}
}

func (t *UpdateTaskStatusTool) Name() string        { return "update_task_status" }
func (t *UpdateTaskStatusTool) Description() string { return "Update the status of a task in the current plan." }
func (t *UpdateTaskStatusTool) ReadOnly() bool       { return false }

func (t *UpdateTaskStatusTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"index":  map[string]any{"type": "integer", "description": "Zero-based task index."},
			"status": map[string]any{"type": "string", "enum": []any{"pending", "in_progress", "completed"}},
		},
		"required": []any{"index", "status"},
	}
}

func (t *UpdateTaskStatusTool) Invoke(ctx context.Context, args map[string]any) (tool.Result, error) {
	idx, ok := args["index"].(float64)
	if !ok {
		return tool.Result{Error: "index is required"}, fmt.Errorf("index is required")
	}
	status, _ := args["status"].(string)
	if status == "" {
		return tool.Result{Error: "status is required"}, fmt.Errorf("status is required")
	}
	if err := t.store.SetTaskStatus(ctx, t.convID, int(idx), model.TaskStatus(status)); err != nil {
		return tool.Result{Error: err.Error()}, err
	}
	return tool.Result{Content: fmt.Sprintf("task %d set to %s", int(idx), status)}, nil
}

// UpdateTopicTool lets an agent record the conversation's current
// topic (spec §4.6: "tools for updating ... conversation topic").
type UpdateTopicTool struct {
	convID int64
	store  TopicStore
}

// NewUpdateTopicTool builds the tool, scoped to one conversation.
func NewUpdateTopicTool(convID int64, store TopicStore) *UpdateTopicTool {
	return &UpdateTopicTool{convID: convID, store: store}
}

func (t *UpdateTopicTool) Name() string        { return "update_topic" }
func (t *UpdateTopicTool) Description() string { return "Record the conversation's current topic." }
func (t *UpdateTopicTool) ReadOnly() bool       { return false }

func (t *UpdateTopicTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title":   map[string]any{"type": "string"},
			"details": map[string]any{"type": "string"},
		},
		"required": []any{"title"},
	}
}

func (t *UpdateTopicTool) Invoke(ctx context.Context, args map[string]any) (tool.Result, error) {
	title, _ := args["title"].(string)
	if title == "" {
		return tool.Result{Error: "title is required"}, fmt.Errorf("title is required")
	}
	details, _ := args["details"].(string)
	if err := t.store.SetTopic(ctx, t.convID, title, details); err != nil {
		return tool.Result{Error: err.Error()}, err
	}
	return tool.Result{Content: "topic updated"}, nil
}
