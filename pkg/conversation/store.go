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

// Package conversation implements the Conversation/Task Manager (C9,
// spec §4.10): the thread log, autonomy recommendation from operator
// feedback signals, task CRUD, and the task_summary SSE projection.
// Durable storage is a port (Store); pkg/store supplies SQL-backed
// adapters.
package conversation

import (
	"context"

	"github.com/opscore/orchestrator/pkg/model"
)

// Store is the ConversationStore port (spec §1 Non-goals: "Database
// persistence for conversations/messages — treated as a
// ConversationStore port").
type Store interface {
	CreateConversation(ctx context.Context, userID, title string) (model.Conversation, error)
	GetConversation(ctx context.Context, convID int64) (model.Conversation, error)
	SetTopic(ctx context.Context, convID int64, title, details string) error
	AddMessage(ctx context.Context, convID int64, role model.Role, content string) (model.Message, error)
	ListMessages(ctx context.Context, convID int64, limit int) ([]model.Message, error)
}

// TaskPlanStore is the narrow slice of the Checkpoint Store (C1) the
// manager needs for task CRUD (spec §4.10: "Task CRUD mirrors C1").
type TaskPlanStore interface {
	ReadPlan(convID int64) ([]model.Task, error)
	UpdateStatus(convID int64, index int, status model.TaskStatus) error
	WritePlan(convID int64, tasks []model.Task, taskData []map[string]any) error
}

// EventBus is the narrow slice of the SSE Event Bus (C10) the manager
// needs to project task_summary events.
type EventBus interface {
	Emit(convID int64, eventName string, payload any)
}
