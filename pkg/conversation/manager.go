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

package conversation

import (
	"context"
	"sync"

	"github.com/opscore/orchestrator/pkg/model"
	"github.com/opscore/orchestrator/pkg/sse"
)

// Manager is the Conversation/Task Manager (C9): thread log,
// autonomy recommendation, task CRUD, and task_summary SSE
// projection.
type Manager struct {
	store Store
	tasks TaskPlanStore
	bus   EventBus

	mu       sync.Mutex
	feedback map[int64]*feedbackRing
}

// New builds a Manager. bus may be nil, which disables SSE
// projection (useful in tests that don't need it).
func New(store Store, tasks TaskPlanStore, bus EventBus) *Manager {
	return &Manager{store: store, tasks: tasks, bus: bus, feedback: make(map[int64]*feedbackRing)}
}

// AddMessage appends a message to the conversation's thread log and
// records it as a feedback-ring candidate when authored by the user
// (spec §4.10 addMessage).
func (m *Manager) AddMessage(ctx context.Context, convID int64, role model.Role, content string) (model.Message, error) {
	msg, err := m.store.AddMessage(ctx, convID, role, content)
	if err != nil {
		return model.Message{}, err
	}
	if role == model.RoleUser {
		m.ringFor(convID).record(content)
	}
	return msg, nil
}

// ListMessages returns up to limit of the conversation's most recent
// messages (spec §4.10 listMessages).
func (m *Manager) ListMessages(ctx context.Context, convID int64, limit int) ([]model.Message, error) {
	return m.store.ListMessages(ctx, convID, limit)
}

// RecommendAutonomy infers an autonomy level from the conversation's
// recent operator feedback signals (spec §4.10 recommendAutonomy).
func (m *Manager) RecommendAutonomy(convID int64) model.IntentAnalysis {
	return recommendAutonomy(m.ringFor(convID).snapshot())
}

func (m *Manager) ringFor(convID int64) *feedbackRing {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.feedback[convID]
	if !ok {
		r = newFeedbackRing()
		m.feedback[convID] = r
	}
	return r
}

// ListTasks returns the conversation's current task plan.
func (m *Manager) ListTasks(convID int64) ([]model.Task, error) {
	return m.tasks.ReadPlan(convID)
}

// CreatePlan replaces the conversation's task plan and projects a
// task_plan_created event.
func (m *Manager) CreatePlan(convID int64, tasks []model.Task, taskData []map[string]any) error {
	if err := m.tasks.WritePlan(convID, tasks, taskData); err != nil {
		return err
	}
	m.emitTaskSummary(convID)
	m.emit(convID, sse.EventTaskPlanCreated, map[string]any{"conv_id": convID, "count": len(tasks)})
	return nil
}

// SetTaskStatus mirrors the Checkpoint Store's UpdateStatus (C1) and
// additionally projects a task_summary event on every mutation (spec
// §4.10: "Task CRUD mirrors C1 but additionally projects task_summary
// events onto the SSE bus on each mutation"). It satisfies
// pkg/agent.TaskStore.
func (m *Manager) SetTaskStatus(ctx context.Context, convID int64, index int, status model.TaskStatus) error {
	if err := m.tasks.UpdateStatus(convID, index, status); err != nil {
		return err
	}
	m.emitTaskSummary(convID)
	return nil
}

// SetTopic records the conversation's current topic. It satisfies
// pkg/agent.TopicStore.
func (m *Manager) SetTopic(ctx context.Context, convID int64, title, details string) error {
	return m.store.SetTopic(ctx, convID, title, details)
}

func (m *Manager) emitTaskSummary(convID int64) {
	tasks, err := m.tasks.ReadPlan(convID)
	if err != nil {
		return
	}
	m.emit(convID, sse.EventTaskSummary, map[string]any{"conv_id": convID, "tasks": tasks})
}

func (m *Manager) emit(convID int64, name string, payload any) {
	if m.bus == nil {
		return
	}
	m.bus.Emit(convID, name, payload)
}
