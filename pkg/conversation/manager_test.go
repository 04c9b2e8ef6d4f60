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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opscore/orchestrator/pkg/model"
)

type memStore struct {
	messages []model.Message
	topics   map[int64][2]string
	nextID   int64
}

func newMemStore() *memStore {
	return &memStore{topics: make(map[int64][2]string)}
}

func (s *memStore) CreateConversation(ctx context.Context, userID, title string) (model.Conversation, error) {
	return model.Conversation{ID: 1, UserID: userID, Title: title}, nil
}

func (s *memStore) GetConversation(ctx context.Context, convID int64) (model.Conversation, error) {
	return model.Conversation{ID: convID}, nil
}

func (s *memStore) SetTopic(ctx context.Context, convID int64, title, details string) error {
	s.topics[convID] = [2]string{title, details}
	return nil
}

func (s *memStore) AddMessage(ctx context.Context, convID int64, role model.Role, content string) (model.Message, error) {
	s.nextID++
	msg := model.Message{ID: s.nextID, ConvID: convID, Role: role, Content: content}
	s.messages = append(s.messages, msg)
	return msg, nil
}

func (s *memStore) ListMessages(ctx context.Context, convID int64, limit int) ([]model.Message, error) {
	var out []model.Message
	for _, m := range s.messages {
		if m.ConvID == convID {
			out = append(out, m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

type memTaskStore struct {
	plans map[int64][]model.Task
}

func newMemTaskStore() *memTaskStore {
	return &memTaskStore{plans: make(map[int64][]model.Task)}
}

func (s *memTaskStore) ReadPlan(convID int64) ([]model.Task, error) {
	return s.plans[convID], nil
}

func (s *memTaskStore) UpdateStatus(convID int64, index int, status model.TaskStatus) error {
	tasks := s.plans[convID]
	if index < 0 || index >= len(tasks) {
		return context.DeadlineExceeded
	}
	tasks[index].Status = status
	return nil
}

func (s *memTaskStore) WritePlan(convID int64, tasks []model.Task, taskData []map[string]any) error {
	s.plans[convID] = tasks
	return nil
}

type recordingBus struct {
	events []string
}

func (b *recordingBus) Emit(convID int64, eventName string, payload any) {
	b.events = append(b.events, eventName)
}

func TestAddMessageAndListMessages(t *testing.T) {
	m := New(newMemStore(), newMemTaskStore(), nil)

	_, err := m.AddMessage(context.Background(), 1, model.RoleUser, "update all prices")
	require.NoError(t, err)

	msgs, err := m.ListMessages(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "update all prices", msgs[0].Content)
}

func TestCreatePlanEmitsSummaryAndPlanCreated(t *testing.T) {
	bus := &recordingBus{}
	m := New(newMemStore(), newMemTaskStore(), bus)

	err := m.CreatePlan(1, []model.Task{{Index: 0, Description: "update sku-1"}}, nil)
	require.NoError(t, err)
	require.Contains(t, bus.events, "task_plan_created")
	require.Contains(t, bus.events, "task_summary")
}

func TestSetTaskStatusEmitsSummary(t *testing.T) {
	bus := &recordingBus{}
	tasks := newMemTaskStore()
	m := New(newMemStore(), tasks, bus)
	require.NoError(t, m.CreatePlan(1, []model.Task{{Index: 0, Description: "d"}}, nil))
	bus.events = nil

	err := m.SetTaskStatus(context.Background(), 1, 0, model.TaskCompleted)
	require.NoError(t, err)
	require.Equal(t, []string{"task_summary"}, bus.events)

	got, err := m.ListTasks(1)
	require.NoError(t, err)
	require.Equal(t, model.TaskCompleted, got[0].Status)
}

func TestRecommendAutonomyNoSignal(t *testing.T) {
	m := New(newMemStore(), newMemTaskStore(), nil)
	rec := m.RecommendAutonomy(1)
	require.Equal(t, model.AutonomyMedium, rec.Autonomy)
}

func TestRecommendAutonomyNegativeFeedbackLowersAutonomy(t *testing.T) {
	m := New(newMemStore(), newMemTaskStore(), nil)
	ctx := context.Background()
	_, _ = m.AddMessage(ctx, 1, model.RoleUser, "no, that's wrong, revert it")
	_, _ = m.AddMessage(ctx, 1, model.RoleUser, "please slow down next time")

	rec := m.RecommendAutonomy(1)
	require.Equal(t, model.AutonomyLow, rec.Autonomy)
}

func TestRecommendAutonomySpeedUpSignalRaisesAutonomy(t *testing.T) {
	m := New(newMemStore(), newMemTaskStore(), nil)
	ctx := context.Background()
	_, _ = m.AddMessage(ctx, 1, model.RoleUser, "just do it, stop asking me every time")

	rec := m.RecommendAutonomy(1)
	require.Equal(t, model.AutonomyHigh, rec.Autonomy)
}

func TestSetTopicDelegatesToStore(t *testing.T) {
	store := newMemStore()
	m := New(store, newMemTaskStore(), nil)

	require.NoError(t, m.SetTopic(context.Background(), 1, "pricing", "MAP enforcement"))
	require.Equal(t, [2]string{"pricing", "MAP enforcement"}, store.topics[1])
}
