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
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opscore/orchestrator/pkg/checkpoint"
	"github.com/opscore/orchestrator/pkg/chokidar"
	"github.com/opscore/orchestrator/pkg/contextbuilder"
	"github.com/opscore/orchestrator/pkg/conversation"
	"github.com/opscore/orchestrator/pkg/llm"
	"github.com/opscore/orchestrator/pkg/model"
	"github.com/opscore/orchestrator/pkg/sse"
	"github.com/opscore/orchestrator/pkg/tool"
)

// scriptedChatModel replays a fixed sequence of assistant texts, one
// per Stream call, and records the messages it was sent with.
type scriptedChatModel struct {
	mu    sync.Mutex
	turns []string
	calls [][]llm.Message
}

func (m *scriptedChatModel) Stream(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition) (<-chan llm.StreamChunk, error) {
	m.mu.Lock()
	idx := len(m.calls)
	m.calls = append(m.calls, messages)
	m.mu.Unlock()

	text := ""
	if idx < len(m.turns) {
		text = m.turns[idx]
	}
	ch := make(chan llm.StreamChunk, 2)
	ch <- llm.StreamChunk{Type: llm.ChunkText, Text: text}
	ch <- llm.StreamChunk{Type: llm.ChunkDone}
	close(ch)
	return ch, nil
}

func (m *scriptedChatModel) ModelName() string { return "fake-model" }

// fixedClassifier always returns the same classification.
type fixedClassifier struct {
	result map[string]any
}

func (f fixedClassifier) Classify(ctx context.Context, prompt string, schema map[string]any) (map[string]any, error) {
	return f.result, nil
}

// scriptedClassifier replays a fixed sequence of classifications, one
// per Classify call, holding the last once exhausted.
type scriptedClassifier struct {
	mu      sync.Mutex
	results []map[string]any
}

func (s *scriptedClassifier) Classify(ctx context.Context, prompt string, schema map[string]any) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.results) == 0 {
		return map[string]any{}, nil
	}
	next := s.results[0]
	if len(s.results) > 1 {
		s.results = s.results[1:]
	}
	return next, nil
}

// memConvStore is a minimal in-memory conversation.Store.
type memConvStore struct {
	mu       sync.Mutex
	messages []model.Message
	nextID   int64
}

func (s *memConvStore) CreateConversation(ctx context.Context, userID, title string) (model.Conversation, error) {
	return model.Conversation{ID: 1, UserID: userID, Title: title}, nil
}

func (s *memConvStore) GetConversation(ctx context.Context, convID int64) (model.Conversation, error) {
	return model.Conversation{ID: convID}, nil
}

func (s *memConvStore) SetTopic(ctx context.Context, convID int64, title, details string) error {
	return nil
}

func (s *memConvStore) AddMessage(ctx context.Context, convID int64, role model.Role, content string) (model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	msg := model.Message{ID: s.nextID, ConvID: convID, Role: role, Content: content}
	s.messages = append(s.messages, msg)
	return msg, nil
}

func (s *memConvStore) ListMessages(ctx context.Context, convID int64, limit int) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Message
	for _, m := range s.messages {
		if m.ConvID == convID {
			out = append(out, m)
		}
	}
	return out, nil
}

func newTestSupervisor(t *testing.T, chatModel llm.ChatModel, inputClassifier, outputClassifier, extractClassifier llm.Classifier, checkpoints *checkpoint.Store) *Supervisor {
	t.Helper()

	bus := sse.NewBus()
	manager := conversation.New(&memConvStore{}, checkpoints, bus)
	registry := tool.New(nil, nil)
	size, err := contextbuilder.NewSizeEstimator()
	require.NoError(t, err)
	builder := contextbuilder.New(nil, nil, size)

	return New(Config{
		ChatModel:        chatModel,
		Registry:         registry,
		Builder:          builder,
		Conversations:    manager,
		Bus:              bus,
		Checkpoints:      checkpoints,
		InputGuard:       chokidar.NewInputGuard(inputClassifier),
		OutputGuard:      chokidar.NewOutputGuard(outputClassifier, checkpoints),
		DataExtractor:    chokidar.NewDataExtractor(extractClassifier),
		MaxTurnsBulk:     10,
		MaxTurnsStandard: 10,
	})
}

// TestRunBulkTripwireRetryThenChecksPointsProgress drives a bulk Run
// through one announce-and-stop tripwire, a guardrail retry, and a
// progress turn, and asserts the whole chain that spec §4.7/§4.8 wire
// together actually fires: the planner receives a task per extracted
// item, the continuation prompt names the remaining items, and the
// progress turn durably appends a checkpoint.
func TestRunBulkTripwireRetryThenChecksPointsProgress(t *testing.T) {
	checkpoints := checkpoint.NewStore(t.TempDir())

	chatModel := &scriptedChatModel{turns: []string{
		"I will now update sku-1, sku-2 and sku-3.",
		"Updated sku-1 and sku-2 so far.",
	}}

	inputClassifier := fixedClassifier{result: map[string]any{
		"isBulkOperation": true,
		"expectedItems":   float64(3),
		"operationType":   "price_update",
		"reasoning":       "operator asked to update three SKUs",
	}}
	extractClassifier := fixedClassifier{result: map[string]any{
		"itemList":          []any{"sku-1", "sku-2", "sku-3"},
		"additionalContext": "update prices for sku-1, sku-2 and sku-3",
	}}
	outputClassifier := &scriptedClassifier{results: []map[string]any{
		{
			"isAnnounceAndStop": true, "hasActualWork": false, "isComplete": false,
			"progressCount": float64(0), "reasoning": "only announced a plan",
		},
		{
			"isAnnounceAndStop": false, "hasActualWork": true, "isComplete": false,
			"progressCount": float64(2), "reasoning": "updated two of three SKUs",
		},
	}}

	sup := newTestSupervisor(t, chatModel, inputClassifier, outputClassifier, extractClassifier, checkpoints)

	err := sup.Run(context.Background(), RunRequest{
		ConvID:  42,
		UserID:  "user-1",
		Message: "update prices for sku-1, sku-2 and sku-3",
	})
	require.NoError(t, err)

	// The guardrail retry must have happened: a second Stream call with
	// a continuation prompt naming the still-remaining items.
	require.Len(t, chatModel.calls, 2)
	last := chatModel.calls[1]
	found := false
	for _, m := range last {
		if m.Role != llm.RoleUser {
			continue
		}
		if strings.Contains(m.Content, "remain to be processed") &&
			strings.Contains(m.Content, "sku-1") && strings.Contains(m.Content, "sku-2") && strings.Contains(m.Content, "sku-3") {
			found = true
		}
	}
	require.True(t, found, "expected a continuation prompt listing the remaining items, got: %+v", last)

	// The planner must have produced one task per extracted item.
	tasks, err := checkpoints.ReadPlan(42)
	require.NoError(t, err)
	require.Len(t, tasks, 3)

	// The progress turn must have durably appended a checkpoint.
	cp, err := checkpoints.LatestCheckpoint(42)
	require.NoError(t, err)
	require.NotNil(t, cp)
	require.Equal(t, 2, cp.Stats.Completed)
	require.Equal(t, 1, cp.Stats.Remaining)
	require.ElementsMatch(t, []string{"sku-1", "sku-2"}, cp.Completed)
}

// TestRunNonBulkSkipsGuardrails exercises the common case: a plain
// request never activates the bulk machinery, so neither the planner
// nor the checkpoint store are touched.
func TestRunNonBulkSkipsGuardrails(t *testing.T) {
	checkpoints := checkpoint.NewStore(t.TempDir())
	chatModel := &scriptedChatModel{turns: []string{"The current price is $19.99."}}

	inputClassifier := fixedClassifier{result: map[string]any{
		"isBulkOperation": false,
		"reasoning":       "single SKU lookup",
	}}
	outputClassifier := fixedClassifier{result: map[string]any{}}

	sup := newTestSupervisor(t, chatModel, inputClassifier, outputClassifier, inputClassifier, checkpoints)

	err := sup.Run(context.Background(), RunRequest{
		ConvID:  7,
		UserID:  "user-1",
		Message: "what is the price of sku-1",
	})
	require.NoError(t, err)
	require.Len(t, chatModel.calls, 1)

	tasks, err := checkpoints.ReadPlan(7)
	require.NoError(t, err)
	require.Empty(t, tasks)

	cp, err := checkpoints.LatestCheckpoint(7)
	require.NoError(t, err)
	require.Nil(t, cp)
}
