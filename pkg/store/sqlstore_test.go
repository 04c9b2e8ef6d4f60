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

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opscore/orchestrator/pkg/model"
)

func openTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := Open(DialectSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGetConversation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversation(ctx, "user-1", "support thread")
	require.NoError(t, err)
	require.NotZero(t, conv.ID)
	require.Equal(t, "user-1", conv.UserID)

	got, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.Equal(t, conv.ID, got.ID)
	require.Equal(t, "support thread", got.Title)
}

func TestGetConversationNotFoundErrors(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetConversation(context.Background(), 9999)
	require.Error(t, err)
}

func TestSetTopicUpdatesConversation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	conv, err := s.CreateConversation(ctx, "user-1", "thread")
	require.NoError(t, err)

	require.NoError(t, s.SetTopic(ctx, conv.ID, "Refund request", "Customer wants a refund for order #1042"))

	got, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.Equal(t, "Refund request", got.TopicTitle)
	require.Equal(t, "Customer wants a refund for order #1042", got.TopicDetails)
}

func TestAddAndListMessagesPreservesChronologicalOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	conv, err := s.CreateConversation(ctx, "user-1", "thread")
	require.NoError(t, err)

	for _, m := range []string{"hello", "how can I help", "cancel my order"} {
		_, err := s.AddMessage(ctx, conv.ID, model.RoleUser, m)
		require.NoError(t, err)
	}

	msgs, err := s.ListMessages(ctx, conv.ID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.Equal(t, "hello", msgs[0].Content)
	require.Equal(t, "cancel my order", msgs[2].Content)
}

func TestListMessagesRespectsLimitKeepingMostRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	conv, err := s.CreateConversation(ctx, "user-1", "thread")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := s.AddMessage(ctx, conv.ID, model.RoleUser, "msg")
		require.NoError(t, err)
	}

	msgs, err := s.ListMessages(ctx, conv.ID, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
}

func TestOpenRejectsUnknownDialect(t *testing.T) {
	_, err := Open(Dialect("oracle"), "whatever")
	require.Error(t, err)
}
