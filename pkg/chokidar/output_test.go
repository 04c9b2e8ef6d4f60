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

package chokidar

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opscore/orchestrator/pkg/model"
)

func TestOutputGuardPassThroughWhenInactive(t *testing.T) {
	g := NewOutputGuard(stubClassifier{}, nil)
	state := &model.BulkOperationState{Active: false}

	outcome, _, err := g.Evaluate(context.Background(), state, "anything")
	require.NoError(t, err)
	require.Equal(t, OutcomePassThrough, outcome)
}

func TestOutputGuardClearsStateOnComplete(t *testing.T) {
	g := NewOutputGuard(stubClassifier{result: map[string]any{
		"isAnnounceAndStop": false, "hasActualWork": true, "isComplete": true,
		"progressCount": float64(5), "reasoning": "all items processed",
	}}, nil)
	state := &model.BulkOperationState{Active: true, OperationType: "price_update", MaxRetries: 5}

	outcome, verdict, err := g.Evaluate(context.Background(), state, "done, updated all 5 items")
	require.NoError(t, err)
	require.Equal(t, OutcomePassThrough, outcome)
	require.True(t, verdict.IsComplete)
	require.False(t, state.Active)
}

func TestOutputGuardTripsOnAnnounceWithoutWork(t *testing.T) {
	g := NewOutputGuard(stubClassifier{result: map[string]any{
		"isAnnounceAndStop": true, "hasActualWork": false, "isComplete": false,
		"progressCount": float64(0), "reasoning": "only announced a plan",
	}}, nil)
	state := &model.BulkOperationState{Active: true, OperationType: "price_update", MaxRetries: 5}

	outcome, verdict, err := g.Evaluate(context.Background(), state, "I will now update all the prices.")
	require.NoError(t, err)
	require.Equal(t, OutcomeTripwire, outcome)
	require.True(t, verdict.IsAnnounceAndStop)
	require.True(t, state.Active, "state stays active across a tripwire; only completion clears it")
}

func TestOutputGuardRecordsProgressAndPassesThrough(t *testing.T) {
	g := NewOutputGuard(stubClassifier{result: map[string]any{
		"isAnnounceAndStop": false, "hasActualWork": true, "isComplete": false,
		"progressCount": float64(3), "reasoning": "processed 3 items so far",
	}}, nil)
	state := &model.BulkOperationState{Active: true, OperationType: "price_update", MaxRetries: 5}

	outcome, _, err := g.Evaluate(context.Background(), state, "updated items 1-3")
	require.NoError(t, err)
	require.Equal(t, OutcomePassThrough, outcome)
	require.Equal(t, 3, state.LastCheckpointIndex)
}

type fakeCheckpointAppender struct {
	appended []model.Checkpoint
}

func (f *fakeCheckpointAppender) AppendCheckpoint(convID int64, cp model.Checkpoint) (int64, error) {
	cp.ConvID = convID
	f.appended = append(f.appended, cp)
	return int64(len(f.appended)), nil
}

func TestOutputGuardAppendsCheckpointOnProgress(t *testing.T) {
	appender := &fakeCheckpointAppender{}
	g := NewOutputGuard(stubClassifier{result: map[string]any{
		"isAnnounceAndStop": false, "hasActualWork": true, "isComplete": false,
		"progressCount": float64(2), "reasoning": "processed sku-1 and sku-2",
	}}, appender)
	state := &model.BulkOperationState{
		ConversationID: 7,
		Active:         true,
		OperationType:  "price_update",
		ExpectedItems:  3,
		ItemList:       []string{"sku-1", "sku-2", "sku-3"},
		MaxRetries:     5,
	}

	outcome, _, err := g.Evaluate(context.Background(), state, "updated sku-1 and sku-2")
	require.NoError(t, err)
	require.Equal(t, OutcomePassThrough, outcome)
	require.Equal(t, []string{"sku-1", "sku-2"}, state.CompletedItems)
	require.Len(t, appender.appended, 1)
	require.Equal(t, int64(7), appender.appended[0].ConvID)
	require.Equal(t, 2, appender.appended[0].Stats.Completed)
	require.Equal(t, 1, appender.appended[0].Stats.Remaining)
	require.Equal(t, "sku-2", appender.appended[0].LastItem)
}
