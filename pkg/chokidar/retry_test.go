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
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opscore/orchestrator/pkg/model"
)

func TestPreserveTextPassesShortTextThrough(t *testing.T) {
	require.Equal(t, "hello", PreserveText("hello"))
}

func TestPreserveTextTruncatesAndMarks(t *testing.T) {
	text := strings.Repeat("x", maxPreservedTextBytes+1000)
	out := PreserveText(text)
	require.LessOrEqual(t, len(out), maxPreservedTextBytes)
	require.Contains(t, out, preservedTextTruncationMarker)
}

func TestRetryComposesContinuationPrompt(t *testing.T) {
	state := &model.BulkOperationState{
		OperationType:  "price_update",
		ExpectedItems:  5,
		ItemList:       []string{"sku-1", "sku-2", "sku-3", "sku-4", "sku-5"},
		CompletedItems: []string{"sku-1", "sku-2"},
		MaxRetries:     5,
	}

	decision := Retry(state, "updated sku-1 and sku-2", "update prices for all 5 SKUs")
	require.False(t, decision.Terminate)
	require.Equal(t, 1, state.RetryCount)
	require.Contains(t, decision.ContinuationPrompt, "sku-3")
	require.Contains(t, decision.ContinuationPrompt, "sku-4")
	require.Contains(t, decision.ContinuationPrompt, "sku-5")
	require.NotContains(t, decision.ContinuationPrompt, "- sku-1\n")
	require.Contains(t, decision.ContinuationPrompt, "updated sku-1 and sku-2")
	require.Contains(t, decision.ContinuationPrompt, "Do not hand this back to the user")
	require.Contains(t, decision.ContinuationPrompt, "update prices for all 5 SKUs")
}

func TestRetryTerminatesAtMaxRetries(t *testing.T) {
	state := &model.BulkOperationState{
		OperationType:  "price_update",
		ExpectedItems:  5,
		ItemList:       []string{"sku-1", "sku-2", "sku-3"},
		CompletedItems: []string{"sku-1"},
		RetryCount:     5,
		MaxRetries:     5,
	}

	decision := Retry(state, "partial work", "original message")
	require.True(t, decision.Terminate)
	require.Contains(t, decision.TerminationNotice, "5 retries")
	require.Equal(t, 5, state.RetryCount, "terminating must not increment retryCount further")
}
