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

package contextbuilder

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opscore/orchestrator/pkg/embedder"
	"github.com/opscore/orchestrator/pkg/model"
	"github.com/opscore/orchestrator/pkg/vector"
)

func newTestBuilder(t *testing.T) *Builder {
	t.Helper()
	store := vector.NewInMemoryStore(embedder.NewHashEmbedder(32))
	size, err := NewSizeEstimator()
	require.NoError(t, err)
	return New(store, nil, size)
}

func TestShouldBuildFullExplicitSignals(t *testing.T) {
	require.True(t, ShouldBuildFull("remove discount from all products", false))
	require.True(t, ShouldBuildFull("export as json array", false))
	require.True(t, ShouldBuildFull("update 150 SKUs", false))
	require.True(t, ShouldBuildFull(strings.Repeat("x", 6000), false))
	require.False(t, ShouldBuildFull("get product details for mexican-altura", false))
	require.True(t, ShouldBuildFull("anything", true))
}

func TestShouldBuildFullSixSKUTokens(t *testing.T) {
	task := "update sku-1 sku-2 sku-3 sku-4 sku-5 sku-6"
	require.True(t, ShouldBuildFull(task, false))
}

func TestBuildCoreDefaultsToNarrowSlice(t *testing.T) {
	b := newTestBuilder(t)
	bundle, err := b.Build(context.Background(), Input{
		Task:   "Get product details for mexican-altura",
		ConvID: 1,
		Rules:  []string{"CRITICAL: never apply MAP discounts", "Be polite to customers"},
	})
	require.NoError(t, err)
	require.False(t, bundle.FullSlice)
	require.Len(t, bundle.RelevantRules, 1, "core slice filters rules to CRITICAL/ALWAYS/NEVER/MAP lines")
}

func TestBuildFullKeepsAllRules(t *testing.T) {
	b := newTestBuilder(t)
	bundle, err := b.Build(context.Background(), Input{
		Task:   "remove discount from all products",
		ConvID: 1,
		Rules:  []string{"CRITICAL: never apply MAP discounts", "Be polite to customers"},
	})
	require.NoError(t, err)
	require.True(t, bundle.FullSlice)
	require.Len(t, bundle.RelevantRules, 2)
}

func TestBuildDetectsBusinessPatterns(t *testing.T) {
	b := newTestBuilder(t)
	bundle, err := b.Build(context.Background(), Input{Task: "remove discount and update price for SKU-1", ConvID: 1})
	require.NoError(t, err)
	require.Contains(t, bundle.BusinessLogic.Patterns, "discount_removal")
	require.Contains(t, bundle.BusinessLogic.Patterns, "price_update")
}

func TestBuildTruncatesOversizedAdditionalContext(t *testing.T) {
	b := newTestBuilder(t)
	bundle, err := b.Build(context.Background(), Input{
		Task:   "a small task",
		ConvID: 1,
	})
	require.NoError(t, err)
	bundle.AdditionalContext = strings.Repeat("z", MaxContextBytes*2)
	b.enforceBudget(&bundle)
	require.LessOrEqual(t, b.size.Bytes(serialize(&bundle)), MaxContextBytes)
	require.Empty(t, bundle.AdditionalContext)
	require.Contains(t, bundle.TruncationMarkers, truncationNotice)
}

func TestBuildHistoryWindowSize(t *testing.T) {
	b := newTestBuilder(t)
	var history []model.HistoryTurn
	for i := 0; i < 20; i++ {
		history = append(history, model.HistoryTurn{Role: model.RoleUser, Content: "turn"})
	}
	bundle, err := b.Build(context.Background(), Input{Task: "hello", ConvID: 1, History: history})
	require.NoError(t, err)
	require.Len(t, bundle.ConversationHistory, coreHistoryTurns)
}
