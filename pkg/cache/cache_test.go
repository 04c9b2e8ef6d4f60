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

package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opscore/orchestrator/pkg/embedder"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(":memory:", embedder.NewHashEmbedder(32))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestStoreAndSearchHit(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	params := map[string]any{"identifier": "mexican-altura"}
	require.NoError(t, c.Store(ctx, 1, "get_product", params, `{"title":"Mexican Altura"}`))

	hits, err := c.Search(ctx, 1, "get_product "+`{"identifier":"mexican-altura"}`, SearchOptions{Tool: "get_product"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "get_product", hits[0].ToolName)
	require.Contains(t, hits[0].Result, "Mexican Altura")
	require.GreaterOrEqual(t, hits[0].Score, DefaultSimilarityThreshold)
}

func TestSearchScopedToConversation(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	params := map[string]any{"identifier": "sku-1"}
	require.NoError(t, c.Store(ctx, 1, "get_product", params, `{"title":"SKU 1"}`))

	hits, err := c.Search(ctx, 2, "get_product "+`{"identifier":"sku-1"}`, SearchOptions{})
	require.NoError(t, err)
	require.Empty(t, hits, "entries stored under a different conversation must not leak")
}

func TestArgsHashStableUnderKeyOrder(t *testing.T) {
	a := map[string]any{"x": 1, "y": 2}
	b := map[string]any{"y": 2, "x": 1}
	ha, err := ArgsHash(a)
	require.NoError(t, err)
	hb, err := ArgsHash(b)
	require.NoError(t, err)
	require.Equal(t, ha, hb)
}

func TestStats(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	stats, err := c.Stats(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 0, stats.Entries)

	require.NoError(t, c.Store(ctx, 1, "get_order", map[string]any{"id": "1001"}, `{}`))
	stats, err = c.Stats(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Entries)
}

func TestWhitelisted(t *testing.T) {
	require.True(t, Whitelisted("get_product"))
	require.False(t, Whitelisted("apply_discount"))
}
