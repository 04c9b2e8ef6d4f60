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

// Package cache implements the Tool-Result Cache (C3, spec §4.3): a
// semantic cache of recent tool outputs scoped to a conversation. Rows
// live in SQLite; similarity search runs in process over embeddings
// loaded alongside each row, since the candidate set per conversation
// is small enough that an external vector engine would be overkill.
package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/opscore/orchestrator/pkg/embedder"
)

// DefaultSimilarityThreshold is the default cosine-similarity cutoff
// for a cache hit (spec §4.3).
const DefaultSimilarityThreshold = 0.75

// whitelist is the set of read-dominant tools eligible for caching
// (spec §4.3: "only a whitelist of read-dominant tools is cached").
var whitelist = map[string]bool{
	"get_product":         true,
	"get_order":           true,
	"get_customer":        true,
	"list_products":       true,
	"list_orders":         true,
	"search_products":     true,
	"get_inventory_level": true,
}

// Whitelisted reports whether tool is eligible for semantic caching.
func Whitelisted(tool string) bool {
	return whitelist[tool]
}

// Hit is one cache lookup result surfaced back to a caller, with the
// age of the stored entry so it can decide on freshness (spec §4.3).
type Hit struct {
	ToolName string
	Params   map[string]any
	Result   string
	Score    float64
	Age      time.Duration
}

// Stats summarizes a conversation's cache footprint.
type Stats struct {
	Entries   int
	OldestAge time.Duration
	NewestAge time.Duration
}

// Cache is the C3 Tool-Result Cache store.
type Cache struct {
	db  *sql.DB
	emb embedder.Embedder
}

// Open creates (if needed) the SQLite-backed cache at path and returns
// a ready Cache. path may be ":memory:" for tests.
func Open(path string, emb embedder.Embedder) (*Cache, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("cache: open %s: %w", path, err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Cache{db: db, emb: emb}, nil
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS tool_cache (
    conv_id    INTEGER NOT NULL,
    tool_name  TEXT NOT NULL,
    args_hash  TEXT NOT NULL,
    params     TEXT NOT NULL,
    result     TEXT NOT NULL,
    embedding  BLOB NOT NULL,
    created_at INTEGER NOT NULL,
    PRIMARY KEY (conv_id, tool_name, args_hash)
);

CREATE INDEX IF NOT EXISTS idx_tool_cache_conv ON tool_cache(conv_id);
`

func initSchema(db *sql.DB) error {
	if _, err := db.Exec(createTableSQL); err != nil {
		return fmt.Errorf("cache: init schema: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (c *Cache) Close() error { return c.db.Close() }

// ArgsHash canonicalizes tool args into a stable hash for the
// (conv_id, tool_name, args_hash) cache key (spec §3 ToolCacheEntry).
func ArgsHash(params map[string]any) (string, error) {
	canon, err := json.Marshal(canonicalize(params))
	if err != nil {
		return "", fmt.Errorf("cache: canonicalize args: %w", err)
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalize produces a value whose JSON encoding is stable
// regardless of the original map's iteration order, by recursing into
// nested maps/slices and letting encoding/json sort map keys.
func canonicalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = canonicalize(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = canonicalize(vv)
		}
		return out
	default:
		return t
	}
}

// Descriptor builds the canonical tool+args string embedded for
// semantic lookup, exposed so callers can query a cache for the exact
// same (tool, args) pair they would otherwise store.
func Descriptor(tool string, params map[string]any) (string, error) {
	b, err := json.Marshal(canonicalize(params))
	if err != nil {
		return "", err
	}
	return tool + " " + string(b), nil
}

// Store persists a tool result for (conv_id, tool, args), embedding the
// tool+args descriptor for later semantic lookup. Callers should only
// call Store for tools in the whitelist (spec §4.3); Store itself does
// not enforce this so tests can exercise arbitrary tool names.
func (c *Cache) Store(ctx context.Context, convID int64, tool string, params map[string]any, result string) error {
	hash, err := ArgsHash(params)
	if err != nil {
		return err
	}
	desc, err := Descriptor(tool, params)
	if err != nil {
		return err
	}
	vec, err := c.emb.Embed(ctx, desc)
	if err != nil {
		return fmt.Errorf("cache: embed descriptor: %w", err)
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("cache: marshal params: %w", err)
	}
	embBytes, err := encodeEmbedding(vec)
	if err != nil {
		return err
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO tool_cache (conv_id, tool_name, args_hash, params, result, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (conv_id, tool_name, args_hash) DO UPDATE SET
			params = excluded.params,
			result = excluded.result,
			embedding = excluded.embedding,
			created_at = excluded.created_at
	`, convID, tool, hash, string(paramsJSON), result, embBytes, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("cache: store entry: %w", err)
	}
	return nil
}

// SearchOptions constrains a Search call.
type SearchOptions struct {
	// Tool, if set, restricts the search to entries for that tool name
	// only (spec §4.3 default: same-tool lookup).
	Tool string
	// K bounds the number of hits returned; 0 means no limit.
	K int
	// SimilarityThreshold overrides DefaultSimilarityThreshold when > 0.
	SimilarityThreshold float64
}

// Search returns cache hits for query scoped to convID, ranked by
// descending cosine similarity, subject to opts (spec §4.3).
func (c *Cache) Search(ctx context.Context, convID int64, query string, opts SearchOptions) ([]Hit, error) {
	threshold := DefaultSimilarityThreshold
	if opts.SimilarityThreshold > 0 {
		threshold = opts.SimilarityThreshold
	}

	qvec, err := c.emb.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("cache: embed query: %w", err)
	}

	rows, err := c.rowsFor(ctx, convID, opts.Tool)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var hits []Hit
	for _, r := range rows {
		score := embedder.CosineSimilarity(qvec, r.embedding)
		if score < threshold {
			continue
		}
		var params map[string]any
		if err := json.Unmarshal([]byte(r.params), &params); err != nil {
			continue
		}
		hits = append(hits, Hit{
			ToolName: r.toolName,
			Params:   params,
			Result:   r.result,
			Score:    score,
			Age:      now.Sub(time.Unix(r.createdAt, 0)),
		})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if opts.K > 0 && len(hits) > opts.K {
		hits = hits[:opts.K]
	}
	return hits, nil
}

// Stats reports the cache footprint for a conversation (spec §4.3
// stats(conv_id) operation).
func (c *Cache) Stats(ctx context.Context, convID int64) (Stats, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT COUNT(*), MIN(created_at), MAX(created_at)
		FROM tool_cache WHERE conv_id = ?
	`, convID)
	var count int
	var minTS, maxTS sql.NullInt64
	if err := row.Scan(&count, &minTS, &maxTS); err != nil {
		return Stats{}, fmt.Errorf("cache: stats: %w", err)
	}
	if count == 0 {
		return Stats{}, nil
	}
	now := time.Now()
	return Stats{
		Entries:   count,
		OldestAge: now.Sub(time.Unix(minTS.Int64, 0)),
		NewestAge: now.Sub(time.Unix(maxTS.Int64, 0)),
	}, nil
}

type cacheRow struct {
	toolName  string
	params    string
	result    string
	embedding []float32
	createdAt int64
}

func (c *Cache) rowsFor(ctx context.Context, convID int64, tool string) ([]cacheRow, error) {
	query := `SELECT tool_name, params, result, embedding, created_at FROM tool_cache WHERE conv_id = ?`
	args := []any{convID}
	if tool != "" {
		query += ` AND tool_name = ?`
		args = append(args, tool)
	}
	rs, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("cache: query rows: %w", err)
	}
	defer rs.Close()

	var out []cacheRow
	for rs.Next() {
		var r cacheRow
		var embBytes []byte
		if err := rs.Scan(&r.toolName, &r.params, &r.result, &embBytes, &r.createdAt); err != nil {
			return nil, fmt.Errorf("cache: scan row: %w", err)
		}
		vec, err := decodeEmbedding(embBytes)
		if err != nil {
			continue
		}
		r.embedding = vec
		out = append(out, r)
	}
	return out, rs.Err()
}
