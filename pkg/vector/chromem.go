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

package vector

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"github.com/google/uuid"

	"github.com/opscore/orchestrator/pkg/embedder"
)

const (
	chromemMemoriesCollection  = "opscore_memories"
	chromemFragmentsCollection = "opscore_fragments"
)

// ChromemConfig configures the embedded chromem-go Store adapter.
type ChromemConfig struct {
	// PersistPath, if set, enables gzip-compressed on-disk persistence.
	PersistPath string `yaml:"persist_path,omitempty"`
	Compress    bool   `yaml:"compress,omitempty"`
}

// ChromemStore implements Store using chromem-go, requiring no external
// service — the recommended provider for zero-config deployments
// (spec §4.2).
type ChromemStore struct {
	db  *chromem.DB
	emb embedder.Embedder

	mu          sync.RWMutex
	collections map[string]*chromem.Collection

	memoryMinScore   float64
	fragmentMinScore float64
}

// NewChromemStore opens (or creates) a chromem-go database at
// cfg.PersistPath, or an in-memory-only one if PersistPath is empty.
func NewChromemStore(cfg ChromemConfig, emb embedder.Embedder) (*ChromemStore, error) {
	var db *chromem.DB
	if cfg.PersistPath != "" {
		if err := os.MkdirAll(cfg.PersistPath, 0o755); err != nil {
			return nil, fmt.Errorf("vector: create persist dir: %w", err)
		}
		dbPath := cfg.PersistPath + "/vectors.gob"
		if cfg.Compress {
			dbPath += ".gz"
		}
		if _, err := os.Stat(dbPath); err == nil {
			loaded, err := chromem.NewPersistentDB(cfg.PersistPath, cfg.Compress)
			if err != nil {
				db = chromem.NewDB()
			} else {
				db = loaded
			}
		} else {
			db = chromem.NewDB()
		}
	} else {
		db = chromem.NewDB()
	}

	return &ChromemStore{
		db:               db,
		emb:              emb,
		collections:      make(map[string]*chromem.Collection),
		memoryMinScore:   DefaultMemoryMinScore,
		fragmentMinScore: DefaultFragmentMinScore,
	}, nil
}

// identityEmbed is passed to chromem-go so it never re-embeds text
// itself: this store always supplies pre-computed vectors via the
// embedder port.
func identityEmbed(_ context.Context, _ string) ([]float32, error) {
	return nil, fmt.Errorf("vector: chromem identity embedding function should not be invoked")
}

func (c *ChromemStore) collection(name string) (*chromem.Collection, error) {
	c.mu.RLock()
	if col, ok := c.collections[name]; ok {
		c.mu.RUnlock()
		return col, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if col, ok := c.collections[name]; ok {
		return col, nil
	}
	col, err := c.db.GetOrCreateCollection(name, nil, identityEmbed)
	if err != nil {
		return nil, fmt.Errorf("vector: get or create collection %s: %w", name, err)
	}
	c.collections[name] = col
	return col, nil
}

func metadataToStrings(metadata map[string]any) map[string]string {
	out := make(map[string]string, len(metadata))
	for k, v := range metadata {
		out[k] = fmt.Sprintf("%v", v)
	}
	return out
}

// Search implements Store.
func (c *ChromemStore) Search(ctx context.Context, query string, scope Scope, k int) ([]Ranked, error) {
	col, err := c.collection(chromemMemoriesCollection)
	if err != nil {
		return nil, err
	}
	vec, err := c.emb.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	var where map[string]string
	if scope.UserID != "" {
		where = map[string]string{"user_id": scope.UserID}
	}
	n := k
	if n <= 0 || n > col.Count() {
		n = col.Count()
	}
	if n == 0 {
		return nil, nil
	}
	results, err := col.QueryEmbedding(ctx, vec, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("vector: query memories: %w", err)
	}
	var out []Ranked
	for _, r := range results {
		score := float64(r.Similarity)
		if score < c.memoryMinScore {
			continue
		}
		meta := make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			meta[k] = v
		}
		out = append(out, Ranked{ID: r.ID, Content: r.Content, Metadata: meta, Score: score})
	}
	return out, nil
}

// Add implements Store.
func (c *ChromemStore) Add(ctx context.Context, content string, scope Scope, metadata map[string]any) (string, error) {
	col, err := c.collection(chromemMemoriesCollection)
	if err != nil {
		return "", err
	}
	vec, err := c.emb.Embed(ctx, content)
	if err != nil {
		return "", err
	}
	meta := metadataToStrings(metadata)
	if scope.UserID != "" {
		meta["user_id"] = scope.UserID
	}
	id := uuid.NewString()
	doc := chromem.Document{ID: id, Content: content, Metadata: meta, Embedding: vec}
	if err := col.AddDocuments(ctx, []chromem.Document{doc}, runtime.NumCPU()); err != nil {
		return "", fmt.Errorf("vector: add memory: %w", err)
	}
	return id, nil
}

// SearchFragments implements Store.
func (c *ChromemStore) SearchFragments(ctx context.Context, query string, k int) ([]RankedFragment, error) {
	col, err := c.collection(chromemFragmentsCollection)
	if err != nil {
		return nil, err
	}
	vec, err := c.emb.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	n := k
	if n <= 0 || n > col.Count() {
		n = col.Count()
	}
	if n == 0 {
		return nil, nil
	}
	results, err := col.QueryEmbedding(ctx, vec, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vector: query fragments: %w", err)
	}
	var out []RankedFragment
	for _, r := range results {
		score := float64(r.Similarity)
		if score < c.fragmentMinScore {
			continue
		}
		out = append(out, RankedFragment{
			ID: r.ID, Content: r.Content,
			Category:  r.Metadata["category"],
			Priority:  r.Metadata["priority"],
			AgentType: r.Metadata["agent_type"],
			Score:     score,
		})
	}
	return out, nil
}

// AddFragment implements Store.
func (c *ChromemStore) AddFragment(ctx context.Context, content, category, priority string, tags []string, agentType string) (string, error) {
	col, err := c.collection(chromemFragmentsCollection)
	if err != nil {
		return "", err
	}
	vec, err := c.emb.Embed(ctx, content)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	doc := chromem.Document{
		ID: id, Content: content,
		Metadata: map[string]string{
			"category": category, "priority": priority, "agent_type": agentType,
		},
		Embedding: vec,
	}
	if err := col.AddDocuments(ctx, []chromem.Document{doc}, runtime.NumCPU()); err != nil {
		return "", fmt.Errorf("vector: add fragment: %w", err)
	}
	return id, nil
}

// Delete implements Store.
func (c *ChromemStore) Delete(ctx context.Context, id string) error {
	for _, name := range []string{chromemMemoriesCollection, chromemFragmentsCollection} {
		col, err := c.collection(name)
		if err != nil {
			continue
		}
		_ = col.Delete(ctx, nil, nil, id)
	}
	return nil
}
