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
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/opscore/orchestrator/pkg/embedder"
)

type memoryRecord struct {
	id        string
	content   string
	userID    string
	metadata  map[string]any
	embedding []float32
}

type fragmentRecord struct {
	id        string
	content   string
	category  string
	priority  string
	tags      []string
	agentType string
	embedding []float32
}

// InMemoryStore is a dependency-free Store implementation suitable for
// development and tests. There is no selection factory: cmd/opscored
// constructs a ChromemStore directly, and callers depend only on the
// Store interface (spec §4.2: "the core never assumes a specific
// engine").
type InMemoryStore struct {
	emb embedder.Embedder

	mu        sync.RWMutex
	memories  []memoryRecord
	fragments []fragmentRecord

	memoryMinScore   float64
	fragmentMinScore float64
}

// NewInMemoryStore builds an InMemoryStore backed by emb for embedding
// new content and queries.
func NewInMemoryStore(emb embedder.Embedder) *InMemoryStore {
	return &InMemoryStore{
		emb:              emb,
		memoryMinScore:   DefaultMemoryMinScore,
		fragmentMinScore: DefaultFragmentMinScore,
	}
}

// Search implements Store.
func (s *InMemoryStore) Search(ctx context.Context, query string, scope Scope, k int) ([]Ranked, error) {
	qvec, err := s.emb.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []Ranked
	for _, m := range s.memories {
		if scope.UserID != "" && m.userID != "" && m.userID != scope.UserID {
			continue
		}
		score := embedder.CosineSimilarity(qvec, m.embedding)
		if score < s.memoryMinScore {
			continue
		}
		candidates = append(candidates, Ranked{ID: m.id, Content: m.content, Metadata: m.metadata, Score: score})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })
	if k > 0 && len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

// Add implements Store.
func (s *InMemoryStore) Add(ctx context.Context, content string, scope Scope, metadata map[string]any) (string, error) {
	vec, err := s.emb.Embed(ctx, content)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	s.mu.Lock()
	s.memories = append(s.memories, memoryRecord{id: id, content: content, userID: scope.UserID, metadata: metadata, embedding: vec})
	s.mu.Unlock()
	return id, nil
}

// SearchFragments implements Store.
func (s *InMemoryStore) SearchFragments(ctx context.Context, query string, k int) ([]RankedFragment, error) {
	qvec, err := s.emb.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []RankedFragment
	for _, f := range s.fragments {
		score := embedder.CosineSimilarity(qvec, f.embedding)
		if score < s.fragmentMinScore {
			continue
		}
		candidates = append(candidates, RankedFragment{
			ID: f.id, Content: f.content, Category: f.category,
			Priority: f.priority, Tags: f.tags, AgentType: f.agentType, Score: score,
		})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })
	if k > 0 && len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

// AddFragment implements Store.
func (s *InMemoryStore) AddFragment(ctx context.Context, content, category, priority string, tags []string, agentType string) (string, error) {
	vec, err := s.emb.Embed(ctx, content)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	s.mu.Lock()
	s.fragments = append(s.fragments, fragmentRecord{
		id: id, content: content, category: category, priority: priority, tags: tags, agentType: agentType, embedding: vec,
	})
	s.mu.Unlock()
	return id, nil
}

// Delete implements Store, removing a memory or fragment by id.
func (s *InMemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.memories {
		if m.id == id {
			s.memories = append(s.memories[:i], s.memories[i+1:]...)
			return nil
		}
	}
	for i, f := range s.fragments {
		if f.id == id {
			s.fragments = append(s.fragments[:i], s.fragments[i+1:]...)
			return nil
		}
	}
	return nil
}
