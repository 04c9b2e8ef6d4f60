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
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/opscore/orchestrator/pkg/embedder"
)

const (
	qdrantMemoriesCollection  = "opscore_memories"
	qdrantFragmentsCollection = "opscore_fragments"
)

// QdrantConfig configures the Qdrant-backed Store adapter.
type QdrantConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key,omitempty"`
	UseTLS bool   `yaml:"use_tls,omitempty"`
}

// QdrantStore implements Store against a Qdrant cluster.
type QdrantStore struct {
	client *qdrant.Client
	emb    embedder.Embedder
	cfg    QdrantConfig

	memoryMinScore   float64
	fragmentMinScore float64
}

// NewQdrantStore dials a Qdrant client and returns a Store backed by it.
func NewQdrantStore(cfg QdrantConfig, emb embedder.Embedder) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("vector: dial qdrant %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	return &QdrantStore{
		client:           client,
		emb:              emb,
		cfg:              cfg,
		memoryMinScore:   DefaultMemoryMinScore,
		fragmentMinScore: DefaultFragmentMinScore,
	}, nil
}

func (q *QdrantStore) ensureCollection(ctx context.Context, name string, dims int) error {
	exists, err := q.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("vector: check collection %s: %w", name, err)
	}
	if exists {
		return nil
	}
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dims),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("vector: create collection %s: %w", name, err)
	}
	return nil
}

func toPayload(metadata map[string]any) (map[string]*qdrant.Value, error) {
	payload := make(map[string]*qdrant.Value, len(metadata))
	for k, v := range metadata {
		val, err := qdrant.NewValue(v)
		if err != nil {
			return nil, fmt.Errorf("vector: convert metadata %q: %w", k, err)
		}
		payload[k] = val
	}
	return payload, nil
}

// Search implements Store.
func (q *QdrantStore) Search(ctx context.Context, query string, scope Scope, k int) ([]Ranked, error) {
	vec, err := q.emb.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	var filter *qdrant.Filter
	if scope.UserID != "" {
		filter = &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("user_id", scope.UserID),
			},
		}
	}
	limit := uint64(k)
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: qdrantMemoriesCollection,
		Query:          qdrant.NewQuery(vec...),
		Filter:         filter,
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("vector: query memories: %w", err)
	}
	var out []Ranked
	for _, p := range points {
		if float64(p.Score) < q.memoryMinScore {
			continue
		}
		out = append(out, Ranked{
			ID:       p.Id.GetUuid(),
			Content:  stringField(p.Payload, "content"),
			Metadata: payloadToMap(p.Payload),
			Score:    float64(p.Score),
		})
	}
	return out, nil
}

// Add implements Store.
func (q *QdrantStore) Add(ctx context.Context, content string, scope Scope, metadata map[string]any) (string, error) {
	vec, err := q.emb.Embed(ctx, content)
	if err != nil {
		return "", err
	}
	if err := q.ensureCollection(ctx, qdrantMemoriesCollection, len(vec)); err != nil {
		return "", err
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["content"] = content
	if scope.UserID != "" {
		metadata["user_id"] = scope.UserID
	}
	payload, err := toPayload(metadata)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err = q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: qdrantMemoriesCollection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewID(id),
			Vectors: qdrant.NewVectors(vec...),
			Payload: payload,
		}},
	})
	if err != nil {
		return "", fmt.Errorf("vector: upsert memory: %w", err)
	}
	return id, nil
}

// SearchFragments implements Store.
func (q *QdrantStore) SearchFragments(ctx context.Context, query string, k int) ([]RankedFragment, error) {
	vec, err := q.emb.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	limit := uint64(k)
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: qdrantFragmentsCollection,
		Query:          qdrant.NewQuery(vec...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("vector: query fragments: %w", err)
	}
	var out []RankedFragment
	for _, p := range points {
		if float64(p.Score) < q.fragmentMinScore {
			continue
		}
		out = append(out, RankedFragment{
			ID:        p.Id.GetUuid(),
			Content:   stringField(p.Payload, "content"),
			Category:  stringField(p.Payload, "category"),
			Priority:  stringField(p.Payload, "priority"),
			AgentType: stringField(p.Payload, "agent_type"),
			Score:     float64(p.Score),
		})
	}
	return out, nil
}

// AddFragment implements Store.
func (q *QdrantStore) AddFragment(ctx context.Context, content, category, priority string, tags []string, agentType string) (string, error) {
	vec, err := q.emb.Embed(ctx, content)
	if err != nil {
		return "", err
	}
	if err := q.ensureCollection(ctx, qdrantFragmentsCollection, len(vec)); err != nil {
		return "", err
	}
	payload, err := toPayload(map[string]any{
		"content": content, "category": category, "priority": priority,
		"tags": tags, "agent_type": agentType,
	})
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err = q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: qdrantFragmentsCollection,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewID(id),
			Vectors: qdrant.NewVectors(vec...),
			Payload: payload,
		}},
	})
	if err != nil {
		return "", fmt.Errorf("vector: upsert fragment: %w", err)
	}
	return id, nil
}

// Delete implements Store, trying both collections since the caller does
// not know which one an id belongs to.
func (q *QdrantStore) Delete(ctx context.Context, id string) error {
	ids := []*qdrant.PointId{qdrant.NewID(id)}
	for _, collection := range []string{qdrantMemoriesCollection, qdrantFragmentsCollection} {
		_, _ = q.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: collection,
			Points:         qdrant.NewPointsSelector(ids...),
		})
	}
	return nil
}

func stringField(payload map[string]*qdrant.Value, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	return v.GetStringValue()
}

func payloadToMap(payload map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = v.AsInterface()
	}
	return out
}
