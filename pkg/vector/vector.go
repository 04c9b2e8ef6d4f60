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

// Package vector defines the Vector Search Port (spec §4.2) and ships
// interchangeable adapters: an in-process cosine-similarity store (used
// in tests), a Qdrant adapter, and a chromem-go embedded adapter (the
// one cmd/opscored wires).
package vector

import "context"

// Scope distinguishes what a stored or searched item belongs to.
type Scope struct {
	// UserID scopes memories to a single operator; empty for global scope.
	UserID string
}

// Ranked is a single retrieved item with its similarity score.
type Ranked struct {
	ID       string
	Content  string
	Metadata map[string]any
	Score    float64
}

// RankedFragment is a retrieved prompt fragment with its similarity
// score (spec §3 PromptFragment, §4.2).
type RankedFragment struct {
	ID        string
	Content   string
	Category  string
	Priority  string
	Tags      []string
	AgentType string
	Score     float64
}

// Store is the Vector Search Port. The core never assumes a specific
// engine (spec §4.2); Search/Add operate over memories, SearchFragments
// over the separate prompt-fragment collection.
type Store interface {
	// Search returns up to k memories above the scope's minimum score,
	// ranked by descending similarity to query.
	Search(ctx context.Context, query string, scope Scope, k int) ([]Ranked, error)

	// Add stores a new memory under scope, returning its assigned id.
	Add(ctx context.Context, content string, scope Scope, metadata map[string]any) (string, error)

	// SearchFragments returns up to k prompt fragments above the minimum
	// fragment score, ranked by descending similarity to query.
	SearchFragments(ctx context.Context, query string, k int) ([]RankedFragment, error)

	// AddFragment stores a new prompt fragment, returning its assigned id.
	AddFragment(ctx context.Context, content, category, priority string, tags []string, agentType string) (string, error)

	// Delete removes a memory or fragment by id.
	Delete(ctx context.Context, id string) error
}

// Default minimum-score thresholds from spec §4.2.
const (
	DefaultMemoryMinScore   = 0.5
	DefaultFragmentMinScore = 0.4
)
