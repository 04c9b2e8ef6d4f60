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

// Package chokidar implements the Guardrail system (C7, spec §4.7,
// §4.8): an input classifier that detects bulk operations without
// ever blocking the turn, and an output validator that detects
// premature "announce and stop" termination and drives the
// supervisor's bounded retry loop.
package chokidar

import (
	"context"
	"regexp"

	"github.com/opscore/orchestrator/pkg/llm"
)

// InputVerdict is the input guard's classification of one incoming
// request (spec §4.7).
type InputVerdict struct {
	IsBulkOperation bool
	ExpectedItems   int
	OperationType   string
	Reasoning       string
}

var inputSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"isBulkOperation": map[string]any{"type": "boolean"},
		"expectedItems":   map[string]any{"type": "integer"},
		"operationType":   map[string]any{"type": "string"},
		"reasoning":       map[string]any{"type": "string"},
	},
	"required": []any{"isBulkOperation", "expectedItems", "operationType", "reasoning"},
}

var bulkKeywordFallbackRe = regexp.MustCompile(`(?i)\b(bulk|continue)\b`)

// InputGuard classifies incoming requests for bulk-operation intent.
// It never blocks the turn: classification failures fall back to a
// keyword heuristic (spec §4.7).
type InputGuard struct {
	classifier llm.Classifier
}

// NewInputGuard builds an InputGuard. classifier may be nil, in which
// case every request goes through the keyword fallback.
func NewInputGuard(classifier llm.Classifier) *InputGuard {
	return &InputGuard{classifier: classifier}
}

// Classify returns the input guard's verdict for task text. It never
// returns an error: classifier failures degrade to the keyword
// fallback rather than blocking the turn.
func (g *InputGuard) Classify(ctx context.Context, task string) InputVerdict {
	if g.classifier != nil {
		result, err := g.classifier.Classify(ctx, classifyPrompt(task), inputSchema)
		if err == nil {
			return parseVerdict(result)
		}
	}
	return fallbackVerdict(task)
}

func classifyPrompt(task string) string {
	return "Determine whether the following operator request describes a bulk operation " +
		"(affecting many items rather than one): \"" + task + "\""
}

func parseVerdict(result map[string]any) InputVerdict {
	v := InputVerdict{}
	if b, ok := result["isBulkOperation"].(bool); ok {
		v.IsBulkOperation = b
	}
	switch n := result["expectedItems"].(type) {
	case float64:
		v.ExpectedItems = int(n)
	case int:
		v.ExpectedItems = n
	}
	if s, ok := result["operationType"].(string); ok {
		v.OperationType = s
	}
	if s, ok := result["reasoning"].(string); ok {
		v.Reasoning = s
	}
	return v
}

// fallbackVerdict is the keyword heuristic used when the classifier is
// unavailable or fails (spec §4.7).
func fallbackVerdict(task string) InputVerdict {
	isBulk := bulkKeywordFallbackRe.MatchString(task)
	return InputVerdict{
		IsBulkOperation: isBulk,
		OperationType:   "unknown",
		Reasoning:       "keyword fallback: classifier unavailable",
	}
}
