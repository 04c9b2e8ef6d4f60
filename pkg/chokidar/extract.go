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
	"regexp"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/opscore/orchestrator/pkg/llm"
)

// ExtractedEntities is the structured sidecar data a bulk operation
// carries once the Input Guard has detected it (spec §4.7): the
// concrete item list a plan and a continuation prompt both need, plus
// whatever other loosely-typed fields the classifier surfaced.
type ExtractedEntities struct {
	ItemList          []string       `mapstructure:"itemList"`
	AdditionalContext string         `mapstructure:"additionalContext"`
	Extra             map[string]any `mapstructure:",remain"`
}

var extractSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"itemList":          map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"additionalContext": map[string]any{"type": "string"},
	},
	"required": []any{"itemList"},
}

// tokenRe splits task text into dash/underscore-joined alnum tokens;
// fallbackEntities keeps the ones containing a digit, the shape a
// SKU, order id, or similar identifier takes (spec §9 Design Notes:
// rule-based fallback).
var tokenRe = regexp.MustCompile(`[A-Za-z0-9][A-Za-z0-9_-]*`)

// DataExtractor populates the structured sidecar spec §4.7 requires
// once a bulk operation has been detected: it is the component the
// planner and the checkpoint-aware continuation prompt both depend on
// for a concrete ItemList. classifier may be nil, in which case
// Extract always degrades to fallbackEntities, mirroring InputGuard's
// degrade-on-nil contract.
type DataExtractor struct {
	classifier llm.Classifier
}

// NewDataExtractor builds a DataExtractor.
func NewDataExtractor(classifier llm.Classifier) *DataExtractor {
	return &DataExtractor{classifier: classifier}
}

// Extract never errors: a classifier failure, a nil classifier, or a
// malformed decode all degrade to fallbackEntities rather than
// stalling a bulk operation on a single bad classification.
func (e *DataExtractor) Extract(ctx context.Context, task string) ExtractedEntities {
	if e.classifier == nil {
		return fallbackEntities(task)
	}
	raw, err := e.classifier.Classify(ctx, extractPrompt(task), extractSchema)
	if err != nil {
		return fallbackEntities(task)
	}
	var entities ExtractedEntities
	if err := mapstructure.Decode(raw, &entities); err != nil {
		return fallbackEntities(task)
	}
	return entities
}

func extractPrompt(task string) string {
	return "Extract the concrete list of item identifiers (SKUs, order ids, or similar) " +
		"this bulk request names, plus any other structured data useful to carrying out " +
		"the operation. Request:\n\n" + task
}

// fallbackEntities degrades to a pure keyword heuristic: every token
// shaped like an identifier (it contains a digit) becomes a list
// item, and the request itself is carried forward as additional
// context.
func fallbackEntities(task string) ExtractedEntities {
	var items []string
	for _, tok := range tokenRe.FindAllString(task, -1) {
		if containsDigit(tok) {
			items = append(items, tok)
		}
	}
	return ExtractedEntities{
		ItemList:          items,
		AdditionalContext: strings.TrimSpace(task),
	}
}

func containsDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}
