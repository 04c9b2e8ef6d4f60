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
	"encoding/json"
	"regexp"
	"sort"

	"github.com/opscore/orchestrator/pkg/model"
	"github.com/opscore/orchestrator/pkg/vector"
)

// MaxContextBytes is the hard context ceiling (spec §6).
const MaxContextBytes = 150000

const (
	coreMemoryLimit   = 5
	coreFragmentLimit = 3
	coreHistoryTurns  = 3
	coreRuleCap       = 10

	fullMemoryLimit   = 15
	fullFragmentLimit = 10
	fullHistoryTurns  = 10
	fullProductLimit  = 10
)

var businessRuleLineRe = regexp.MustCompile(`(?i)\b(CRITICAL|ALWAYS|NEVER|MAP)\b`)

var patternDetectors = map[string]*regexp.Regexp{
	"discount_removal": regexp.MustCompile(`(?i)\bremove\w*\s+discount`),
	"map_pricing":      regexp.MustCompile(`(?i)\bMAP\b|\bminimum\s+advertised\s+price\b`),
	"bulk_operation":   regexp.MustCompile(`(?i)\b(bulk|batch|all\s+products)\b`),
	"price_update":     regexp.MustCompile(`(?i)\b(price|pricing)\s+(update|change|adjust)|\b(update|change|adjust)\w*\s+(the\s+)?(price|pricing)`),
}

// ProductFetcher fetches raw (unstripped) product JSON for identifier,
// backing the product-read tool call FullSlice uses for product blobs.
type ProductFetcher func(ctx context.Context, identifier string) (map[string]any, error)

// Input collects everything the builder needs to assemble one
// ContextBundle (spec §4.5).
type Input struct {
	Task           string
	ConvID         int64
	UserID         string
	AutonomyLevel  model.AutonomyLevel
	ForceFull      bool
	UserProfile    map[string]any
	History        []model.HistoryTurn
	Rules          []string
	CurrentTasks   []model.Task
	ReferencedSKUs []string
	ExtractedData  map[string]any
	FetchedContext map[string]any
}

// Builder implements the Tiered Context Builder (C5).
type Builder struct {
	vectors  vector.Store
	products ProductFetcher
	size     *SizeEstimator
}

// New creates a Builder. products may be nil, in which case FullSlice
// product blobs are simply omitted.
func New(vectors vector.Store, products ProductFetcher, size *SizeEstimator) *Builder {
	return &Builder{vectors: vectors, products: products, size: size}
}

// Build assembles a ContextBundle, selecting buildCore or buildFull per
// spec §4.5's explicit-signal rule, then enforcing MAX_CONTEXT_BYTES
// via truncation in priority order.
func (b *Builder) Build(ctx context.Context, in Input) (model.ContextBundle, error) {
	full := ShouldBuildFull(in.Task, in.ForceFull)

	bundle := model.ContextBundle{
		Task:          in.Task,
		ConvID:        in.ConvID,
		UserID:        in.UserID,
		AutonomyLevel: in.AutonomyLevel,
		UserProfile:   in.UserProfile,
		CurrentTasks:  in.CurrentTasks,
		FullSlice:     full,
	}

	memLimit, fragLimit, historyTurns := coreMemoryLimit, coreFragmentLimit, coreHistoryTurns
	if full {
		memLimit, fragLimit, historyTurns = fullMemoryLimit, fullFragmentLimit, fullHistoryTurns
	}

	if b.vectors != nil {
		mems, err := b.vectors.Search(ctx, in.Task, vector.Scope{UserID: in.UserID}, memLimit)
		if err != nil {
			return model.ContextBundle{}, err
		}
		bundle.RelevantMemories = toModelMemories(mems)

		frags, err := b.vectors.SearchFragments(ctx, in.Task, fragLimit)
		if err != nil {
			return model.ContextBundle{}, err
		}
		bundle.PromptFragments = toModelFragments(frags)
	}

	bundle.RelevantRules = selectRules(in.Rules, full)
	bundle.BusinessLogic = detectBusinessLogic(in.Task, in.Rules)

	if len(in.History) > historyTurns {
		bundle.ConversationHistory = in.History[len(in.History)-historyTurns:]
	} else {
		bundle.ConversationHistory = in.History
	}

	if full {
		bundle.ExtractedData = in.ExtractedData
		bundle.FetchedContext = in.FetchedContext
		if b.products != nil && len(in.ReferencedSKUs) > 0 {
			bundle.ProductBlobs = b.fetchProductBlobs(ctx, in.ReferencedSKUs)
		}
	}

	b.enforceBudget(&bundle)
	return bundle, nil
}

func (b *Builder) fetchProductBlobs(ctx context.Context, skus []string) []model.ProductBlob {
	limit := len(skus)
	if limit > fullProductLimit {
		limit = fullProductLimit
	}
	var blobs []model.ProductBlob
	for _, sku := range skus[:limit] {
		raw, err := b.products(ctx, sku)
		if err != nil {
			continue
		}
		blobs = append(blobs, StripProductKeys(raw))
	}
	return blobs
}

func toModelMemories(ranked []vector.Ranked) []model.Memory {
	out := make([]model.Memory, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, model.Memory{ID: r.ID, Content: r.Content, Metadata: r.Metadata, Score: r.Score})
	}
	return out
}

func toModelFragments(ranked []vector.RankedFragment) []model.PromptFragment {
	out := make([]model.PromptFragment, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, model.PromptFragment{
			ID: r.ID, Content: r.Content, Category: r.Category,
			Priority: model.FragmentPriority(r.Priority), Tags: r.Tags, AgentType: r.AgentType, Score: r.Score,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority.Rank() != out[j].Priority.Rank() {
			return out[i].Priority.Rank() < out[j].Priority.Rank()
		}
		return out[i].Score > out[j].Score
	})
	return out
}

// selectRules applies the CoreSlice business-rule filter (lines
// containing CRITICAL/ALWAYS/NEVER/MAP, capped at 10) or returns the
// full rule set for FullSlice.
func selectRules(rules []string, full bool) []string {
	if full {
		return rules
	}
	var out []string
	for _, r := range rules {
		if businessRuleLineRe.MatchString(r) {
			out = append(out, r)
			if len(out) >= coreRuleCap {
				break
			}
		}
	}
	return out
}

func detectBusinessLogic(task string, rules []string) model.BusinessLogic {
	var bl model.BusinessLogic
	for name, re := range patternDetectors {
		if re.MatchString(task) {
			bl.Patterns = append(bl.Patterns, name)
		}
	}
	sort.Strings(bl.Patterns)
	bl.Rules = rules
	return bl
}

// enforceBudget truncates ContextBundle sections, in the documented
// priority order additionalContext -> fragments -> memories -> rules
// -> history, until the serialized bundle fits MAX_CONTEXT_BYTES
// (spec §3, §6). Truncation is always marked, never silent.
func (b *Builder) enforceBudget(bundle *model.ContextBundle) {
	order := []func(*model.ContextBundle) bool{
		truncateAdditionalContext,
		truncateFragments,
		truncateMemories,
		truncateRules,
		truncateHistory,
	}

	for _, step := range order {
		for b.size.Bytes(serialize(bundle)) > MaxContextBytes {
			if !step(bundle) {
				break
			}
		}
	}
}

func serialize(bundle *model.ContextBundle) string {
	b, _ := json.Marshal(bundle)
	return string(b)
}

const truncationNotice = "[Additional prompt fragments truncated to prevent context explosion]"

func truncateAdditionalContext(bundle *model.ContextBundle) bool {
	if bundle.AdditionalContext == "" {
		return false
	}
	bundle.AdditionalContext = ""
	bundle.TruncationMarkers = append(bundle.TruncationMarkers, truncationNotice)
	return true
}

func truncateFragments(bundle *model.ContextBundle) bool {
	if len(bundle.PromptFragments) == 0 {
		return false
	}
	bundle.PromptFragments = bundle.PromptFragments[:len(bundle.PromptFragments)-1]
	bundle.TruncationMarkers = append(bundle.TruncationMarkers, truncationNotice)
	return true
}

func truncateMemories(bundle *model.ContextBundle) bool {
	if len(bundle.RelevantMemories) == 0 {
		return false
	}
	bundle.RelevantMemories = bundle.RelevantMemories[:len(bundle.RelevantMemories)-1]
	bundle.TruncationMarkers = append(bundle.TruncationMarkers, "[Relevant memories truncated to prevent context explosion]")
	return true
}

func truncateRules(bundle *model.ContextBundle) bool {
	if len(bundle.RelevantRules) == 0 {
		return false
	}
	bundle.RelevantRules = bundle.RelevantRules[:len(bundle.RelevantRules)-1]
	bundle.TruncationMarkers = append(bundle.TruncationMarkers, "[Business rules truncated to prevent context explosion]")
	return true
}

func truncateHistory(bundle *model.ContextBundle) bool {
	if len(bundle.ConversationHistory) == 0 {
		return false
	}
	bundle.ConversationHistory = bundle.ConversationHistory[1:]
	bundle.TruncationMarkers = append(bundle.TruncationMarkers, "[Conversation history truncated to prevent context explosion]")
	return true
}
