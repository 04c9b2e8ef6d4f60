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

package model

// FragmentPriority ranks a PromptFragment for ordering within a
// ContextBundle (highest first: critical, high, medium, low).
type FragmentPriority string

const (
	PriorityCritical FragmentPriority = "critical"
	PriorityHigh     FragmentPriority = "high"
	PriorityMedium   FragmentPriority = "medium"
	PriorityLow      FragmentPriority = "low"
)

var priorityRank = map[FragmentPriority]int{
	PriorityCritical: 0,
	PriorityHigh:     1,
	PriorityMedium:   2,
	PriorityLow:      3,
}

// Rank returns a smaller-is-higher-priority ordinal, defaulting unknown
// priorities to the lowest rank.
func (p FragmentPriority) Rank() int {
	if r, ok := priorityRank[p]; ok {
		return r
	}
	return len(priorityRank)
}

// Memory is a single retrieved long-term memory item (spec §3).
type Memory struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	UserID   string         `json:"user_id,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Score    float64        `json:"score"`
}

// PromptFragment is a retrievable slice of system-prompt guidance
// (spec §3).
type PromptFragment struct {
	ID        string           `json:"id"`
	Content   string           `json:"content"`
	Category  string           `json:"category"`
	Priority  FragmentPriority `json:"priority"`
	Tags      []string         `json:"tags,omitempty"`
	AgentType string           `json:"agent_type,omitempty"`
	Score     float64          `json:"score"`
}

// HistoryTurn is one (role, content) pair from conversation history as
// embedded in a ContextBundle.
type HistoryTurn struct {
	Role    Role
	Content string
}

// BusinessLogic carries detected rule patterns and warnings surfaced to
// sub-agents (spec §3, §4.5).
type BusinessLogic struct {
	Patterns []string `json:"patterns,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Rules    []string `json:"rules,omitempty"`
}

// ProductBlob is a stripped product record embedded into a FullSlice
// ContextBundle (spec §6 "Product Key Stripping").
type ProductBlob struct {
	ID                 string           `json:"id"`
	Title              string           `json:"title"`
	Handle             string           `json:"handle"`
	SKU                string           `json:"sku"`
	Vendor             string           `json:"vendor"`
	ProductType        string           `json:"productType"`
	Status             string           `json:"status"`
	Price              string           `json:"price"`
	CompareAtPrice     string           `json:"compareAtPrice,omitempty"`
	Tags               []string         `json:"tags,omitempty"`
	DescriptionHTML    string           `json:"descriptionHtml,omitempty"`
	InventoryQuantity  int              `json:"inventoryQuantity"`
	InventoryPolicy    string           `json:"inventoryPolicy,omitempty"`
	TotalInventory     int              `json:"totalInventory"`
	Variants           []ProductVariant `json:"variants,omitempty"`
	Metafields         []Metafield      `json:"metafields,omitempty"`
	Images             []ProductImage   `json:"images,omitempty"`
}

// ProductVariant is a stripped variant record nested in a ProductBlob.
type ProductVariant struct {
	ID                string      `json:"id"`
	SKU               string      `json:"sku"`
	Price             string      `json:"price"`
	CompareAtPrice    string      `json:"compareAtPrice,omitempty"`
	InventoryQuantity int         `json:"inventoryQuantity"`
	Metafields        []Metafield `json:"metafields,omitempty"`
}

// Metafield is a namespace/key/value/type tuple; every other Shopify
// metafield attribute is dropped by contextbuilder.StripProductKeys.
type Metafield struct {
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
	Value     string `json:"value"`
	Type      string `json:"type"`
}

// ProductImage keeps only the two fields a sub-agent needs to reference
// an image in conversation.
type ProductImage struct {
	URL     string `json:"url"`
	AltText string `json:"altText,omitempty"`
}

// ContextBundle is the ephemeral value object passed to every sub-agent
// (spec §3). Its serialized size must never exceed MAX_CONTEXT_BYTES;
// pkg/contextbuilder enforces truncation in the documented priority
// order: additionalContext -> fragments -> memories -> rules -> history.
type ContextBundle struct {
	Task                string                 `json:"task"`
	ConvID              int64                  `json:"conv_id"`
	UserID              string                 `json:"user_id"`
	AutonomyLevel       AutonomyLevel          `json:"autonomy_level"`
	UserProfile         map[string]any         `json:"user_profile,omitempty"`
	RelevantMemories    []Memory               `json:"relevant_memories,omitempty"`
	PromptFragments     []PromptFragment       `json:"prompt_fragments,omitempty"`
	RelevantRules       []string               `json:"relevant_rules,omitempty"`
	ConversationHistory []HistoryTurn          `json:"conversation_history,omitempty"`
	CurrentTasks        []Task                 `json:"current_tasks,omitempty"`
	BusinessLogic       BusinessLogic          `json:"business_logic"`
	AdditionalContext   string                 `json:"additional_context,omitempty"`
	ProductBlobs        []ProductBlob          `json:"product_blobs,omitempty"`
	ExtractedData       map[string]any         `json:"extracted_data,omitempty"`
	FetchedContext      map[string]any         `json:"fetched_context,omitempty"`
	FullSlice           bool                   `json:"full_slice"`
	TruncationMarkers   []string               `json:"truncation_markers,omitempty"`
}

// ToolCacheEntry is one semantic-cache row scoped to a conversation and
// tool (spec §3).
type ToolCacheEntry struct {
	ConvID    int64          `json:"conv_id"`
	ToolName  string         `json:"tool_name"`
	ArgsHash  string         `json:"args_hash"`
	Params    map[string]any `json:"params"`
	Result    string         `json:"result"`
	Embedding []float32      `json:"-"`
	CreatedAt int64          `json:"created_at"`
}
