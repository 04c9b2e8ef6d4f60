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

import "time"

// CheckpointStats summarizes progress at the moment a Checkpoint was taken.
type CheckpointStats struct {
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Remaining int `json:"remaining"`
}

// BulkOperationInfo is the bulk-operation envelope embedded in a
// Checkpoint record (spec §6 "Checkpoint record").
type BulkOperationInfo struct {
	Type           string `json:"type"`
	TotalExpected  int    `json:"totalExpected"`
	AdaptiveContext struct {
		TokenCount      int  `json:"tokenCount"`
		HasExtractedData bool `json:"hasExtractedData"`
	} `json:"adaptiveContext"`
}

// Checkpoint is one append-only progress record for a conversation's bulk
// operation. Identity is (ConvID, Seq); Seq is strictly monotonic per
// conversation (spec §8).
type Checkpoint struct {
	ConvID        int64              `json:"-"`
	Seq           int64              `json:"seq"`
	Timestamp     time.Time          `json:"timestamp"`
	Completed     []string           `json:"completed"`
	Failed        []string           `json:"failed"`
	Stats         CheckpointStats    `json:"stats"`
	LastItem      string             `json:"lastItem"`
	BulkOperation BulkOperationInfo  `json:"bulkOperation"`
}

// RemainingItems computes the checkpoint-aware set difference used to
// compose continuation prompts: itemList - completedItems (spec §4.8).
func RemainingItems(itemList []string, completed []string) []string {
	done := make(map[string]struct{}, len(completed))
	for _, id := range completed {
		done[id] = struct{}{}
	}
	remaining := make([]string, 0, len(itemList))
	for _, id := range itemList {
		if _, ok := done[id]; !ok {
			remaining = append(remaining, id)
		}
	}
	return remaining
}

// BulkOperationState is the process-wide, one-per-active-conversation
// record of an in-flight bulk operation (spec §3).
type BulkOperationState struct {
	ConversationID     int64          `json:"conversationId"`
	Active             bool           `json:"active"`
	OperationType      string         `json:"operationType"`
	ExpectedItems      int            `json:"expectedItems"`
	CompletedItems     []string       `json:"completedItems"`
	ItemList           []string       `json:"itemList"`
	LastCheckpointIndex int           `json:"lastCheckpointIndex"`
	AdaptiveContext    map[string]any `json:"adaptiveContext,omitempty"`
	RetryCount         int            `json:"retryCount"`
	MaxRetries         int            `json:"maxRetries"`
}

// Reset clears the state back to inactive, as happens when the
// conversation changes or the output guardrail signals completion
// (spec §3 invariant).
func (b *BulkOperationState) Reset() {
	*b = BulkOperationState{MaxRetries: b.MaxRetries}
}

// RecordCompleted appends newly-completed item ids, keeping the
// monotonic-non-decreasing invariant from spec §8 (never removes ids).
func (b *BulkOperationState) RecordCompleted(ids ...string) {
	seen := make(map[string]struct{}, len(b.CompletedItems))
	for _, id := range b.CompletedItems {
		seen[id] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		b.CompletedItems = append(b.CompletedItems, id)
	}
}

// CanRetry reports whether another guardrail-triggered continuation is
// allowed under the bounded retry invariant (spec §8: retryCount <= maxRetries).
func (b *BulkOperationState) CanRetry() bool {
	max := b.MaxRetries
	if max <= 0 {
		max = 5
	}
	return b.RetryCount < max
}
