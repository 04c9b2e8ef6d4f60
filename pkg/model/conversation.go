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

// Package model defines the core data types shared across the orchestration
// runtime: conversations, messages, tasks, checkpoints, bulk-operation
// state, context bundles, tool cache entries, memories and prompt
// fragments. None of these types own persistence; stores in other packages
// read and write them.
package model

import "time"

// Role identifies who authored a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Conversation is the top-level thread a Run operates within.
type Conversation struct {
	ID           int64     `json:"conv_id"`
	UserID       string    `json:"user_id"`
	Title        string    `json:"title"`
	TopicTitle   string    `json:"topic_title,omitempty"`
	TopicDetails string    `json:"topic_details,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Message is one append-only turn in a Conversation.
type Message struct {
	ID        int64     `json:"id"`
	ConvID    int64     `json:"conv_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// AutonomyLevel controls how aggressively sub-agents act without
// confirmation.
type AutonomyLevel string

const (
	AutonomyHigh   AutonomyLevel = "high"
	AutonomyMedium AutonomyLevel = "medium"
	AutonomyLow    AutonomyLevel = "low"
)

// Valid reports whether the level is one of the three recognized values.
func (a AutonomyLevel) Valid() bool {
	switch a {
	case AutonomyHigh, AutonomyMedium, AutonomyLow:
		return true
	}
	return false
}

// IntentAnalysis is the result of classifying a user turn's autonomy
// requirements (spec §4.9 step 2).
type IntentAnalysis struct {
	Autonomy   AutonomyLevel `json:"autonomy"`
	Confidence float64       `json:"confidence"`
	Reasoning  string        `json:"reasoning,omitempty"`
}
