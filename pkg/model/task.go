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

import "fmt"

// TaskStatus is the lifecycle state of a planned unit of work.
//
// Transitions are one-directional: Pending -> InProgress -> Completed.
// A completed task is never reopened within the same Run (spec §3).
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
)

// CanTransitionTo reports whether moving from s to next is a legal
// transition under the plan's one-directional state machine.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	switch s {
	case TaskPending:
		return next == TaskInProgress || next == TaskCompleted
	case TaskInProgress:
		return next == TaskCompleted
	case TaskCompleted:
		return false
	}
	return false
}

// Task is one line item of a conversation's bulk-work plan.
//
// Identity is (ConvID, Index); Index is dense and zero-based within a
// single plan (spec §3).
type Task struct {
	ConvID      int64          `json:"-"`
	Index       int            `json:"index"`
	Description string         `json:"description"`
	Status      TaskStatus     `json:"status"`
	Data        map[string]any `json:"data,omitempty"`
}

// Validate checks the structural invariants a Task must hold on its own
// (dense-index checking happens at the plan level, see pkg/checkpoint).
func (t *Task) Validate() error {
	if t.Index < 0 {
		return fmt.Errorf("task index must be >= 0, got %d", t.Index)
	}
	switch t.Status {
	case TaskPending, TaskInProgress, TaskCompleted:
	default:
		return fmt.Errorf("task %d: invalid status %q", t.Index, t.Status)
	}
	return nil
}
