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

// Package orchestrator implements the Orchestrator Supervisor (C8,
// spec §4.9): the Run state machine that wires the Tiered Context
// Builder (C5), Chokidar Guardrails (C7), the Agent Factory (C6), the
// Tool Registry (C4), and the Conversation/Task Manager (C9) into one
// cooperative, cancellable turn.
package orchestrator

// RunState is one state of the per-turn Run state machine (spec §4.9).
type RunState string

const (
	StateIdle            RunState = "idle"
	StateBuildingContext RunState = "building_context"
	StateDispatching     RunState = "dispatching"
	StateStreaming       RunState = "streaming"
	StateContinuing      RunState = "continuing"
	StateInterrupted     RunState = "interrupted"
	StateDone            RunState = "done"
	StateFailed          RunState = "failed"
)

// Terminal reports whether s is one of the Run state machine's
// terminal states (spec §4.9: "Terminal: Done | Failed | Interrupted").
func (s RunState) Terminal() bool {
	switch s {
	case StateDone, StateFailed, StateInterrupted:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to next is a legal
// edge in the Run state machine diagram (spec §4.9).
func (s RunState) CanTransitionTo(next RunState) bool {
	switch s {
	case StateIdle:
		return next == StateBuildingContext
	case StateBuildingContext:
		return next == StateDispatching || next == StateFailed
	case StateDispatching:
		return next == StateStreaming
	case StateStreaming:
		switch next {
		case StateContinuing, StateInterrupted, StateDone, StateFailed:
			return true
		}
		return false
	case StateContinuing:
		return next == StateDispatching
	}
	return false
}
