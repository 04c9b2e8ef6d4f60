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
	"time"

	"github.com/opscore/orchestrator/pkg/llm"
	"github.com/opscore/orchestrator/pkg/model"
)

// OutputVerdict is the output guard's classification of one streamed
// response, while a bulk operation is active (spec §4.8).
type OutputVerdict struct {
	IsAnnounceAndStop bool
	HasActualWork     bool
	IsComplete        bool
	ProgressCount     int
	Reasoning         string
}

var outputSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"isAnnounceAndStop": map[string]any{"type": "boolean"},
		"hasActualWork":     map[string]any{"type": "boolean"},
		"isComplete":        map[string]any{"type": "boolean"},
		"progressCount":     map[string]any{"type": "integer"},
		"reasoning":         map[string]any{"type": "string"},
	},
	"required": []any{"isAnnounceAndStop", "hasActualWork", "isComplete", "progressCount", "reasoning"},
}

// Outcome is what the supervisor should do after the output guard has
// examined a completed turn.
type Outcome string

const (
	// OutcomePassThrough means the turn's result is final, with nothing
	// further for the guardrail to do.
	OutcomePassThrough Outcome = "pass_through"
	// OutcomeTripwire means the turn announced bulk work but performed
	// none: the supervisor must retry with a continuation prompt.
	OutcomeTripwire Outcome = "tripwire"
)

// CheckpointAppender is the narrow slice of the Checkpoint Store (C1)
// the output guard needs to persist bulk-operation progress (spec
// §4.8 "extract and append a checkpoint").
type CheckpointAppender interface {
	AppendCheckpoint(convID int64, cp model.Checkpoint) (int64, error)
}

// OutputGuard detects premature "announce and stop" termination during
// an active bulk operation and drives checkpoint bookkeeping.
type OutputGuard struct {
	classifier  llm.Classifier
	checkpoints CheckpointAppender
}

// NewOutputGuard builds an OutputGuard. classifier must be non-nil for
// the output guard to do anything beyond pass-through: without a
// classifier the bulk operation can never be evaluated, so callers
// should treat a nil classifier as "guardrail disabled" upstream.
// checkpoints may be nil, which disables checkpoint persistence while
// still evaluating tripwires and completion.
func NewOutputGuard(classifier llm.Classifier, checkpoints CheckpointAppender) *OutputGuard {
	return &OutputGuard{classifier: classifier, checkpoints: checkpoints}
}

// Evaluate inspects responseText against the conversation's active
// BulkOperationState. If state is inactive, or nil, it is always a
// pass-through (spec §4.8: "pass-through if BulkOperationState
// inactive"). Otherwise it classifies the response and either clears
// state on completion, trips the wire on an empty announcement, or
// records progress and passes the turn through.
func (g *OutputGuard) Evaluate(ctx context.Context, state *model.BulkOperationState, responseText string) (Outcome, OutputVerdict, error) {
	if state == nil || !state.Active {
		return OutcomePassThrough, OutputVerdict{}, nil
	}
	if g.classifier == nil {
		return OutcomePassThrough, OutputVerdict{}, nil
	}

	raw, err := g.classifier.Classify(ctx, outputClassifyPrompt(responseText, state), outputSchema)
	if err != nil {
		// A classifier failure must never itself trip the wire; let the
		// turn stand and leave bulk-operation state untouched.
		return OutcomePassThrough, OutputVerdict{}, err
	}
	verdict := parseOutputVerdict(raw)

	if verdict.IsComplete {
		state.Reset()
		return OutcomePassThrough, verdict, nil
	}
	if verdict.IsAnnounceAndStop && !verdict.HasActualWork {
		return OutcomeTripwire, verdict, nil
	}

	if verdict.ProgressCount > 0 {
		g.recordProgress(state, verdict.ProgressCount)
	}
	if err := g.appendCheckpoint(state); err != nil {
		return OutcomePassThrough, verdict, err
	}
	return OutcomePassThrough, verdict, nil
}

// recordProgress marks the next progressCount still-remaining items
// (in ItemList order) as completed (spec §4.8: "record progressCount
// into BulkOperationState").
func (g *OutputGuard) recordProgress(state *model.BulkOperationState, progressCount int) {
	state.LastCheckpointIndex += progressCount
	if len(state.ItemList) == 0 {
		// No extracted item list to check progress against (e.g. the
		// data extractor never ran); track the count only.
		return
	}
	rem := remaining(state)
	if progressCount > len(rem) {
		progressCount = len(rem)
	}
	state.RecordCompleted(rem[:progressCount]...)
}

// appendCheckpoint extracts a Checkpoint snapshot from state and
// durably appends it (spec §4.8, §8 recovery). A nil checkpoint store
// disables persistence only; the turn still passes through.
func (g *OutputGuard) appendCheckpoint(state *model.BulkOperationState) error {
	if g.checkpoints == nil {
		return nil
	}
	cp := model.Checkpoint{
		ConvID:    state.ConversationID,
		Timestamp: time.Now().UTC(),
		Completed: append([]string(nil), state.CompletedItems...),
		Stats: model.CheckpointStats{
			Completed: len(state.CompletedItems),
			Remaining: len(remaining(state)),
		},
		BulkOperation: model.BulkOperationInfo{
			Type:          state.OperationType,
			TotalExpected: state.ExpectedItems,
		},
	}
	if len(state.CompletedItems) > 0 {
		cp.LastItem = state.CompletedItems[len(state.CompletedItems)-1]
	}
	cp.BulkOperation.AdaptiveContext.HasExtractedData = len(state.AdaptiveContext) > 0

	_, err := g.checkpoints.AppendCheckpoint(state.ConversationID, cp)
	return err
}

func outputClassifyPrompt(responseText string, state *model.BulkOperationState) string {
	return "A bulk operation of type \"" + state.OperationType + "\" is in progress. " +
		"Determine whether the assistant's latest response merely announces intent to " +
		"continue without performing any further tool calls or work, or whether it " +
		"performed actual work, or whether the operation is now complete. Response:\n\n" + responseText
}

func parseOutputVerdict(result map[string]any) OutputVerdict {
	v := OutputVerdict{}
	if b, ok := result["isAnnounceAndStop"].(bool); ok {
		v.IsAnnounceAndStop = b
	}
	if b, ok := result["hasActualWork"].(bool); ok {
		v.HasActualWork = b
	}
	if b, ok := result["isComplete"].(bool); ok {
		v.IsComplete = b
	}
	switch n := result["progressCount"].(type) {
	case float64:
		v.ProgressCount = int(n)
	case int:
		v.ProgressCount = n
	}
	if s, ok := result["reasoning"].(string); ok {
		v.Reasoning = s
	}
	return v
}
