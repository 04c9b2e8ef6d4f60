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

package conversation

import (
	"regexp"
	"sync"

	"github.com/opscore/orchestrator/pkg/model"
)

// feedbackRingSize bounds how many recent operator turns recommendAutonomy
// considers per conversation (SPEC_FULL.md: "a bounded ring buffer of
// recent operator feedback signals").
const feedbackRingSize = 20

var (
	negativeFeedbackRe = regexp.MustCompile(`(?i)\b(thumbs[\s-]?down|that'?s wrong|no,? (that'?s|this is) not)\b`)
	slowDownRe         = regexp.MustCompile(`(?i)\b(slower|slow down|too fast|wait,? (don'?t|stop))\b`)
	speedUpRe          = regexp.MustCompile(`(?i)\b(just do it|stop asking|faster|don'?t ask(?: me)? (again|every time))\b`)
)

// feedbackRing is a fixed-capacity, overwrite-oldest buffer of recent
// operator turns for one conversation.
type feedbackRing struct {
	mu     sync.Mutex
	turns  []string
	cursor int
	filled bool
}

func newFeedbackRing() *feedbackRing {
	return &feedbackRing{turns: make([]string, feedbackRingSize)}
}

func (r *feedbackRing) record(turn string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns[r.cursor] = turn
	r.cursor = (r.cursor + 1) % feedbackRingSize
	if r.cursor == 0 {
		r.filled = true
	}
}

func (r *feedbackRing) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.filled {
		out := make([]string, r.cursor)
		copy(out, r.turns[:r.cursor])
		return out
	}
	out := make([]string, 0, feedbackRingSize)
	out = append(out, r.turns[r.cursor:]...)
	out = append(out, r.turns[:r.cursor]...)
	return out
}

// recommendAutonomy infers an autonomy recommendation from recent
// operator turns (spec §4.10): thumbs-down / "that's wrong" patterns
// and "slower please" patterns push toward lower autonomy; "just do
// it" / "stop asking" patterns push toward higher autonomy. Absent any
// signal, it recommends AutonomyMedium as a neutral default.
func recommendAutonomy(turns []string) model.IntentAnalysis {
	var negative, slow, fast int
	for _, t := range turns {
		if negativeFeedbackRe.MatchString(t) {
			negative++
		}
		if slowDownRe.MatchString(t) {
			slow++
		}
		if speedUpRe.MatchString(t) {
			fast++
		}
	}

	total := len(turns)
	switch {
	case total == 0:
		return model.IntentAnalysis{Autonomy: model.AutonomyMedium, Confidence: 0, Reasoning: "no feedback signals observed"}
	case negative > 0 || slow > 0:
		return model.IntentAnalysis{
			Autonomy:   model.AutonomyLow,
			Confidence: confidence(negative+slow, total),
			Reasoning:  "recent operator corrections or slow-down requests observed",
		}
	case fast > 0:
		return model.IntentAnalysis{
			Autonomy:   model.AutonomyHigh,
			Confidence: confidence(fast, total),
			Reasoning:  "operator repeatedly asked to skip confirmation",
		}
	default:
		return model.IntentAnalysis{Autonomy: model.AutonomyMedium, Confidence: 0.5, Reasoning: "no strong signal either way"}
	}
}

func confidence(signals, total int) float64 {
	if total == 0 {
		return 0
	}
	c := float64(signals) / float64(total)
	if c > 1 {
		c = 1
	}
	return c
}
