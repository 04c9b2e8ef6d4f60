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
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opscore/orchestrator/pkg/model"
)

func TestFeedbackRingSnapshotOrderBeforeFull(t *testing.T) {
	r := newFeedbackRing()
	r.record("one")
	r.record("two")
	r.record("three")

	require.Equal(t, []string{"one", "two", "three"}, r.snapshot())
}

func TestFeedbackRingOverwritesOldestOnceFull(t *testing.T) {
	r := newFeedbackRing()
	for i := 0; i < feedbackRingSize; i++ {
		r.record(fmt.Sprintf("turn-%d", i))
	}
	// one more push should evict turn-0
	r.record("turn-new")

	snap := r.snapshot()
	require.Len(t, snap, feedbackRingSize)
	require.Equal(t, "turn-1", snap[0])
	require.Equal(t, "turn-new", snap[feedbackRingSize-1])
}

func TestRecommendAutonomyMixedSignalsFavorsLow(t *testing.T) {
	turns := []string{
		"no, that's wrong, put it back",
		"just do it from now on",
	}
	rec := recommendAutonomy(turns)
	require.Equal(t, model.AutonomyLow, rec.Autonomy)
}

func TestRecommendAutonomyUnrelatedChatterIsNeutral(t *testing.T) {
	turns := []string{"what's the weather like", "thanks for the update"}
	rec := recommendAutonomy(turns)
	require.Equal(t, model.AutonomyMedium, rec.Autonomy)
	require.Equal(t, 0.5, rec.Confidence)
}

func TestConfidenceScalesWithSignalShare(t *testing.T) {
	require.Equal(t, 0.5, confidence(1, 2))
	require.Equal(t, 1.0, confidence(3, 3))
	require.Equal(t, 0.0, confidence(0, 0))
}
