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

package agent

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultConcurrency is the ParallelExecutorAgent's default
	// concurrency cap (spec §4.6).
	DefaultConcurrency = 5
	// DefaultThrottle is the minimum spacing between successive
	// operation starts on the same worker slot (spec §4.6).
	DefaultThrottle = 1000 * time.Millisecond
	// DefaultRetryLimit is the default per-item retry budget (spec
	// §4.6).
	DefaultRetryLimit = 2

	minBatchSize = 10
	maxBatchSize = 50
)

// ItemOperation performs one batch item's operation. A non-nil error
// is retried up to the policy's RetryLimit.
type ItemOperation func(ctx context.Context, item string) error

// ParallelPolicy carries the knobs for a ParallelExecutorAgent batch
// (spec §4.6).
type ParallelPolicy struct {
	Concurrency int
	Throttle    time.Duration
	RetryLimit  int
	DryRun      bool
}

func (p ParallelPolicy) withDefaults() ParallelPolicy {
	if p.Concurrency <= 0 {
		p.Concurrency = DefaultConcurrency
	}
	if p.Throttle <= 0 {
		p.Throttle = DefaultThrottle
	}
	if p.RetryLimit <= 0 {
		p.RetryLimit = DefaultRetryLimit
	}
	return p
}

// ItemResult records the outcome of one batch item.
type ItemResult struct {
	Item    string
	Attempt int
	Err     error
}

// ParallelExecutorAgent is a "light-bulk" worker for batches of 10-50
// items (spec §4.6). It never exceeds its concurrency cap and
// respects its throttle between operation starts on each worker slot.
type ParallelExecutorAgent struct {
	policy ParallelPolicy
}

// NewParallelExecutorAgent builds a ParallelExecutorAgent with policy,
// applying the documented defaults for any zero-valued knob.
func NewParallelExecutorAgent(policy ParallelPolicy) *ParallelExecutorAgent {
	return &ParallelExecutorAgent{policy: policy.withDefaults()}
}

// ValidateBatchSize reports whether n falls within the
// ParallelExecutorAgent's documented "light-bulk" batch range of
// 10-50 items (spec §4.6). Callers decide whether to reject batches
// outside this range or fall back to a different agent.
func ValidateBatchSize(n int) bool {
	return n >= minBatchSize && n <= maxBatchSize
}

// Run executes op over items under the agent's concurrency cap,
// throttle, and retry-limit policy. In dry-run mode op is never
// called: every item is reported as skipped with a nil error.
func (a *ParallelExecutorAgent) Run(ctx context.Context, items []string, op ItemOperation) []ItemResult {
	results := make([]ItemResult, len(items))

	if a.policy.DryRun {
		for i, item := range items {
			results[i] = ItemResult{Item: item, Attempt: 0}
		}
		return results
	}

	g, gctx := errgroup.WithContext(ctx)
	// Each slot holds the start time of its last operation, so the next
	// operation on that slot waits out the rest of the throttle.
	slots := make(chan time.Time, a.policy.Concurrency)
	for i := 0; i < a.policy.Concurrency; i++ {
		slots <- time.Time{}
	}

	for i, item := range items {
		i, item := i, item
		last := <-slots
		if wait := a.policy.Throttle - time.Since(last); wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
			}
		}
		g.Go(func() error {
			started := time.Now()
			defer func() { slots <- started }()
			results[i] = a.runOne(gctx, item, op)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// runOne retries op up to RetryLimit times, sleeping Throttle between
// attempts, and returns the last attempt's outcome.
func (a *ParallelExecutorAgent) runOne(ctx context.Context, item string, op ItemOperation) ItemResult {
	var lastErr error
	for attempt := 0; attempt <= a.policy.RetryLimit; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(a.policy.Throttle):
			case <-ctx.Done():
				return ItemResult{Item: item, Attempt: attempt, Err: ctx.Err()}
			}
		}
		lastErr = op(ctx, item)
		if lastErr == nil {
			return ItemResult{Item: item, Attempt: attempt}
		}
	}
	return ItemResult{Item: item, Attempt: a.policy.RetryLimit, Err: fmt.Errorf("exhausted retries: %w", lastErr)}
}
