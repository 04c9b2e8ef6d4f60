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
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParallelExecutorAgentRespectsConcurrencyCap(t *testing.T) {
	a := NewParallelExecutorAgent(ParallelPolicy{Concurrency: 2, Throttle: time.Millisecond})

	var current, peak int32
	items := []string{"1", "2", "3", "4", "5", "6"}

	results := a.Run(context.Background(), items, func(ctx context.Context, item string) error {
		n := atomic.AddInt32(&current, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&current, -1)
		return nil
	})

	require.Len(t, results, len(items))
	require.LessOrEqual(t, int(peak), 2)
}

func TestParallelExecutorAgentDryRunSkipsAllItems(t *testing.T) {
	a := NewParallelExecutorAgent(ParallelPolicy{DryRun: true})
	called := false

	results := a.Run(context.Background(), []string{"a", "b"}, func(ctx context.Context, item string) error {
		called = true
		return nil
	})

	require.False(t, called)
	require.Len(t, results, 2)
	for _, r := range results {
		require.NoError(t, r.Err)
		require.Equal(t, 0, r.Attempt)
	}
}

func TestParallelExecutorAgentRetriesUpToLimit(t *testing.T) {
	a := NewParallelExecutorAgent(ParallelPolicy{Concurrency: 1, Throttle: time.Millisecond, RetryLimit: 2})

	var attempts int32
	results := a.Run(context.Background(), []string{"x"}, func(ctx context.Context, item string) error {
		n := atomic.AddInt32(&attempts, 1)
		return fmt.Errorf("fails every time, attempt %d", n)
	})

	require.Len(t, results, 1)
	require.Error(t, results[0].Err)
	require.Equal(t, int32(3), attempts, "initial attempt plus 2 retries")
}

func TestParallelExecutorAgentSucceedsAfterRetry(t *testing.T) {
	a := NewParallelExecutorAgent(ParallelPolicy{Concurrency: 1, Throttle: time.Millisecond, RetryLimit: 2})

	var attempts int32
	results := a.Run(context.Background(), []string{"x"}, func(ctx context.Context, item string) error {
		n := atomic.AddInt32(&attempts, 1)
		if n < 2 {
			return fmt.Errorf("transient failure")
		}
		return nil
	})

	require.NoError(t, results[0].Err)
}

func TestValidateBatchSize(t *testing.T) {
	require.False(t, ValidateBatchSize(5))
	require.True(t, ValidateBatchSize(10))
	require.True(t, ValidateBatchSize(50))
	require.False(t, ValidateBatchSize(51))
}
