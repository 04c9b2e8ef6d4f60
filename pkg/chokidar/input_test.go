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
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubClassifier struct {
	result map[string]any
	err    error
}

func (s stubClassifier) Classify(ctx context.Context, prompt string, schema map[string]any) (map[string]any, error) {
	return s.result, s.err
}

func TestInputGuardUsesClassifierVerdict(t *testing.T) {
	g := NewInputGuard(stubClassifier{result: map[string]any{
		"isBulkOperation": true,
		"expectedItems":   float64(42),
		"operationType":   "price_update",
		"reasoning":       "operator asked to update many SKUs",
	}})

	v := g.Classify(context.Background(), "update prices for all SKUs")
	require.True(t, v.IsBulkOperation)
	require.Equal(t, 42, v.ExpectedItems)
	require.Equal(t, "price_update", v.OperationType)
}

func TestInputGuardFallsBackOnClassifierError(t *testing.T) {
	g := NewInputGuard(stubClassifier{err: errors.New("upstream unavailable")})

	v := g.Classify(context.Background(), "please continue the bulk export")
	require.True(t, v.IsBulkOperation)
}

func TestInputGuardFallbackNonBulk(t *testing.T) {
	g := NewInputGuard(stubClassifier{err: errors.New("upstream unavailable")})

	v := g.Classify(context.Background(), "what is the price of sku-1")
	require.False(t, v.IsBulkOperation)
}

func TestInputGuardNilClassifierUsesFallback(t *testing.T) {
	g := NewInputGuard(nil)

	v := g.Classify(context.Background(), "bulk update all products")
	require.True(t, v.IsBulkOperation)
}
