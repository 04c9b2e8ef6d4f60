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

func TestDataExtractorDecodesClassifierResult(t *testing.T) {
	e := NewDataExtractor(stubClassifier{result: map[string]any{
		"itemList":          []any{"SKU-101", "SKU-102", "SKU-103"},
		"additionalContext": "update prices for the fall catalog",
		"reasoning":         "operator named three SKUs",
	}})

	got := e.Extract(context.Background(), "update prices for SKU-101, SKU-102 and SKU-103")
	require.Equal(t, []string{"SKU-101", "SKU-102", "SKU-103"}, got.ItemList)
	require.Equal(t, "update prices for the fall catalog", got.AdditionalContext)
	require.Equal(t, "operator named three SKUs", got.Extra["reasoning"])
}

func TestDataExtractorFallsBackOnClassifierError(t *testing.T) {
	e := NewDataExtractor(stubClassifier{err: errors.New("upstream unavailable")})

	got := e.Extract(context.Background(), "update prices for SKU-101 and SKU-102")
	require.Equal(t, []string{"SKU-101", "SKU-102"}, got.ItemList)
}

func TestDataExtractorFallsBackOnNilClassifier(t *testing.T) {
	e := NewDataExtractor(nil)

	got := e.Extract(context.Background(), "continue the export for order-9001")
	require.Equal(t, []string{"order-9001"}, got.ItemList)
	require.Equal(t, "continue the export for order-9001", got.AdditionalContext)
}
