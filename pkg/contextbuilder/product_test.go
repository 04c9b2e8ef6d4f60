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

package contextbuilder

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStripProductKeysDropsNonEssentialFields(t *testing.T) {
	raw := map[string]any{
		"id":                 "gid://shopify/Product/1",
		"title":              "Mexican Altura",
		"handle":             "mexican-altura",
		"sku":                "COF-ALT-12OZ",
		"vendor":             "Altura Coffee Co",
		"productType":        "Coffee",
		"status":             "ACTIVE",
		"price":              "14.99",
		"tags":               []any{"coffee", "single-origin"},
		"inventoryQuantity":  float64(120),
		"totalInventory":     float64(500),
		"createdAt":          "2024-01-01T00:00:00Z",
		"publishedScope":     "global",
		"legacyResourceId":   "99999",
		"taxCode":            "A_GEN_NO_TAX",
		"presentmentPrices":  []any{map[string]any{"currency": "EUR", "amount": "13.00"}},
		"variants": []any{
			map[string]any{
				"id": "gid://shopify/ProductVariant/1", "sku": "COF-ALT-12OZ", "price": "14.99",
				"inventoryQuantity": float64(60), "taxable": true,
			},
		},
		"metafields": []any{
			map[string]any{"namespace": "custom", "key": "roast", "value": "medium", "type": "single_line_text_field", "ownerId": "xyz"},
		},
		"images": []any{
			map[string]any{"url": "https://cdn/img.jpg", "altText": "bag of coffee", "id": "gid://shopify/ProductImage/1"},
		},
	}

	blob := StripProductKeys(raw)

	require.Equal(t, "Mexican Altura", blob.Title)
	require.Equal(t, "mexican-altura", blob.Handle)
	require.Equal(t, 120, blob.InventoryQuantity)
	require.Len(t, blob.Variants, 1)
	require.Equal(t, "COF-ALT-12OZ", blob.Variants[0].SKU)
	require.Len(t, blob.Metafields, 1)
	require.Equal(t, "roast", blob.Metafields[0].Key)
	require.Len(t, blob.Images, 1)
	require.Equal(t, "bag of coffee", blob.Images[0].AltText)
}

func TestStripProductKeysIdempotent(t *testing.T) {
	raw := map[string]any{
		"id": "1", "title": "T", "handle": "t", "sku": "S",
		"tags": []any{"a"},
	}
	first := StripProductKeys(raw)

	data, err := json.Marshal(first)
	require.NoError(t, err)
	var reRaw map[string]any
	require.NoError(t, json.Unmarshal(data, &reRaw))

	second := StripProductKeys(reRaw)
	require.Equal(t, first, second)
}
