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
	"github.com/opscore/orchestrator/pkg/model"
)

// StripProductKeys reduces a raw product-read-tool JSON result (as a
// generic map) to the field set spec §6 "Product key stripping"
// keeps, dropping timestamps, legacy ids, publication scopes,
// selling-plan data, tax/HS metadata, presentment prices, and
// storefront ids. Idempotent: stripping an already-stripped blob's
// re-marshaled map yields the same fields.
func StripProductKeys(raw map[string]any) model.ProductBlob {
	blob := model.ProductBlob{
		ID:                str(raw["id"]),
		Title:             str(raw["title"]),
		Handle:            str(raw["handle"]),
		SKU:               str(raw["sku"]),
		Vendor:            str(raw["vendor"]),
		ProductType:       str(raw["productType"]),
		Status:            str(raw["status"]),
		Price:             str(raw["price"]),
		CompareAtPrice:    str(raw["compareAtPrice"]),
		Tags:              stringSlice(raw["tags"]),
		DescriptionHTML:   str(raw["descriptionHtml"]),
		InventoryQuantity: intOf(raw["inventoryQuantity"]),
		InventoryPolicy:   str(raw["inventoryPolicy"]),
		TotalInventory:    intOf(raw["totalInventory"]),
	}

	for _, v := range sliceOf(raw["variants"]) {
		vm, ok := v.(map[string]any)
		if !ok {
			continue
		}
		blob.Variants = append(blob.Variants, model.ProductVariant{
			ID:                str(vm["id"]),
			SKU:               str(vm["sku"]),
			Price:             str(vm["price"]),
			CompareAtPrice:    str(vm["compareAtPrice"]),
			InventoryQuantity: intOf(vm["inventoryQuantity"]),
			Metafields:        stripMetafields(vm["metafields"]),
		})
	}

	blob.Metafields = stripMetafields(raw["metafields"])

	for _, img := range sliceOf(raw["images"]) {
		im, ok := img.(map[string]any)
		if !ok {
			continue
		}
		blob.Images = append(blob.Images, model.ProductImage{
			URL:     str(im["url"]),
			AltText: str(im["altText"]),
		})
	}

	return blob
}

func stripMetafields(raw any) []model.Metafield {
	var out []model.Metafield
	for _, m := range sliceOf(raw) {
		mm, ok := m.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, model.Metafield{
			Namespace: str(mm["namespace"]),
			Key:       str(mm["key"]),
			Value:     str(mm["value"]),
			Type:      str(mm["type"]),
		})
	}
	return out
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func intOf(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

func sliceOf(v any) []any {
	s, _ := v.([]any)
	return s
}

func stringSlice(v any) []string {
	items := sliceOf(v)
	if items == nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
