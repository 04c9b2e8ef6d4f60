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

package tool

import (
	"fmt"
)

// ErrUnsafeSchema is returned by AdaptSchema when a schema cannot be
// safely adapted to the function-call contract (spec §4.4: "deeply
// recursive, unbounded unions").
var ErrUnsafeSchema = fmt.Errorf("tool: schema cannot be safely adapted")

// maxSchemaDepth bounds recursion so a self-referential or pathological
// schema is rejected instead of looping forever.
const maxSchemaDepth = 12

// AdaptSchema rewrites a JSON-schema object-parameters map to satisfy
// the function-call compatibility contract (spec §4.4):
//
//   - required fields stay required;
//   - optional fields become nullable with a null default;
//   - arrays must declare element schemas (recursively adapted);
//   - object properties with a union-with-null type become nullable
//     scalars;
//   - schemas that can't be safely adapted (recursion past
//     maxSchemaDepth, or an unbounded union) are rejected.
func AdaptSchema(schema map[string]any) (map[string]any, error) {
	return adaptNode(schema, 0)
}

func adaptNode(node map[string]any, depth int) (map[string]any, error) {
	if depth > maxSchemaDepth {
		return nil, fmt.Errorf("%w: exceeds max depth %d", ErrUnsafeSchema, maxSchemaDepth)
	}

	typ, _ := node["type"].(string)
	switch typ {
	case "object":
		return adaptObject(node, depth)
	case "array":
		return adaptArray(node, depth)
	default:
		if err := checkUnion(node); err != nil {
			return nil, err
		}
		return node, nil
	}
}

func adaptObject(node map[string]any, depth int) (map[string]any, error) {
	out := cloneShallow(node)

	props, _ := node["properties"].(map[string]any)
	if props == nil {
		return out, nil
	}

	required := stringSet(node["required"])

	adaptedProps := make(map[string]any, len(props))
	for name, raw := range props {
		propSchema, ok := raw.(map[string]any)
		if !ok {
			adaptedProps[name] = raw
			continue
		}

		adapted, err := adaptNode(propSchema, depth+1)
		if err != nil {
			return nil, fmt.Errorf("tool: property %q: %w", name, err)
		}

		if !required[name] {
			adapted = makeNullable(adapted)
		}
		adaptedProps[name] = adapted
	}
	out["properties"] = adaptedProps

	// Required fields are preserved verbatim: the function-call
	// contract only relaxes optional fields, never tightens required
	// ones.
	if node["required"] != nil {
		out["required"] = node["required"]
	}
	return out, nil
}

func adaptArray(node map[string]any, depth int) (map[string]any, error) {
	items, ok := node["items"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: array has no element schema", ErrUnsafeSchema)
	}
	adaptedItems, err := adaptNode(items, depth+1)
	if err != nil {
		return nil, fmt.Errorf("tool: array items: %w", err)
	}
	out := cloneShallow(node)
	out["items"] = adaptedItems
	return out, nil
}

// checkUnion rejects schemas with more than a two-member type union
// (a bare type plus "null" is fine; anything wider is unbounded from
// the adapter's point of view).
func checkUnion(node map[string]any) error {
	switch t := node["type"].(type) {
	case []any:
		if len(t) > 2 {
			return fmt.Errorf("%w: union has %d members", ErrUnsafeSchema, len(t))
		}
	}
	return nil
}

// makeNullable converts an optional property's schema into a nullable
// one with an explicit null default, per the function-call contract.
func makeNullable(schema map[string]any) map[string]any {
	out := cloneShallow(schema)
	if _, hasDefault := out["default"]; !hasDefault {
		out["default"] = nil
	}

	switch t := schema["type"].(type) {
	case string:
		if t != "null" {
			out["type"] = []any{t, "null"}
		}
	case []any:
		if !containsNull(t) {
			out["type"] = append(append([]any{}, t...), "null")
		}
	}
	return out
}

func containsNull(types []any) bool {
	for _, t := range types {
		if s, ok := t.(string); ok && s == "null" {
			return true
		}
	}
	return false
}

func stringSet(v any) map[string]bool {
	out := map[string]bool{}
	items, _ := v.([]any)
	for _, item := range items {
		if s, ok := item.(string); ok {
			out[s] = true
		}
	}
	return out
}

func cloneShallow(node map[string]any) map[string]any {
	out := make(map[string]any, len(node))
	for k, v := range node {
		out[k] = v
	}
	return out
}
