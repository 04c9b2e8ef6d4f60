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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAdaptSchemaKeepsRequiredRequired(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"identifier": map[string]any{"type": "string"},
			"fields":     map[string]any{"type": "string"},
		},
		"required": []any{"identifier"},
	}
	out, err := AdaptSchema(schema)
	require.NoError(t, err)
	require.Equal(t, []any{"identifier"}, out["required"])

	props := out["properties"].(map[string]any)
	identifier := props["identifier"].(map[string]any)
	require.Equal(t, "string", identifier["type"])

	fields := props["fields"].(map[string]any)
	require.Equal(t, []any{"string", "null"}, fields["type"])
	require.Contains(t, fields, "default")
	require.Nil(t, fields["default"])
}

func TestAdaptSchemaRecursesIntoArrayItems(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"skus": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"id": map[string]any{"type": "string"},
					},
					"required": []any{"id"},
				},
			},
		},
		"required": []any{"skus"},
	}
	out, err := AdaptSchema(schema)
	require.NoError(t, err)

	props := out["properties"].(map[string]any)
	skus := props["skus"].(map[string]any)
	items := skus["items"].(map[string]any)
	require.Equal(t, "object", items["type"])
}

func TestAdaptSchemaRejectsArrayWithoutItems(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"values": map[string]any{"type": "array"},
		},
	}
	_, err := AdaptSchema(schema)
	require.ErrorIs(t, err, ErrUnsafeSchema)
}

func TestAdaptSchemaRejectsWideUnion(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"value": map[string]any{"type": []any{"string", "number", "boolean"}},
		},
	}
	_, err := AdaptSchema(schema)
	require.ErrorIs(t, err, ErrUnsafeSchema)
}
