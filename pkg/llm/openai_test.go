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

package llm

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStreamTranslatesTextAndToolCallChunks(t *testing.T) {
	const sse = "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"tool_calls\":[{\"id\":\"call_1\",\"function\":{\"name\":\"get_product\",\"arguments\":\"{\\\"identifier\\\":\\\"sku-1\\\"}\"}}]},\"finish_reason\":\"tool_calls\"}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}],\"usage\":{\"total_tokens\":42}}\n\n" +
		"data: [DONE]\n\n"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, sse)
	}))
	defer srv.Close()

	model := NewOpenAIChatModel(OpenAIConfig{APIKey: "test", Model: "gpt-4o-mini", BaseURL: srv.URL}, nil)
	chunks, err := model.Stream(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil)
	require.NoError(t, err)

	var text string
	var toolCall *ToolCall
	var done bool
	for c := range chunks {
		switch c.Type {
		case ChunkText:
			text += c.Text
		case ChunkToolCall:
			toolCall = c.ToolCall
		case ChunkDone:
			done = true
			require.Equal(t, 42, c.Tokens)
		}
	}

	require.Equal(t, "Hello", text)
	require.True(t, done)
	require.NotNil(t, toolCall)
	require.Equal(t, "get_product", toolCall.Name)
	require.Equal(t, "sku-1", toolCall.Arguments["identifier"])
}

func TestModelName(t *testing.T) {
	model := NewOpenAIChatModel(OpenAIConfig{Model: "gpt-4o-mini"}, nil)
	require.Equal(t, "gpt-4o-mini", model.ModelName())
}
