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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// OpenAIClassifier implements Classifier with a single non-streaming
// JSON-mode chat-completions call, used by Chokidar (C7) for bulk and
// announce-and-stop detection (spec §4.6, §4.8).
type OpenAIClassifier struct {
	cfg    OpenAIConfig
	client *http.Client
}

// NewOpenAIClassifier builds a Classifier sharing cfg's endpoint and
// credentials with OpenAIChatModel.
func NewOpenAIClassifier(cfg OpenAIConfig) *OpenAIClassifier {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenAIBaseURL
	}
	return &OpenAIClassifier{cfg: cfg, client: &http.Client{}}
}

type classifyRequest struct {
	Model          string             `json:"model"`
	Messages       []wireMessage      `json:"messages"`
	ResponseFormat classifyRespFormat `json:"response_format"`
	Temperature    float64            `json:"temperature"`
}

type classifyRespFormat struct {
	Type string `json:"type"`
}

type classifyResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Classify implements Classifier with a JSON-object-mode request;
// schema is included in the prompt as guidance since chat-completions
// JSON mode does not itself enforce a schema.
func (c *OpenAIClassifier) Classify(ctx context.Context, prompt string, schema map[string]any) (map[string]any, error) {
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("llm: marshal classifier schema: %w", err)
	}

	body := classifyRequest{
		Model: c.cfg.Model,
		Messages: []wireMessage{
			{Role: "system", Content: "Respond with a single JSON object matching this schema: " + string(schemaJSON)},
			{Role: "user", Content: prompt},
		},
		ResponseFormat: classifyRespFormat{Type: "json_object"},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("llm: marshal classify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("llm: build classify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm: classify request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("llm: classify unexpected status %d", resp.StatusCode)
	}

	var parsed classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("llm: decode classify response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("llm: classify response has no choices")
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(parsed.Choices[0].Message.Content), &out); err != nil {
		return nil, fmt.Errorf("llm: parse classify JSON: %w", err)
	}
	return out, nil
}
