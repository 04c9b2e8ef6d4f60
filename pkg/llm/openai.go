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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIConfig configures the OpenAI-compatible reference ChatModel
// adapter. BaseURL may point at any OpenAI-protocol-compatible
// endpoint (including OpenRouter), matching the black-box contract in
// spec §1.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// OpenAIChatModel is a reference ChatModel implementation against the
// OpenAI chat-completions streaming API.
type OpenAIChatModel struct {
	cfg    OpenAIConfig
	client *http.Client
	log    *slog.Logger
}

// NewOpenAIChatModel builds an OpenAIChatModel from cfg, applying
// documented defaults for unset fields.
func NewOpenAIChatModel(cfg OpenAIConfig, log *slog.Logger) *OpenAIChatModel {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenAIBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &OpenAIChatModel{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log,
	}
}

// ModelName implements ChatModel.
func (p *OpenAIChatModel) ModelName() string { return p.cfg.Model }

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Name       string         `json:"name,omitempty"`
}

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type wireTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Tools       []wireTool    `json:"tools,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

type wireStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string         `json:"content"`
			ToolCalls []wireToolCall `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

func toWireMessages(messages []Message) []wireMessage {
	out := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		wm := wireMessage{Role: string(m.Role), Content: m.Content, ToolCallID: m.ToolCallID, Name: m.Name}
		for _, tc := range m.ToolCalls {
			args, _ := json.Marshal(tc.Arguments)
			wtc := wireToolCall{ID: tc.ID, Type: "function"}
			wtc.Function.Name = tc.Name
			wtc.Function.Arguments = string(args)
			wm.ToolCalls = append(wm.ToolCalls, wtc)
		}
		out = append(out, wm)
	}
	return out
}

func toWireTools(tools []ToolDefinition) []wireTool {
	out := make([]wireTool, 0, len(tools))
	for _, t := range tools {
		wt := wireTool{Type: "function"}
		wt.Function.Name = t.Name
		wt.Function.Description = t.Description
		wt.Function.Parameters = t.Parameters
		out = append(out, wt)
	}
	return out
}

// Stream implements ChatModel by issuing a streaming chat-completions
// request and translating server-sent-event frames into StreamChunks.
func (p *OpenAIChatModel) Stream(ctx context.Context, messages []Message, tools []ToolDefinition) (<-chan StreamChunk, error) {
	body := wireRequest{
		Model:       p.cfg.Model,
		Messages:    toWireMessages(messages),
		Tools:       toWireTools(tools),
		Temperature: p.cfg.Temperature,
		MaxTokens:   p.cfg.MaxTokens,
		Stream:      true,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("llm: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("llm: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm: request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("llm: unexpected status %d", resp.StatusCode)
	}

	out := make(chan StreamChunk, 16)
	go p.pump(resp.Body, out)
	return out, nil
}

func (p *OpenAIChatModel) pump(body io.ReadCloser, out chan<- StreamChunk) {
	defer close(out)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var totalTokens int
	// partialCalls accumulates tool-call argument fragments keyed by
	// their streamed index, since providers emit them incrementally.
	partialCalls := map[int]*ToolCall{}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}

		var chunk wireStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			p.log.Warn("llm: skipping malformed stream chunk", "error", err)
			continue
		}
		if chunk.Usage != nil {
			totalTokens = chunk.Usage.TotalTokens
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				out <- StreamChunk{Type: ChunkText, Text: choice.Delta.Content}
			}
			for i, tc := range choice.Delta.ToolCalls {
				existing, ok := partialCalls[i]
				if !ok {
					existing = &ToolCall{ID: tc.ID, Name: tc.Function.Name}
					partialCalls[i] = existing
				}
				if tc.Function.Arguments != "" {
					mergeToolCallArgs(existing, tc.Function.Arguments)
				}
			}
			if choice.FinishReason == "tool_calls" {
				for _, tc := range partialCalls {
					tcCopy := *tc
					out <- StreamChunk{Type: ChunkToolCall, ToolCall: &tcCopy}
				}
				partialCalls = map[int]*ToolCall{}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		out <- StreamChunk{Type: ChunkError, Err: fmt.Errorf("llm: stream read: %w", err)}
		return
	}
	out <- StreamChunk{Type: ChunkDone, Tokens: totalTokens}
}

// mergeToolCallArgs appends a streamed JSON-argument fragment and, once
// the buffer parses as valid JSON, decodes it into tc.Arguments.
func mergeToolCallArgs(tc *ToolCall, fragment string) {
	if tc.Arguments == nil {
		tc.Arguments = map[string]any{"__raw": ""}
	}
	raw, _ := tc.Arguments["__raw"].(string)
	raw += fragment
	var parsed map[string]any
	if json.Unmarshal([]byte(raw), &parsed) == nil {
		tc.Arguments = parsed
		return
	}
	tc.Arguments = map[string]any{"__raw": raw}
}
