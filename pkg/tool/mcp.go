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
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// MCPConfig configures a stdio-transport MCP tool source (spec §4.4:
// tools come from pluggable external providers).
type MCPConfig struct {
	Name     string
	Command  string
	Args     []string
	Env      map[string]string
	ReadOnly bool
}

// MCPSource discovers tools from an MCP server reached over stdio.
type MCPSource struct {
	cfg MCPConfig

	mu     sync.Mutex
	client *client.Client
}

// NewMCPSource returns an MCPSource that connects lazily on the first
// DiscoverTools call.
func NewMCPSource(cfg MCPConfig) *MCPSource {
	return &MCPSource{cfg: cfg}
}

// Name implements Source.
func (s *MCPSource) Name() string { return s.cfg.Name }

// DiscoverTools connects to the MCP server (if not already connected)
// and lists its available tools, wrapped to satisfy Tool.
func (s *MCPSource) DiscoverTools(ctx context.Context) ([]Tool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		if err := s.connect(ctx); err != nil {
			return nil, err
		}
	}

	resp, err := s.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("tool: mcp list tools from %s: %w", s.cfg.Name, err)
	}

	tools := make([]Tool, 0, len(resp.Tools))
	for _, mt := range resp.Tools {
		schema, err := schemaToMap(mt.InputSchema)
		if err != nil {
			schema = map[string]any{"type": "object"}
		}
		tools = append(tools, &mcpTool{
			source:   s,
			name:     mt.Name,
			desc:     mt.Description,
			schema:   schema,
			readOnly: s.cfg.ReadOnly,
		})
	}
	return tools, nil
}

func (s *MCPSource) connect(ctx context.Context) error {
	envPairs := make([]string, 0, len(s.cfg.Env))
	for k, v := range s.cfg.Env {
		envPairs = append(envPairs, fmt.Sprintf("%s=%s", k, v))
	}

	c, err := client.NewStdioMCPClient(s.cfg.Command, envPairs, s.cfg.Args...)
	if err != nil {
		return fmt.Errorf("tool: create mcp client for %s: %w", s.cfg.Name, err)
	}
	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("tool: start mcp client for %s: %w", s.cfg.Name, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: "opscore-orchestrator", Version: "0.1.0"}
	initReq.Params.ProtocolVersion = "2024-11-05"
	if _, err := c.Initialize(ctx, initReq); err != nil {
		c.Close()
		return fmt.Errorf("tool: initialize mcp client for %s: %w", s.cfg.Name, err)
	}

	s.client = c
	return nil
}

func schemaToMap(schema mcp.ToolInputSchema) (map[string]any, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// mcpTool adapts one MCP server-side tool to the Tool interface.
type mcpTool struct {
	source   *MCPSource
	name     string
	desc     string
	schema   map[string]any
	readOnly bool
}

func (t *mcpTool) Name() string           { return t.name }
func (t *mcpTool) Description() string    { return t.desc }
func (t *mcpTool) Schema() map[string]any { return t.schema }
func (t *mcpTool) ReadOnly() bool         { return t.readOnly }

func (t *mcpTool) Invoke(ctx context.Context, args map[string]any) (Result, error) {
	t.source.mu.Lock()
	c := t.source.client
	t.source.mu.Unlock()
	if c == nil {
		return Result{}, fmt.Errorf("tool: mcp source %s is not connected", t.source.cfg.Name)
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = t.name
	req.Params.Arguments = args

	resp, err := c.CallTool(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("tool: mcp call %s: %w", t.name, err)
	}

	var content string
	for _, block := range resp.Content {
		if tc, ok := block.(mcp.TextContent); ok {
			content += tc.Text
		}
	}
	if resp.IsError {
		return Result{Error: content}, nil
	}
	return Result{Content: content}, nil
}
