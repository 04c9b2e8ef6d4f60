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

package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBashToolRunsCommand(t *testing.T) {
	tool := NewBashTool(BashConfig{}, func(string) (string, bool) { return "", false })

	result, err := tool.Invoke(context.Background(), map[string]any{"command": "echo hello"})
	require.NoError(t, err)
	require.Contains(t, result.Content, "hello")
	require.Empty(t, result.Error)
}

func TestBashToolRefusesDangerousCommand(t *testing.T) {
	tool := NewBashTool(BashConfig{}, nil)

	_, err := tool.Invoke(context.Background(), map[string]any{"command": "rm -rf /"})
	require.ErrorIs(t, err, ErrRefused)
}

func TestBashToolRefusesForkBomb(t *testing.T) {
	tool := NewBashTool(BashConfig{}, nil)

	_, err := tool.Invoke(context.Background(), map[string]any{"command": ":(){ :|:& };:"})
	require.ErrorIs(t, err, ErrRefused)
}

func TestBashToolAllowsSafeRmCommand(t *testing.T) {
	tool := NewBashTool(BashConfig{}, nil)

	_, err := tool.Invoke(context.Background(), map[string]any{"command": "rm -rf ./tmp/scratch"})
	require.NoError(t, err)
}

func TestBashToolScrubsEnvironmentExceptForwarded(t *testing.T) {
	env := map[string]string{"API_TOKEN": "secret-value", "HOME": "/root"}
	tool := NewBashTool(BashConfig{ForwardedEnv: []string{"API_TOKEN"}}, func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	})

	result, err := tool.Invoke(context.Background(), map[string]any{"command": "env"})
	require.NoError(t, err)
	require.Contains(t, result.Content, "API_TOKEN=secret-value")
	require.NotContains(t, result.Content, "HOME=/root")
}

func TestBashToolReturnsExitCodeOnFailure(t *testing.T) {
	tool := NewBashTool(BashConfig{}, nil)

	result, err := tool.Invoke(context.Background(), map[string]any{"command": "exit 3"})
	require.Error(t, err)
	require.Contains(t, result.Content, "exit_code=3")
}
