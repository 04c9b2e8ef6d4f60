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

package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"MAX_CONTEXT_BYTES", "MAX_HISTORY_MESSAGES", "BULK_GUARD_MAX_RETRIES",
		"PARALLEL_EXECUTOR_CONCURRENCY", "PARALLEL_EXECUTOR_THROTTLE_MS",
		"PARALLEL_EXECUTOR_MAX_ITEMS", "PARALLEL_EXECUTOR_MIN_ITEMS",
		"BASH_TIMEOUT_MS", "ORCHESTRATOR_MAX_TURNS_BULK", "ORCHESTRATOR_MAX_TURNS_STANDARD",
		"HTTP_ADDR", "LOGS_JWT_SECRET", "CONSUL_ADDR", "CONSUL_OVERLAY_KEY",
	} {
		t.Setenv(name, "")
	}
}

func TestLoadAppliesDocumentedDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, 150000, cfg.MaxContextBytes)
	require.Equal(t, 10, cfg.MaxHistoryMessages)
	require.Equal(t, 5, cfg.BulkGuardMaxRetries)
	require.Equal(t, 5, cfg.ParallelExecutorConcurrency)
	require.Equal(t, 1000*time.Millisecond, cfg.ParallelExecutorThrottle)
	require.Equal(t, 50, cfg.ParallelExecutorMaxItems)
	require.Equal(t, 10, cfg.ParallelExecutorMinItems)
	require.Equal(t, 300000*time.Millisecond, cfg.BashTimeout)
	require.Equal(t, 500, cfg.OrchestratorMaxTurnsBulk)
	require.Equal(t, 100, cfg.OrchestratorMaxTurnsStandard)
}

func TestLoadOverridesFromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("MAX_CONTEXT_BYTES", "200000")
	t.Setenv("PARALLEL_EXECUTOR_THROTTLE_MS", "2500")
	t.Setenv("ORCHESTRATOR_MAX_TURNS_STANDARD", "42")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 200000, cfg.MaxContextBytes)
	require.Equal(t, 2500*time.Millisecond, cfg.ParallelExecutorThrottle)
	require.Equal(t, 42, cfg.OrchestratorMaxTurnsStandard)
}

func TestLoadRejectsNonIntegerOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("MAX_CONTEXT_BYTES", "not-a-number")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadPolicyMissingFileIsEmpty(t *testing.T) {
	p, err := LoadPolicy("/nonexistent/policy.yaml")
	require.NoError(t, err)
	require.Empty(t, p.AutonomyDefaults)
	require.Empty(t, p.ToolWhitelist)
}

func TestLoadPolicyParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/policy.yaml"
	require.NoError(t, os.WriteFile(path, []byte("autonomy_defaults:\n  bulk_operation: supervised\ntool_whitelist:\n  - get_product\n  - update_inventory\n"), 0o644))

	p, err := LoadPolicy(path)
	require.NoError(t, err)
	require.Equal(t, "supervised", p.AutonomyDefaults["bulk_operation"])
	require.Equal(t, []string{"get_product", "update_inventory"}, p.ToolWhitelist)
}

func TestLoadConsulOverlayNoopWithoutAddrOrKey(t *testing.T) {
	base := Policy{AutonomyDefaults: map[string]string{"exploratory": "autonomous"}}

	merged, err := LoadConsulOverlay(base, "", "opscore/policy")
	require.NoError(t, err)
	require.Equal(t, base, merged)

	merged, err = LoadConsulOverlay(base, "127.0.0.1:8500", "")
	require.NoError(t, err)
	require.Equal(t, base, merged)
}
