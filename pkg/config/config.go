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

// Package config loads opscored's environment-driven configuration
// (spec §6 "Environment"), with an optional Consul KV overlay for the
// handful of knobs operators tune without a redeploy: autonomy
// defaults and the tool whitelist.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is opscored's full runtime configuration, assembled from
// process environment variables with the defaults documented in
// spec §6.
type Config struct {
	// MaxContextBytes is the hard ceiling on a serialized ContextBundle
	// (spec §3, §4.5).
	MaxContextBytes int
	// MaxHistoryMessages is how many prior turns are included in agent
	// input (spec §4.9).
	MaxHistoryMessages int

	// BulkGuardMaxRetries bounds Chokidar Output Guard retries during a
	// bulk operation before it terminates (spec §4.8).
	BulkGuardMaxRetries int

	// ParallelExecutorConcurrency caps concurrent sub-agents spawned by
	// spawn_parallel_executor_agent (spec §4.6).
	ParallelExecutorConcurrency int
	// ParallelExecutorThrottle spaces successive operation starts on
	// each worker slot.
	ParallelExecutorThrottle time.Duration
	// ParallelExecutorMaxItems and ParallelExecutorMinItems bound the
	// "light-bulk" batch size the ParallelExecutorAgent accepts.
	ParallelExecutorMaxItems int
	ParallelExecutorMinItems int

	// BashTimeout bounds a single bash tool invocation (spec §4.6).
	BashTimeout time.Duration

	// OrchestratorMaxTurnsBulk and OrchestratorMaxTurnsStandard cap the
	// Supervisor's dispatch loop (spec §4.9, §5).
	OrchestratorMaxTurnsBulk     int
	OrchestratorMaxTurnsStandard int

	// HTTPAddr is the address cmd/opscored binds its HTTP+SSE server to.
	HTTPAddr string
	// JWTLogsSecret verifies the bearer token on GET /logs (spec §6).
	JWTLogsSecret string

	// ConsulAddr and ConsulOverlayKey, if both set, enable the optional
	// remote overlay for autonomy defaults and the tool whitelist.
	ConsulAddr       string
	ConsulOverlayKey string
}

// defaults mirror spec §6's documented values exactly.
func defaults() Config {
	return Config{
		MaxContextBytes:              150000,
		MaxHistoryMessages:           10,
		BulkGuardMaxRetries:          5,
		ParallelExecutorConcurrency:  5,
		ParallelExecutorThrottle:     1000 * time.Millisecond,
		ParallelExecutorMaxItems:     50,
		ParallelExecutorMinItems:     10,
		BashTimeout:                  300000 * time.Millisecond,
		OrchestratorMaxTurnsBulk:     500,
		OrchestratorMaxTurnsStandard: 100,
		HTTPAddr:                     ":8080",
	}
}

// Load reads `.env.local` then `.env` (later files filling gaps left
// by earlier ones, godotenv's own precedence), then overlays every
// recognized environment variable on top of the documented defaults.
func Load() (Config, error) {
	if err := loadEnvFiles(); err != nil {
		return Config{}, err
	}

	cfg := defaults()

	var err error
	if cfg.MaxContextBytes, err = envInt("MAX_CONTEXT_BYTES", cfg.MaxContextBytes); err != nil {
		return Config{}, err
	}
	if cfg.MaxHistoryMessages, err = envInt("MAX_HISTORY_MESSAGES", cfg.MaxHistoryMessages); err != nil {
		return Config{}, err
	}
	if cfg.BulkGuardMaxRetries, err = envInt("BULK_GUARD_MAX_RETRIES", cfg.BulkGuardMaxRetries); err != nil {
		return Config{}, err
	}
	if cfg.ParallelExecutorConcurrency, err = envInt("PARALLEL_EXECUTOR_CONCURRENCY", cfg.ParallelExecutorConcurrency); err != nil {
		return Config{}, err
	}
	if cfg.ParallelExecutorThrottle, err = envMillis("PARALLEL_EXECUTOR_THROTTLE_MS", cfg.ParallelExecutorThrottle); err != nil {
		return Config{}, err
	}
	if cfg.ParallelExecutorMaxItems, err = envInt("PARALLEL_EXECUTOR_MAX_ITEMS", cfg.ParallelExecutorMaxItems); err != nil {
		return Config{}, err
	}
	if cfg.ParallelExecutorMinItems, err = envInt("PARALLEL_EXECUTOR_MIN_ITEMS", cfg.ParallelExecutorMinItems); err != nil {
		return Config{}, err
	}
	if cfg.BashTimeout, err = envMillis("BASH_TIMEOUT_MS", cfg.BashTimeout); err != nil {
		return Config{}, err
	}
	if cfg.OrchestratorMaxTurnsBulk, err = envInt("ORCHESTRATOR_MAX_TURNS_BULK", cfg.OrchestratorMaxTurnsBulk); err != nil {
		return Config{}, err
	}
	if cfg.OrchestratorMaxTurnsStandard, err = envInt("ORCHESTRATOR_MAX_TURNS_STANDARD", cfg.OrchestratorMaxTurnsStandard); err != nil {
		return Config{}, err
	}

	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	cfg.JWTLogsSecret = os.Getenv("LOGS_JWT_SECRET")
	cfg.ConsulAddr = os.Getenv("CONSUL_ADDR")
	cfg.ConsulOverlayKey = os.Getenv("CONSUL_OVERLAY_KEY")

	return cfg, nil
}

func loadEnvFiles() error {
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("config: load %s: %w", name, err)
		}
	}
	return nil
}

func envInt(name string, fallback int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer, got %q: %w", name, v, err)
	}
	return n, nil
}

func envMillis(name string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer number of milliseconds, got %q: %w", name, v, err)
	}
	return time.Duration(n) * time.Millisecond, nil
}
