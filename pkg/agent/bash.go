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

// Package agent implements the Agent Factory (C6, spec §4.6):
// BashAgent, SoftwareEngineeringAgent and ParallelExecutorAgent, each
// built per-task from a ContextBundle and wired with the tools the
// spec grants it.
package agent

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/opscore/orchestrator/pkg/tool"
)

// defaultBashTimeout is the bash capability's default execution budget
// (spec §4.6).
const defaultBashTimeout = 5 * time.Minute

// maxOutputBytes bounds how much of a command's combined stdout/stderr
// is logged and returned, protecting the logging budget.
const maxOutputBytes = 32 * 1024

// refusalPatterns are the statically-refused dangerous commands (spec
// §4.6). They are checked against the command text after whitespace
// normalization, not just the base executable, since the dangerous
// shapes here are argument-dependent (e.g. "rm -rf /" vs "rm -rf ./tmp").
var refusalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\brm\s+(-\w*r\w*f\w*|-\w*f\w*r\w*)\s+/\s*$`),
	regexp.MustCompile(`\brm\s+(-\w*r\w*f\w*|-\w*f\w*r\w*)\s+/(\s|$)`),
	regexp.MustCompile(`:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;\s*:`),
	regexp.MustCompile(`\bmkfs(\.\w+)?\b`),
	regexp.MustCompile(`\bdd\s+.*\bif=.*\bof=/dev/`),
}

// ErrRefused is returned when a requested bash command matches a
// static refusal pattern.
var ErrRefused = fmt.Errorf("command refused: matches a disallowed pattern")

// BashConfig configures the bash capability.
type BashConfig struct {
	WorkingDir string
	Timeout    time.Duration
	// ForwardedEnv lists environment variable names that pass through
	// from the host process despite the scrubbed environment (spec
	// §4.6: "scrubbed except for explicitly forwarded credentials").
	ForwardedEnv []string
}

func (c BashConfig) withDefaults() BashConfig {
	if c.WorkingDir == "" {
		c.WorkingDir = "."
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultBashTimeout
	}
	return c
}

// BashTool is the `bash` capability shared by BashAgent and
// SoftwareEngineeringAgent: a scrubbed-environment shell executor with
// static refusal of destructive command shapes.
type BashTool struct {
	cfg BashConfig
	env environLookup
}

type environLookup func(name string) (string, bool)

// NewBashTool builds a BashTool. lookupEnv is used to resolve
// ForwardedEnv names; pass os.LookupEnv in production.
func NewBashTool(cfg BashConfig, lookupEnv environLookup) *BashTool {
	return &BashTool{cfg: cfg.withDefaults(), env: lookupEnv}
}

func (t *BashTool) Name() string        { return "bash" }
func (t *BashTool) Description() string { return "Run a shell command in a working directory." }
func (t *BashTool) ReadOnly() bool      { return false }

func (t *BashTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command":     map[string]any{"type": "string", "description": "Shell command to run."},
			"working_dir": map[string]any{"type": "string", "description": "Override working directory for this call."},
		},
		"required": []any{"command"},
	}
}

// Invoke runs args["command"], refusing statically dangerous shapes
// before ever forking a process, and returns the command's verbatim
// (budget-truncated) combined output and exit code.
func (t *BashTool) Invoke(ctx context.Context, args map[string]any) (tool.Result, error) {
	command, _ := args["command"].(string)
	if command == "" {
		return tool.Result{Error: "command is required"}, fmt.Errorf("command is required")
	}
	if isRefused(command) {
		return tool.Result{Error: ErrRefused.Error()}, ErrRefused
	}

	workDir := t.cfg.WorkingDir
	if wd, ok := args["working_dir"].(string); ok && wd != "" {
		workDir = wd
	}

	runCtx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Dir = workDir
	cmd.Env = t.scrubbedEnv()

	out, err := cmd.CombinedOutput()

	exitCode := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	}
	content := fmt.Sprintf("$ %s\n(working_dir=%s, exit_code=%d)\n%s", command, workDir, exitCode, truncateOutput(string(out)))

	result := tool.Result{Content: content}
	if err != nil {
		result.Error = err.Error()
	}
	return result, err
}

// isRefused reports whether command matches one of the static refusal
// patterns (spec §4.6).
func isRefused(command string) bool {
	normalized := strings.Join(strings.Fields(command), " ")
	for _, re := range refusalPatterns {
		if re.MatchString(normalized) {
			return true
		}
	}
	return false
}

// scrubbedEnv returns an environment containing only ForwardedEnv
// names resolved via t.env, never the host process's full environment.
func (t *BashTool) scrubbedEnv() []string {
	var env []string
	for _, name := range t.cfg.ForwardedEnv {
		if t.env == nil {
			continue
		}
		if v, ok := t.env(name); ok {
			env = append(env, name+"="+v)
		}
	}
	return env
}

func truncateOutput(s string) string {
	if len(s) <= maxOutputBytes {
		return s
	}
	return s[:maxOutputBytes] + fmt.Sprintf("\n[... output truncated, %d bytes total ...]", len(s))
}
