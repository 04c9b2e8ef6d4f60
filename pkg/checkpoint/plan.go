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

// Package checkpoint implements the per-conversation plan, structured
// task sidecar and append-only checkpoint log described in spec §4.1 and
// §6 (the "TODO-{conv_id}.md" / "TODO-{conv_id}-data.json" / checkpoint
// record formats).
package checkpoint

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/opscore/orchestrator/pkg/model"
)

const (
	markerDone       = "[x]"
	markerPending    = "[ ]"
	inProgressPrefix = "🔄 "
)

// planFilename returns the plan file path for a conversation, matching
// the "TODO-{conv_id}.md" naming from spec §6.
func planFilename(dir string, convID int64) string {
	return filepath.Join(dir, fmt.Sprintf("TODO-%d.md", convID))
}

// renderPlan serializes tasks into the checklist format. It preserves any
// unknown lines it was given from a prior read so non-task content
// survives rewrites (spec §6: "other lines are ignored but preserved").
func renderPlan(tasks []model.Task, preserved []string) string {
	var b strings.Builder
	for _, line := range preserved {
		b.WriteString(line)
		b.WriteString("\n")
	}
	for _, t := range tasks {
		switch t.Status {
		case model.TaskCompleted:
			fmt.Fprintf(&b, "- %s %s\n", markerDone, t.Description)
		case model.TaskInProgress:
			fmt.Fprintf(&b, "- %s %s%s\n", markerPending, inProgressPrefix, t.Description)
		default:
			fmt.Fprintf(&b, "- %s %s\n", markerPending, t.Description)
		}
	}
	return b.String()
}

// parsePlan recognizes the three line shapes documented in spec §6 and
// returns the tasks in file order plus every line that did not match one
// of those shapes (so writePlan can preserve it).
func parsePlan(content string) (tasks []model.Task, preserved []string) {
	scanner := bufio.NewScanner(strings.NewReader(content))
	index := 0
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		var status model.TaskStatus
		var rest string
		switch {
		case strings.HasPrefix(trimmed, "- "+markerDone+" "):
			status = model.TaskCompleted
			rest = strings.TrimPrefix(trimmed, "- "+markerDone+" ")
		case strings.HasPrefix(trimmed, "- "+markerPending+" "+inProgressPrefix):
			status = model.TaskInProgress
			rest = strings.TrimPrefix(trimmed, "- "+markerPending+" "+inProgressPrefix)
		case strings.HasPrefix(trimmed, "- "+markerPending+" "):
			status = model.TaskPending
			rest = strings.TrimPrefix(trimmed, "- "+markerPending+" ")
		default:
			preserved = append(preserved, line)
			continue
		}

		tasks = append(tasks, model.Task{
			Index:       index,
			Description: rest,
			Status:      status,
		})
		index++
	}
	return tasks, preserved
}

// ReadPlan loads the Task list for a conversation. A missing file yields
// an empty list, per spec §4.1.
func ReadPlan(dir string, convID int64) ([]model.Task, error) {
	path := planFilename(dir, convID)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint: read plan %d: %w", convID, err)
	}
	tasks, _ := parsePlan(string(data))
	for i := range tasks {
		tasks[i].ConvID = convID
	}
	return tasks, nil
}

// writePlanFile atomically replaces the plan file using a temp-file then
// rename, so a crash mid-write never leaves a half-written checklist
// (spec §4.1 invariant).
func writePlanFile(dir string, convID int64, tasks []model.Task, preserved []string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("checkpoint: mkdir %s: %w", dir, err)
	}
	path := planFilename(dir, convID)
	tmp, err := os.CreateTemp(dir, fmt.Sprintf(".TODO-%d-*.md.tmp", convID))
	if err != nil {
		return fmt.Errorf("checkpoint: create temp plan: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.WriteString(renderPlan(tasks, preserved)); err != nil {
		tmp.Close()
		return fmt.Errorf("checkpoint: write temp plan: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("checkpoint: close temp plan: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("checkpoint: rename temp plan: %w", err)
	}
	return nil
}

// validateDenseIndex enforces the spec §3 invariant that Index is dense
// and zero-based within a plan.
func validateDenseIndex(tasks []model.Task) error {
	for i, t := range tasks {
		if t.Index != i {
			return fmt.Errorf("checkpoint: task index %d is not dense (expected %d)", t.Index, i)
		}
	}
	return nil
}

// formatIndex renders an index for error messages.
func formatIndex(i int) string {
	return strconv.Itoa(i)
}
