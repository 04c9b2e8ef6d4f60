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

package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/opscore/orchestrator/pkg/model"
)

// sidecarTask mirrors spec §6's structured task sidecar shape.
type sidecarTask struct {
	Description string         `json:"description"`
	Data        map[string]any `json:"data,omitempty"`
	Status      model.TaskStatus `json:"status"`
	Index       int            `json:"index"`
}

// sidecarDoc is the on-disk JSON document for "TODO-{conv_id}-data.json".
type sidecarDoc struct {
	ConversationID string        `json:"conversationId"`
	Created        time.Time     `json:"created"`
	Tasks          []sidecarTask `json:"tasks"`
}

func sidecarFilename(dir string, convID int64) string {
	return filepath.Join(dir, fmt.Sprintf("TODO-%d-data.json", convID))
}

// readSidecar loads the structured task data. A missing or corrupt
// sidecar is treated as empty rather than fatal (spec §8 scenario 6:
// "sidecar file is corrupt ... no Run crash"); it is rebuilt on the next
// writeSidecar call.
func readSidecar(dir string, convID int64) (sidecarDoc, error) {
	path := sidecarFilename(dir, convID)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return sidecarDoc{ConversationID: fmt.Sprintf("%d", convID)}, nil
	}
	if err != nil {
		return sidecarDoc{ConversationID: fmt.Sprintf("%d", convID)}, nil
	}
	var doc sidecarDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		// Corrupt sidecar: degrade to empty rather than propagate.
		return sidecarDoc{ConversationID: fmt.Sprintf("%d", convID)}, nil
	}
	return doc, nil
}

// writeSidecar atomically rewrites the sidecar, always describing the
// same index space as the plan file (spec §4.1 invariant).
func writeSidecar(dir string, convID int64, tasks []model.Task) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("checkpoint: mkdir %s: %w", dir, err)
	}
	doc := sidecarDoc{
		ConversationID: fmt.Sprintf("%d", convID),
		Created:        time.Now().UTC(),
	}
	for _, t := range tasks {
		doc.Tasks = append(doc.Tasks, sidecarTask{
			Description: t.Description,
			Data:        t.Data,
			Status:      t.Status,
			Index:       t.Index,
		})
	}

	path := sidecarFilename(dir, convID)
	tmp, err := os.CreateTemp(dir, fmt.Sprintf(".TODO-%d-data-*.json.tmp", convID))
	if err != nil {
		return fmt.Errorf("checkpoint: create temp sidecar: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		tmp.Close()
		return fmt.Errorf("checkpoint: encode sidecar: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("checkpoint: close temp sidecar: %w", err)
	}
	return os.Rename(tmpPath, path)
}
