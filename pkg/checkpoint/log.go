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
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/opscore/orchestrator/pkg/model"
)

func logFilename(dir string, convID int64) string {
	return filepath.Join(dir, fmt.Sprintf("checkpoints-%d.jsonl", convID))
}

// appendCheckpointRecord durably appends one JSONL record and returns the
// seq it was assigned. Sequences are strictly increasing per conversation
// (spec §8).
func appendCheckpointRecord(dir string, convID int64, cp model.Checkpoint, nextSeq int64) (model.Checkpoint, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return cp, fmt.Errorf("checkpoint: mkdir %s: %w", dir, err)
	}
	cp.ConvID = convID
	cp.Seq = nextSeq

	f, err := os.OpenFile(logFilename(dir, convID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return cp, fmt.Errorf("checkpoint: open log %d: %w", convID, err)
	}
	defer f.Close()

	line, err := json.Marshal(cp)
	if err != nil {
		return cp, fmt.Errorf("checkpoint: marshal checkpoint: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return cp, fmt.Errorf("checkpoint: write log %d: %w", convID, err)
	}
	// fsync so the checkpoint is durable before return (spec §4.1).
	if err := f.Sync(); err != nil {
		return cp, fmt.Errorf("checkpoint: sync log %d: %w", convID, err)
	}
	return cp, nil
}

// readCheckpoints reads every checkpoint record for a conversation in
// file (== seq) order. A missing log yields an empty slice.
func readCheckpoints(dir string, convID int64) ([]model.Checkpoint, error) {
	f, err := os.Open(logFilename(dir, convID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint: open log %d: %w", convID, err)
	}
	defer f.Close()

	var out []model.Checkpoint
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var cp model.Checkpoint
		if err := json.Unmarshal(line, &cp); err != nil {
			continue // tolerate a torn trailing write from a crash
		}
		cp.ConvID = convID
		out = append(out, cp)
	}
	return out, scanner.Err()
}

// latestCheckpointSeq returns the highest seq present in the log, or 0 if
// none exists, used to compute the next seq to assign.
func latestCheckpointSeq(checkpoints []model.Checkpoint) int64 {
	var max int64
	for _, cp := range checkpoints {
		if cp.Seq > max {
			max = cp.Seq
		}
	}
	return max
}
