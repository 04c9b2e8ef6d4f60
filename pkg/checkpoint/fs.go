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
	"os"
	"strconv"
	"strings"
)

// readFile reads path, treating a missing file as empty content rather
// than an error (mirrors the "missing file => empty list" contract used
// throughout this package).
func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// writeFileHelper writes content to path, used by tests to simulate
// manually-edited or corrupted on-disk state.
func writeFileHelper(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

// listPlanConversationIDs scans dir for "TODO-{id}.md" files and returns
// the ids found, used by PendingConversations.
func listPlanConversationIDs(dir string) ([]int64, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []int64
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "TODO-") || !strings.HasSuffix(name, ".md") {
			continue
		}
		idStr := strings.TrimSuffix(strings.TrimPrefix(name, "TODO-"), ".md")
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}
