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
	"errors"
	"fmt"
	"sync"

	"github.com/opscore/orchestrator/pkg/model"
)

// ErrNotFound is returned by UpdateStatus when the index is out of range
// (spec §4.1).
var ErrNotFound = errors.New("checkpoint: task index not found")

// ErrLocked is returned by WritePlan when another writer already holds
// the plan lock for that conversation (spec §4.1).
var ErrLocked = errors.New("checkpoint: plan is locked by another writer")

// Store is the durable per-conversation plan, sidecar and checkpoint log
// described in spec §4.1. It is safe for concurrent use; each
// conversation gets its own exclusive-writer lock while readers always
// see the last-committed state (spec §5 shared-resource policy).
type Store struct {
	dir string

	mu     sync.Mutex
	locks  map[int64]*sync.Mutex
	seqMu  sync.Mutex
	seqs   map[int64]int64
	seqSet map[int64]bool
}

// NewStore creates a Store rooted at dir (created lazily on first write).
func NewStore(dir string) *Store {
	return &Store{
		dir:    dir,
		locks:  make(map[int64]*sync.Mutex),
		seqs:   make(map[int64]int64),
		seqSet: make(map[int64]bool),
	}
}

func (s *Store) lockFor(convID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[convID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[convID] = l
	}
	return l
}

// WritePlan atomically replaces the plan (and its sidecar) for a
// conversation with a fresh batch of tasks, as the planner does when it
// produces a new bulk-operation plan (spec §3 Task lifecycle).
func (s *Store) WritePlan(convID int64, tasks []model.Task, taskData []map[string]any) error {
	lock := s.lockFor(convID)
	if !lock.TryLock() {
		return ErrLocked
	}
	defer lock.Unlock()

	for i := range tasks {
		tasks[i].ConvID = convID
		tasks[i].Index = i
		if taskData != nil && i < len(taskData) {
			tasks[i].Data = taskData[i]
		}
		if err := tasks[i].Validate(); err != nil {
			return fmt.Errorf("checkpoint: write plan %d: %w", convID, err)
		}
	}

	if err := writePlanFile(s.dir, convID, tasks, nil); err != nil {
		return err
	}
	return writeSidecar(s.dir, convID, tasks)
}

// ReadPlan parses the checklist for a conversation. A missing file
// yields an empty list (spec §4.1).
func (s *Store) ReadPlan(convID int64) ([]model.Task, error) {
	return ReadPlan(s.dir, convID)
}

// UpdateStatus atomically rewrites the plan, changing exactly one task's
// status while preserving every other line verbatim. Applying the same
// update twice is a no-op (spec §8 idempotence law).
func (s *Store) UpdateStatus(convID int64, index int, status model.TaskStatus) error {
	lock := s.lockFor(convID)
	lock.Lock()
	defer lock.Unlock()

	path := planFilename(s.dir, convID)
	data, err := readFileOrEmpty(path)
	if err != nil {
		return fmt.Errorf("checkpoint: update status %d: %w", convID, err)
	}
	tasks, preserved := parsePlan(data)
	if index < 0 || index >= len(tasks) {
		return fmt.Errorf("%w: conv=%d index=%d", ErrNotFound, convID, index)
	}
	if tasks[index].Status == status {
		return nil // no-op: already at target status
	}
	tasks[index].Status = status
	for i := range tasks {
		tasks[i].ConvID = convID
	}

	if err := writePlanFile(s.dir, convID, tasks, preserved); err != nil {
		return err
	}
	return writeSidecar(s.dir, convID, tasks)
}

func readFileOrEmpty(path string) (string, error) {
	return readFile(path)
}

// AppendCheckpoint durably appends a new checkpoint, assigning the next
// monotonic seq for the conversation (spec §4.1, §8).
func (s *Store) AppendCheckpoint(convID int64, cp model.Checkpoint) (int64, error) {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()

	if !s.seqSet[convID] {
		existing, err := readCheckpoints(s.dir, convID)
		if err != nil {
			return 0, err
		}
		s.seqs[convID] = latestCheckpointSeq(existing)
		s.seqSet[convID] = true
	}

	next := s.seqs[convID] + 1
	written, err := appendCheckpointRecord(s.dir, convID, cp, next)
	if err != nil {
		return 0, err
	}
	s.seqs[convID] = next
	return written.Seq, nil
}

// LatestCheckpoint returns the most recent checkpoint for a conversation,
// or nil if none exists yet.
func (s *Store) LatestCheckpoint(convID int64) (*model.Checkpoint, error) {
	all, err := readCheckpoints(s.dir, convID)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, nil
	}
	latest := all[len(all)-1]
	return &latest, nil
}

// PendingConversations scans the checkpoint directory for conversations
// whose latest checkpoint has remaining work, without auto-resuming them
// (SPEC_FULL.md "Checkpoint recovery on process restart").
func (s *Store) PendingConversations() ([]int64, error) {
	ids, err := listPlanConversationIDs(s.dir)
	if err != nil {
		return nil, err
	}
	var pending []int64
	for _, id := range ids {
		cp, err := s.LatestCheckpoint(id)
		if err != nil || cp == nil {
			continue
		}
		if cp.Stats.Remaining > 0 {
			pending = append(pending, id)
		}
	}
	return pending, nil
}
