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

// Package sse implements the SSE Event Bus (C10, spec §4.11):
// per-conversation pub/sub with newline-delimited event/data frames.
// Writes never block the supervisor; a slow or disconnected client
// silently drops frames rather than backing up the publisher.
package sse

import (
	"encoding/json"
	"strconv"
	"sync"
)

// defaultBufferSize is the bounded per-client channel depth. Once
// full, the oldest buffered frame is dropped to make room for the
// newest (spec §4.11: "must not block the supervisor on a slow
// client").
const defaultBufferSize = 64

// Event is one frame emitted on the bus.
type Event struct {
	ConvID int64
	Name   string
	Data   json.RawMessage
}

// Known event names (spec §4.11, non-exhaustive).
const (
	EventStart           = "start"
	EventConversationID  = "conversation_id"
	EventAgentProcessing = "agent_processing"
	EventAssistantDelta  = "assistant_delta"
	EventToolCall        = "tool_call"
	EventAgentToolCall   = "agent_tool_call"
	EventTaskPlanCreated = "task_plan_created"
	EventTaskSummary     = "task_summary"
	EventInterrupted     = "interrupted"
	EventError           = "error"
	EventDone            = "done"
)

type client struct {
	userID string
	convID int64
	ch     chan Event
}

// Bus is the per-conversation pub/sub event bus. It is safe for
// concurrent use.
type Bus struct {
	mu      sync.RWMutex
	clients map[string]*client
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{clients: make(map[string]*client)}
}

// Sink receives Events for one subscriber.
type Sink <-chan Event

// Subscribe registers a sink for userID scoped to convID and returns
// both the read-only channel and an unsubscribe function. Each
// subscriber gets its own bounded, drop-oldest buffer (spec §4.11).
func (b *Bus) Subscribe(userID string, convID int64) (Sink, func()) {
	c := &client{userID: userID, convID: convID, ch: make(chan Event, defaultBufferSize)}

	key := subscriberKey(userID, convID)
	b.mu.Lock()
	b.clients[key] = c
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if existing, ok := b.clients[key]; ok && existing == c {
			delete(b.clients, key)
			close(c.ch)
		}
	}
	return c.ch, unsubscribe
}

// Emit publishes payload as a JSON-encoded event frame to every
// subscriber of convID. Emit never blocks: a full subscriber buffer
// has its oldest frame dropped to make room (spec §4.11). A marshal
// failure is swallowed; the bus is not the place to fail a Run.
func (b *Bus) Emit(convID int64, eventName string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	ev := Event{ConvID: convID, Name: eventName, Data: data}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, c := range b.clients {
		if c.convID != convID {
			continue
		}
		send(c.ch, ev)
	}
}

// send delivers ev to ch without blocking, dropping the oldest queued
// frame when the buffer is full.
func send(ch chan Event, ev Event) {
	select {
	case ch <- ev:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- ev:
	default:
		// Subscriber is draining concurrently and the buffer filled
		// again; drop this frame rather than block.
	}
}

// Close unsubscribes and closes every sink registered for convID
// (spec §4.11: "close(conv_id)").
func (b *Bus) Close(convID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for key, c := range b.clients {
		if c.convID == convID {
			close(c.ch)
			delete(b.clients, key)
		}
	}
}

func subscriberKey(userID string, convID int64) string {
	return userID + ":" + strconv.FormatInt(convID, 10)
}
