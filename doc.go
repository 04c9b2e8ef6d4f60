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

// Package opscore is the multi-agent orchestration runtime behind an
// e-commerce operations assistant.
//
// A single top-level supervisor (pkg/orchestrator) curates context
// (pkg/contextbuilder), dispatches work to sub-agents (pkg/agent),
// validates input and output with an LLM-assisted guardrail
// (pkg/chokidar), and streams progress to clients over a per-conversation
// event bus (pkg/sse). Work in progress is checkpointed (pkg/checkpoint)
// so bulk operations survive guardrail-triggered retries and process
// restarts.
package opscore
