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

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opscore/orchestrator/pkg/agent"
	"github.com/opscore/orchestrator/pkg/checkpoint"
	"github.com/opscore/orchestrator/pkg/chokidar"
	"github.com/opscore/orchestrator/pkg/contextbuilder"
	"github.com/opscore/orchestrator/pkg/conversation"
	"github.com/opscore/orchestrator/pkg/llm"
	"github.com/opscore/orchestrator/pkg/model"
	"github.com/opscore/orchestrator/pkg/observability"
	"github.com/opscore/orchestrator/pkg/sse"
	"github.com/opscore/orchestrator/pkg/tool"
)

// Sub-agent spawn tool names the dispatch loop intercepts before
// reaching the generic Tool Registry (spec §4.9 step 5, §4.6 Agent
// Factory).
const (
	ToolSpawnBashAgent        = "spawn_bash_agent"
	ToolSpawnSoftwareEngineer = "spawn_software_engineering_agent"
	ToolSpawnParallelExecutor = "spawn_parallel_executor_agent"
)

const (
	defaultMaxTurnsBulk     = 500
	defaultMaxTurnsStandard = 100
	defaultHistoryMessages  = 10
)

// ErrBusy is returned by Run when a Run is already active for the
// requested conversation (spec §5: "exactly one active Run per
// conversation; overlapping requests ... rejected with Busy").
var ErrBusy = errors.New("orchestrator: a Run is already active for this conversation")

// RunRequest is one incoming user turn (spec §6 POST /run).
type RunRequest struct {
	ConvID    int64
	UserID    string
	Message   string
	ForceFull bool
}

// Config wires a Supervisor's dependencies. ChatModel, Registry,
// Builder, Conversations, and Bus are required; every other field has
// a documented default.
type Config struct {
	ChatModel     llm.ChatModel
	Registry      *tool.Registry
	Builder       *contextbuilder.Builder
	Conversations *conversation.Manager
	Bus           *sse.Bus
	Checkpoints   *checkpoint.Store
	InputGuard    *chokidar.InputGuard
	OutputGuard   *chokidar.OutputGuard
	DataExtractor *chokidar.DataExtractor
	Metrics       *observability.Metrics
	Tracer        trace.Tracer

	BashConfig    agent.BashConfig
	BashLookupEnv func(name string) (string, bool)
	DocTools      []tool.Tool

	// MaxTurnsBulk and MaxTurnsStandard cap the dispatch loop (spec §6
	// ORCHESTRATOR_MAX_TURNS_BULK / _STANDARD). Zero uses the documented
	// defaults (500 / 100).
	MaxTurnsBulk     int
	MaxTurnsStandard int
}

// Supervisor is the Orchestrator Supervisor (C8). It is safe for
// concurrent use by multiple conversations; exactly one Run may be
// active per conversation at a time.
type Supervisor struct {
	chatModel     llm.ChatModel
	registry      *tool.Registry
	builder       *contextbuilder.Builder
	conversations *conversation.Manager
	bus           *sse.Bus
	checkpoints   *checkpoint.Store
	inputGuard    *chokidar.InputGuard
	outputGuard   *chokidar.OutputGuard
	dataExtractor *chokidar.DataExtractor
	metrics       *observability.Metrics
	tracer        trace.Tracer

	bashConfig    agent.BashConfig
	bashLookupEnv func(name string) (string, bool)
	docTools      []tool.Tool

	maxTurnsBulk     int
	maxTurnsStandard int

	mu     sync.Mutex
	active map[int64]context.CancelFunc
	bulk   map[int64]*model.BulkOperationState
}

// New builds a Supervisor from cfg.
func New(cfg Config) *Supervisor {
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = observability.Tracer("orchestrator")
	}
	maxBulk := cfg.MaxTurnsBulk
	if maxBulk <= 0 {
		maxBulk = defaultMaxTurnsBulk
	}
	maxStandard := cfg.MaxTurnsStandard
	if maxStandard <= 0 {
		maxStandard = defaultMaxTurnsStandard
	}
	lookupEnv := cfg.BashLookupEnv
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}

	return &Supervisor{
		chatModel:        cfg.ChatModel,
		registry:         cfg.Registry,
		builder:          cfg.Builder,
		conversations:    cfg.Conversations,
		bus:              cfg.Bus,
		checkpoints:      cfg.Checkpoints,
		inputGuard:       cfg.InputGuard,
		outputGuard:      cfg.OutputGuard,
		dataExtractor:    cfg.DataExtractor,
		metrics:          cfg.Metrics,
		tracer:           tracer,
		bashConfig:       cfg.BashConfig,
		bashLookupEnv:    lookupEnv,
		docTools:         cfg.DocTools,
		maxTurnsBulk:     maxBulk,
		maxTurnsStandard: maxStandard,
		active:           make(map[int64]context.CancelFunc),
		bulk:             make(map[int64]*model.BulkOperationState),
	}
}

// Interrupt aborts the active Run on convID, if any (spec §4.9
// "Cancellation"). It reports whether a Run was actually running.
func (s *Supervisor) Interrupt(convID int64) bool {
	s.mu.Lock()
	cancel, ok := s.active[convID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

// tryActivate reserves convID as busy with a no-op placeholder
// canceller; Run immediately replaces it with the real one via
// setCancel once its working context exists.
func (s *Supervisor) tryActivate(convID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.active[convID]; busy {
		return false
	}
	s.active[convID] = func() {}
	return true
}

func (s *Supervisor) setCancel(convID int64, cancel context.CancelFunc) {
	s.mu.Lock()
	s.active[convID] = cancel
	s.mu.Unlock()
}

func (s *Supervisor) deactivate(convID int64) {
	s.mu.Lock()
	delete(s.active, convID)
	s.mu.Unlock()
}

func (s *Supervisor) bulkStateFor(convID int64) *model.BulkOperationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.bulk[convID]
	if !ok {
		st = &model.BulkOperationState{ConversationID: convID}
		s.bulk[convID] = st
	}
	return st
}

// Run executes the Run state machine for one user turn (spec §4.9).
// It blocks until the Run reaches a terminal state. Run returns
// ErrBusy immediately if a Run is already active for req.ConvID.
func (s *Supervisor) Run(ctx context.Context, req RunRequest) error {
	if !s.tryActivate(req.ConvID) {
		return ErrBusy
	}
	defer s.deactivate(req.ConvID)

	// The cancellation token Interrupt aborts is derived from the
	// caller's context, so external deadlines still apply.
	runCtx, cancel := context.WithCancel(ctx)
	s.setCancel(req.ConvID, cancel)
	defer cancel()

	runCtx, span := s.tracer.Start(runCtx, "orchestrator.Run",
		trace.WithAttributes(attribute.Int64("conv_id", req.ConvID)))
	defer span.End()

	start := time.Now()
	outcome := "done"
	s.metrics.RecordRunStart()
	defer func() {
		s.metrics.RecordRunEnd(outcome, time.Since(start))
		s.bus.Close(req.ConvID)
	}()

	s.bus.Emit(req.ConvID, sse.EventStart, map[string]any{"conv_id": req.ConvID})
	s.bus.Emit(req.ConvID, sse.EventConversationID, map[string]any{"conv_id": req.ConvID})

	history, err := s.conversations.ListMessages(runCtx, req.ConvID, defaultHistoryMessages)
	if err != nil {
		outcome = "failed"
		s.fail(req.ConvID, span, err)
		return err
	}

	if _, err := s.conversations.AddMessage(runCtx, req.ConvID, model.RoleUser, req.Message); err != nil {
		outcome = "failed"
		s.fail(req.ConvID, span, err)
		return err
	}

	intent := s.conversations.RecommendAutonomy(req.ConvID)

	state := s.bulkStateFor(req.ConvID)
	verdict := s.inputGuard.Classify(runCtx, req.Message)

	forceFull := req.ForceFull
	var extractedData, fetchedContext map[string]any

	if verdict.IsBulkOperation {
		state.Active = true
		state.OperationType = verdict.OperationType
		state.ExpectedItems = verdict.ExpectedItems
		if state.MaxRetries == 0 {
			state.MaxRetries = 5
		}
		forceFull = true

		var entities chokidar.ExtractedEntities
		if s.dataExtractor != nil {
			entities = s.dataExtractor.Extract(runCtx, req.Message)
		}
		state.ItemList = entities.ItemList
		extractedData = entities.Extra
		if entities.AdditionalContext != "" {
			if extractedData == nil {
				extractedData = make(map[string]any, 1)
			}
			extractedData["additionalContext"] = entities.AdditionalContext
		}

		if len(entities.ItemList) > 0 {
			if err := s.conversations.CreatePlan(req.ConvID, tasksFor(entities.ItemList), taskDataFor(entities.ItemList)); err != nil {
				outcome = "failed"
				s.fail(req.ConvID, span, err)
				return err
			}
		}

		if s.checkpoints != nil {
			if cp, err := s.checkpoints.LatestCheckpoint(req.ConvID); err == nil && cp != nil {
				state.CompletedItems = cp.Completed
			}
		}
	}

	currentTasks, err := s.conversations.ListTasks(req.ConvID)
	if err != nil {
		outcome = "failed"
		s.fail(req.ConvID, span, err)
		return err
	}

	s.bus.Emit(req.ConvID, sse.EventAgentProcessing, map[string]any{"status": "building_context"})
	bundle, err := s.builder.Build(runCtx, contextbuilder.Input{
		Task:           req.Message,
		ConvID:         req.ConvID,
		UserID:         req.UserID,
		AutonomyLevel:  intent.Autonomy,
		ForceFull:      forceFull,
		History:        toHistoryTurns(history),
		CurrentTasks:   currentTasks,
		ExtractedData:  extractedData,
		FetchedContext: fetchedContext,
	})
	if err != nil {
		outcome = "failed"
		s.fail(req.ConvID, span, err)
		return err
	}

	maxTurns := s.maxTurnsStandard
	if state.Active {
		maxTurns = s.maxTurnsBulk
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: agent.BuildInstructions("an e-commerce operations assistant", &bundle)},
	}
	for _, h := range bundle.ConversationHistory {
		messages = append(messages, llm.Message{Role: toLLMRole(h.Role), Content: h.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: req.Message})

	toolDefs := toToolDefinitions(s.registry.List())

	currentMessage := req.Message
	for turn := 0; turn < maxTurns; turn++ {
		select {
		case <-runCtx.Done():
			outcome = "interrupted"
			s.bus.Emit(req.ConvID, sse.EventInterrupted, map[string]any{"conv_id": req.ConvID})
			span.SetStatus(codes.Error, "interrupted")
			return runCtx.Err()
		default:
		}

		s.metrics.RecordTurn()
		text, calls, err := s.streamTurn(runCtx, req.ConvID, messages, toolDefs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				outcome = "interrupted"
				s.bus.Emit(req.ConvID, sse.EventInterrupted, map[string]any{"conv_id": req.ConvID})
				return err
			}
			outcome = "failed"
			s.fail(req.ConvID, span, err)
			return err
		}
		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: text})

		if len(calls) > 0 {
			for _, tc := range calls {
				result := s.invokeTool(runCtx, req.ConvID, &bundle, tc)
				messages = append(messages, llm.Message{Role: llm.RoleTool, Content: result, ToolCallID: tc.ID, Name: tc.Name})
			}
			continue
		}

		wireOutcome, _, gerr := s.outputGuard.Evaluate(runCtx, state, text)
		if gerr == nil && wireOutcome == chokidar.OutcomeTripwire {
			s.metrics.RecordTripwire(state.OperationType)
			decision := chokidar.Retry(state, chokidar.PreserveText(text), currentMessage)
			s.metrics.RecordGuardrailRetry(state.OperationType)
			s.bus.Emit(req.ConvID, sse.EventAgentProcessing, map[string]any{"status": "guardrail_enforced"})

			if decision.Terminate {
				if _, err := s.conversations.AddMessage(runCtx, req.ConvID, model.RoleAssistant, decision.TerminationNotice); err != nil {
					outcome = "failed"
					s.fail(req.ConvID, span, err)
					return err
				}
				s.bus.Emit(req.ConvID, sse.EventDone, map[string]any{"conv_id": req.ConvID, "summary": decision.TerminationNotice})
				return nil
			}

			currentMessage = decision.ContinuationPrompt
			messages = append(messages, llm.Message{Role: llm.RoleUser, Content: decision.ContinuationPrompt})
			continue
		}

		if _, err := s.conversations.AddMessage(runCtx, req.ConvID, model.RoleAssistant, text); err != nil {
			outcome = "failed"
			s.fail(req.ConvID, span, err)
			return err
		}
		state.Reset()
		s.bus.Emit(req.ConvID, sse.EventDone, map[string]any{"conv_id": req.ConvID})
		return nil
	}

	outcome = "failed"
	err = fmt.Errorf("orchestrator: Run for conversation %d exceeded max turns (%d)", req.ConvID, maxTurns)
	s.fail(req.ConvID, span, err)
	return err
}

func (s *Supervisor) fail(convID int64, span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.bus.Emit(convID, sse.EventError, map[string]any{"conv_id": convID, "error": err.Error()})
}

// streamTurn drives one ChatModel.Stream call to completion, emitting
// assistant_delta events for every text chunk and collecting any tool
// calls the model requested (spec §4.9 step 5).
func (s *Supervisor) streamTurn(ctx context.Context, convID int64, messages []llm.Message, tools []llm.ToolDefinition) (string, []llm.ToolCall, error) {
	ch, err := s.chatModel.Stream(ctx, messages, tools)
	if err != nil {
		return "", nil, err
	}

	var text strings.Builder
	var calls []llm.ToolCall
	inputTokens, outputTokens := 0, 0

	for chunk := range ch {
		select {
		case <-ctx.Done():
			return text.String(), calls, ctx.Err()
		default:
		}

		switch chunk.Type {
		case llm.ChunkText:
			text.WriteString(chunk.Text)
			outputTokens += chunk.Tokens
			s.bus.Emit(convID, sse.EventAssistantDelta, map[string]any{"delta": chunk.Text})
		case llm.ChunkToolCall:
			if chunk.ToolCall != nil {
				calls = append(calls, *chunk.ToolCall)
			}
		case llm.ChunkError:
			return text.String(), calls, chunk.Err
		case llm.ChunkDone:
		}
	}

	s.metrics.RecordLLMCall(s.chatModel.ModelName(), inputTokens, outputTokens)
	return text.String(), calls, nil
}

// invokeTool executes one model-requested tool call, either a Tool
// Registry tool or an Agent Factory spawn (spec §4.9 step 5).
func (s *Supervisor) invokeTool(ctx context.Context, convID int64, bundle *model.ContextBundle, tc llm.ToolCall) string {
	switch tc.Name {
	case ToolSpawnBashAgent:
		return s.dispatchBashAgent(ctx, convID, bundle, tc.Arguments)
	case ToolSpawnSoftwareEngineer:
		return s.dispatchSoftwareEngineeringAgent(ctx, convID, bundle, tc.Arguments)
	case ToolSpawnParallelExecutor:
		return s.dispatchParallelExecutor(ctx, convID, bundle, tc.Arguments)
	default:
		return s.invokeRegistryTool(ctx, convID, tc)
	}
}

func (s *Supervisor) invokeRegistryTool(ctx context.Context, convID int64, tc llm.ToolCall) string {
	s.bus.Emit(convID, sse.EventToolCall, map[string]any{"name": tc.Name, "args": tc.Arguments})

	started := time.Now()
	result, err := s.registry.Invoke(ctx, convID, tc.Name, tc.Arguments)
	s.metrics.RecordToolCall(tc.Name, time.Since(started))
	if err != nil {
		s.metrics.RecordToolError(tc.Name)
		return fmt.Sprintf("error: %v", err)
	}
	if result.Error != "" {
		s.metrics.RecordToolError(tc.Name)
		return result.Error
	}
	return result.Content
}

// tasksFor turns a bulk operation's extracted item list into a fresh
// one-task-per-item plan (spec §4.7: the planner's job once the data
// extractor has populated the sidecar).
func tasksFor(items []string) []model.Task {
	tasks := make([]model.Task, len(items))
	for i, item := range items {
		tasks[i] = model.Task{Description: item, Status: model.TaskPending}
	}
	return tasks
}

// taskDataFor builds the per-task sidecar data WritePlan attaches
// alongside each task (spec §4.1 sidecar).
func taskDataFor(items []string) []map[string]any {
	data := make([]map[string]any, len(items))
	for i, item := range items {
		data[i] = map[string]any{"item": item}
	}
	return data
}

func toHistoryTurns(msgs []model.Message) []model.HistoryTurn {
	out := make([]model.HistoryTurn, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, model.HistoryTurn{Role: m.Role, Content: m.Content})
	}
	return out
}

func toLLMRole(r model.Role) llm.Role {
	if r == model.RoleAssistant {
		return llm.RoleAssistant
	}
	return llm.RoleUser
}

func toToolDefinitions(entries []tool.Entry) []llm.ToolDefinition {
	out := make([]llm.ToolDefinition, 0, len(entries))
	for _, e := range entries {
		out = append(out, llm.ToolDefinition{Name: e.Tool.Name(), Description: e.Tool.Description(), Parameters: e.Schema})
	}
	return out
}
