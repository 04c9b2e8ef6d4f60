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

package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/opscore/orchestrator/pkg/conversation"
	"github.com/opscore/orchestrator/pkg/orchestrator"
	"github.com/opscore/orchestrator/pkg/sse"
)

// server holds the HTTP handlers' dependencies (spec §6 EXTERNAL
// INTERFACES).
type server struct {
	supervisor    *orchestrator.Supervisor
	conversations *conversation.Manager
	store         conversation.Store
	bus           *sse.Bus
	jwtSecret     string
}

type runRequest struct {
	ConvID    int64  `json:"conv_id"`
	UserID    string `json:"user_id"`
	Message   string `json:"message"`
	ForceFull bool   `json:"force_full"`
}

// handleRun implements POST /run: it opens an SSE stream for the
// conversation, launches the Orchestrator Supervisor's Run in the
// background, and blocks the HTTP response on the stream until the
// Run completes and the bus closes the conversation's subscribers.
func (s *server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.Message == "" {
		http.Error(w, "user_id and message are required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if req.ConvID == 0 {
		conv, err := s.store.CreateConversation(ctx, req.UserID, req.Message)
		if err != nil {
			http.Error(w, "failed to create conversation", http.StatusInternalServerError)
			return
		}
		req.ConvID = conv.ID
	}

	sink, unsubscribe := s.bus.Subscribe(req.UserID, req.ConvID)
	defer unsubscribe()

	go func() {
		err := s.supervisor.Run(ctx, orchestrator.RunRequest{
			ConvID:    req.ConvID,
			UserID:    req.UserID,
			Message:   req.Message,
			ForceFull: req.ForceFull,
		})
		if err != nil && !errors.Is(err, orchestrator.ErrBusy) {
			slog.Error("run failed", "conv_id", req.ConvID, "error", err)
		}
	}()

	sse.WriteHTTP(w, r, sink)
}

// handleInterrupt implements POST /interrupt.
func (s *server) handleInterrupt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConvID int64 `json:"conv_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ok := s.supervisor.Interrupt(req.ConvID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"success": ok})
}

// handleLogs implements GET /logs?token=JWT: a bearer-token-gated SSE
// stream of this process's own log lines for the token's conversation.
// Verification only; log fan-out itself rides the same SSE bus every
// other event uses, scoped to a conv_id the token carries.
func (s *server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if s.jwtSecret == "" {
		http.Error(w, "log streaming is not configured", http.StatusServiceUnavailable)
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	parsed, err := jwt.Parse([]byte(token), jwt.WithKey(jwa.HS256, []byte(s.jwtSecret)), jwt.WithValidate(true))
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	convIDClaim, ok := parsed.Get("conv_id")
	if !ok {
		http.Error(w, "token missing conv_id claim", http.StatusUnauthorized)
		return
	}
	convID, ok := convIDClaim.(float64)
	if !ok {
		http.Error(w, "token conv_id claim malformed", http.StatusUnauthorized)
		return
	}

	sink, unsubscribe := s.bus.Subscribe(parsed.Subject(), int64(convID))
	defer unsubscribe()
	sse.WriteHTTP(w, r, sink)
}
