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
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opscore/orchestrator/pkg/agent"
	"github.com/opscore/orchestrator/pkg/cache"
	"github.com/opscore/orchestrator/pkg/checkpoint"
	"github.com/opscore/orchestrator/pkg/chokidar"
	appconfig "github.com/opscore/orchestrator/pkg/config"
	"github.com/opscore/orchestrator/pkg/contextbuilder"
	"github.com/opscore/orchestrator/pkg/conversation"
	"github.com/opscore/orchestrator/pkg/embedder"
	"github.com/opscore/orchestrator/pkg/llm"
	"github.com/opscore/orchestrator/pkg/logger"
	"github.com/opscore/orchestrator/pkg/observability"
	"github.com/opscore/orchestrator/pkg/orchestrator"
	"github.com/opscore/orchestrator/pkg/sse"
	"github.com/opscore/orchestrator/pkg/store"
	"github.com/opscore/orchestrator/pkg/tool"
	"github.com/opscore/orchestrator/pkg/vector"
)

// ServeCmd starts the HTTP+SSE server. Flags outside the spec §6
// documented environment variables (model selection, storage DSNs,
// MCP tool sources) are opscored's own deployment knobs.
type ServeCmd struct {
	OpenAIAPIKey string  `name:"openai-api-key" env:"OPENAI_API_KEY" help:"OpenAI API key." required:""`
	OpenAIModel  string  `name:"openai-model" env:"OPENAI_MODEL" default:"gpt-4o"`
	OpenAIURL    string  `name:"openai-base-url" env:"OPENAI_BASE_URL"`
	Temperature  float64 `name:"temperature" default:"0.2"`

	StoreDialect string `name:"store-dialect" env:"STORE_DIALECT" default:"sqlite" help:"sqlite, postgres, or mysql."`
	StoreDSN     string `name:"store-dsn" env:"STORE_DSN" default:"opscore.db"`

	CheckpointDir string `name:"checkpoint-dir" env:"CHECKPOINT_DIR" default:".opscore/checkpoints"`
	CachePath     string `name:"cache-path" env:"CACHE_PATH" default:".opscore/cache.db"`
	VectorDir     string `name:"vector-dir" env:"VECTOR_DIR" default:".opscore/vectors"`

	MCPCommand string `name:"mcp-command" env:"MCP_COMMAND" help:"Command that launches the domain-tools MCP server over stdio."`
	MCPArgs    string `name:"mcp-args" env:"MCP_ARGS"`

	OTLPEndpoint string `name:"otlp-endpoint" env:"OTLP_ENDPOINT"`
	MetricsNS    string `name:"metrics-namespace" default:"opscore"`
}

func (c *ServeCmd) Run(cli *CLI, ctx context.Context) error {
	logger.Init(logger.ParseLevel(cli.LogLevel), logFileFor(cli), logger.Format(cli.LogFormat))
	log := logger.Get()

	cfg, err := appconfig.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	tp, err := observability.InitTracer(ctx, observability.TracerConfig{
		Enabled:     c.OTLPEndpoint != "",
		EndpointURL: c.OTLPEndpoint,
		ServiceName: "opscored",
	})
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	metrics := observability.NewMetrics(observability.MetricsConfig{Enabled: true, Namespace: c.MetricsNS})

	emb := embedder.NewHashEmbedder(256)

	vectors, err := vector.NewChromemStore(vector.ChromemConfig{PersistPath: c.VectorDir, Compress: true}, emb)
	if err != nil {
		return fmt.Errorf("open vector store: %w", err)
	}

	sizeEstimator, err := contextbuilder.NewSizeEstimator()
	if err != nil {
		return fmt.Errorf("init size estimator: %w", err)
	}
	// No product-read tool is wired here: the domain's product catalog
	// is served by the external MCP source, not a component this
	// process owns. Full-mode product blobs stay empty until an
	// operator wires a ProductFetcher backed by that MCP tool.
	builder := contextbuilder.New(vectors, nil, sizeEstimator)

	toolCache, err := cache.Open(c.CachePath, emb)
	if err != nil {
		return fmt.Errorf("open tool cache: %w", err)
	}
	registry := tool.New(toolCache, log)
	registry.SetCacheObserver(metrics)
	if c.MCPCommand != "" {
		source := tool.NewMCPSource(tool.MCPConfig{
			Name:    "domain-tools",
			Command: c.MCPCommand,
			Args:    splitArgs(c.MCPArgs),
		})
		if err := registry.RegisterSource(ctx, source); err != nil {
			return fmt.Errorf("register MCP tool source: %w", err)
		}
	}

	sqlStore, err := store.Open(store.Dialect(c.StoreDialect), c.StoreDSN)
	if err != nil {
		return fmt.Errorf("open conversation store: %w", err)
	}

	checkpoints := checkpoint.NewStore(c.CheckpointDir)
	bus := sse.NewBus()
	conversations := conversation.New(sqlStore, checkpoints, bus)

	llmCfg := llm.OpenAIConfig{
		APIKey:      c.OpenAIAPIKey,
		Model:       c.OpenAIModel,
		BaseURL:     c.OpenAIURL,
		Temperature: c.Temperature,
		MaxTokens:   4096,
		Timeout:     60 * time.Second,
	}
	chatModel := llm.NewOpenAIChatModel(llmCfg, log)
	classifier := llm.NewOpenAIClassifier(llmCfg)

	supervisor := orchestrator.New(orchestrator.Config{
		ChatModel:     chatModel,
		Registry:      registry,
		Builder:       builder,
		Conversations: conversations,
		Bus:           bus,
		Checkpoints:   checkpoints,
		InputGuard:    chokidar.NewInputGuard(classifier),
		OutputGuard:   chokidar.NewOutputGuard(classifier, checkpoints),
		DataExtractor: chokidar.NewDataExtractor(classifier),
		Metrics:       metrics,
		Tracer:        observability.Tracer("opscore.orchestrator"),

		BashConfig:    agent.BashConfig{Timeout: cfg.BashTimeout, ForwardedEnv: []string{"PATH"}},
		BashLookupEnv: lookupEnvAllowlist,

		MaxTurnsBulk:     cfg.OrchestratorMaxTurnsBulk,
		MaxTurnsStandard: cfg.OrchestratorMaxTurnsStandard,
	})

	srv := &server{
		supervisor:    supervisor,
		conversations: conversations,
		store:         sqlStore,
		bus:           bus,
		jwtSecret:     cfg.JWTLogsSecret,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Post("/run", srv.handleRun)
	r.Post("/interrupt", srv.handleInterrupt)
	r.Get("/logs", srv.handleLogs)
	r.Get("/health", srv.handleHealth)
	if metrics != nil {
		r.Handle("/metrics", metrics.Handler())
	}

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}

	errCh := make(chan error, 1)
	go func() {
		log.Info("opscored listening", "addr", cfg.HTTPAddr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	}

	_ = sqlStore.Close()
	_ = toolCache.Close()
	if shutdownable, ok := tp.(interface{ Shutdown(context.Context) error }); ok {
		_ = shutdownable.Shutdown(context.Background())
	}
	return nil
}

func lookupEnvAllowlist(name string) (string, bool) {
	allowed := map[string]bool{"PATH": true, "HOME": true, "LANG": true}
	if !allowed[name] {
		return "", false
	}
	return os.LookupEnv(name)
}
