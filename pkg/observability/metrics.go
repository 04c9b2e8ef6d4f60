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

package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsConfig controls metric collection. A nil or disabled config
// yields a nil *Metrics; every Record* method on a nil *Metrics is a
// no-op so callers never need to guard calls behind a nil check.
type MetricsConfig struct {
	Enabled   bool
	Namespace string
}

// Metrics holds the Prometheus instrumentation for one Orchestrator
// Supervisor (C8) process: Run outcomes and duration, per-turn and
// per-retry counters, guardrail tripwires, tool-cache hit rate, and
// tool/LLM call counters.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal    *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	activeRuns   prometheus.Gauge
	turnsTotal   prometheus.Counter
	retriesTotal *prometheus.CounterVec

	tripwiresTotal *prometheus.CounterVec
	cacheHits      *prometheus.CounterVec
	cacheMisses    *prometheus.CounterVec

	toolCalls        *prometheus.CounterVec
	toolCallDuration *prometheus.HistogramVec
	toolErrors       *prometheus.CounterVec

	llmCalls       *prometheus.CounterVec
	llmTokensIn    *prometheus.CounterVec
	llmTokensOut   *prometheus.CounterVec
}

// NewMetrics builds a Metrics instance, or returns nil if cfg disables
// collection.
func NewMetrics(cfg MetricsConfig) *Metrics {
	if !cfg.Enabled {
		return nil
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = "opscore"
	}

	m := &Metrics{registry: prometheus.NewRegistry()}

	m.runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "run", Name: "total", Help: "Total number of completed Runs by terminal outcome.",
	}, []string{"outcome"})
	m.runDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Subsystem: "run", Name: "duration_seconds", Help: "Run wall-clock duration.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
	}, []string{"outcome"})
	m.activeRuns = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns, Subsystem: "run", Name: "active", Help: "Number of Runs currently in flight.",
	})
	m.turnsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "run", Name: "turns_total", Help: "Total number of dispatch-loop turns across all Runs.",
	})
	m.retriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "guardrail", Name: "retries_total", Help: "Total number of bounded guardrail retries.",
	}, []string{"operation_type"})
	m.tripwiresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "guardrail", Name: "tripwires_total", Help: "Total number of announce-and-stop tripwires detected.",
	}, []string{"operation_type"})

	m.cacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "tool_cache", Name: "hits_total", Help: "Total number of tool-cache hits.",
	}, []string{"tool_name"})
	m.cacheMisses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "tool_cache", Name: "misses_total", Help: "Total number of tool-cache misses.",
	}, []string{"tool_name"})

	m.toolCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "tool", Name: "calls_total", Help: "Total number of tool invocations.",
	}, []string{"tool_name"})
	m.toolCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Subsystem: "tool", Name: "call_duration_seconds", Help: "Tool invocation duration.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
	}, []string{"tool_name"})
	m.toolErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "tool", Name: "errors_total", Help: "Total number of tool invocation errors.",
	}, []string{"tool_name"})

	m.llmCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "llm", Name: "calls_total", Help: "Total number of ChatModel stream calls.",
	}, []string{"model"})
	m.llmTokensIn = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "llm", Name: "tokens_input_total", Help: "Total input tokens sent to the ChatModel.",
	}, []string{"model"})
	m.llmTokensOut = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "llm", Name: "tokens_output_total", Help: "Total output tokens streamed from the ChatModel.",
	}, []string{"model"})

	m.registry.MustRegister(
		m.runsTotal, m.runDuration, m.activeRuns, m.turnsTotal, m.retriesTotal, m.tripwiresTotal,
		m.cacheHits, m.cacheMisses,
		m.toolCalls, m.toolCallDuration, m.toolErrors,
		m.llmCalls, m.llmTokensIn, m.llmTokensOut,
	)
	return m
}

// RecordRunStart increments the active-run gauge.
func (m *Metrics) RecordRunStart() {
	if m == nil {
		return
	}
	m.activeRuns.Inc()
}

// RecordRunEnd decrements the active-run gauge and records the Run's
// terminal outcome (done, failed, interrupted) and duration.
func (m *Metrics) RecordRunEnd(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.activeRuns.Dec()
	m.runsTotal.WithLabelValues(outcome).Inc()
	m.runDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordTurn records one iteration of the dispatch loop.
func (m *Metrics) RecordTurn() {
	if m == nil {
		return
	}
	m.turnsTotal.Inc()
}

// RecordGuardrailRetry records one bounded guardrail retry for
// operationType.
func (m *Metrics) RecordGuardrailRetry(operationType string) {
	if m == nil {
		return
	}
	m.retriesTotal.WithLabelValues(operationType).Inc()
}

// RecordTripwire records one announce-and-stop tripwire for
// operationType.
func (m *Metrics) RecordTripwire(operationType string) {
	if m == nil {
		return
	}
	m.tripwiresTotal.WithLabelValues(operationType).Inc()
}

// RecordCacheHit records a C3 tool-cache hit for toolName.
func (m *Metrics) RecordCacheHit(toolName string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(toolName).Inc()
}

// RecordCacheMiss records a C3 tool-cache miss for toolName.
func (m *Metrics) RecordCacheMiss(toolName string) {
	if m == nil {
		return
	}
	m.cacheMisses.WithLabelValues(toolName).Inc()
}

// RecordToolCall records one tool invocation's duration.
func (m *Metrics) RecordToolCall(toolName string, duration time.Duration) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(toolName).Inc()
	m.toolCallDuration.WithLabelValues(toolName).Observe(duration.Seconds())
}

// RecordToolError records one tool invocation error.
func (m *Metrics) RecordToolError(toolName string) {
	if m == nil {
		return
	}
	m.toolErrors.WithLabelValues(toolName).Inc()
}

// RecordLLMCall records one ChatModel stream call and its token usage.
func (m *Metrics) RecordLLMCall(model string, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	m.llmCalls.WithLabelValues(model).Inc()
	m.llmTokensIn.WithLabelValues(model).Add(float64(inputTokens))
	m.llmTokensOut.WithLabelValues(model).Add(float64(outputTokens))
}

// Handler serves the Prometheus exposition format. On a nil Metrics
// (collection disabled) it reports 503 rather than panicking.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
