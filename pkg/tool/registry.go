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

package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/opscore/orchestrator/pkg/cache"
)

// Entry is one registered tool alongside its adapted schema.
type Entry struct {
	Tool   Tool
	Schema map[string]any
}

// CacheObserver receives cache hit/miss notifications from Registry.Invoke,
// for metrics collection (SPEC_FULL.md: Prometheus counters for cache hits).
type CacheObserver interface {
	RecordCacheHit(toolName string)
	RecordCacheMiss(toolName string)
}

// Registry holds the set of tools exposed to the model for a
// conversation, and transparently proxies read-tool invocations
// through the C3 cache (spec §4.4).
type Registry struct {
	mu       sync.RWMutex
	entries  map[string]Entry
	cache    *cache.Cache
	log      *slog.Logger
	observer CacheObserver
}

// New creates an empty Registry. cache may be nil, which disables
// result caching entirely (e.g. in unit tests for individual tools).
func New(c *cache.Cache, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{entries: make(map[string]Entry), cache: c, log: log}
}

// SetCacheObserver attaches obs to receive hit/miss notifications from
// every cacheable Invoke call. obs may be nil to detach.
func (r *Registry) SetCacheObserver(obs CacheObserver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observer = obs
}

// Register adapts t's schema and adds it to the registry. A tool whose
// schema cannot be safely adapted is dropped with a warning log rather
// than failing registration of the whole set (spec §4.4).
func (r *Registry) Register(t Tool) {
	adapted, err := AdaptSchema(t.Schema())
	if err != nil {
		r.log.Warn("tool excluded: schema could not be safely adapted",
			"tool", t.Name(), "error", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[t.Name()] = Entry{Tool: t, Schema: adapted}
}

// RegisterSource discovers tools from source and registers each one.
func (r *Registry) RegisterSource(ctx context.Context, source Source) error {
	tools, err := source.DiscoverTools(ctx)
	if err != nil {
		return fmt.Errorf("tool: discover from source %s: %w", source.Name(), err)
	}
	for _, t := range tools {
		r.Register(t)
	}
	return nil
}

// List returns all registered entries sorted by name, the surface
// exposed to the model's function-call interface.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tool.Name() < out[j].Tool.Name() })
	return out
}

func (r *Registry) lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.Tool, true
}

// Invoke runs tool name with args on behalf of convID, transparently
// consulting and populating the C3 cache for whitelisted read-only
// tools (spec §4.3, §4.4). A cache hit short-circuits the call
// entirely.
func (r *Registry) Invoke(ctx context.Context, convID int64, name string, args map[string]any) (Result, error) {
	t, ok := r.lookup(name)
	if !ok {
		return Result{}, fmt.Errorf("tool: %q is not registered", name)
	}

	cacheable := r.cache != nil && t.ReadOnly() && cache.Whitelisted(name)

	if cacheable {
		if hit, ok := r.lookupCache(ctx, convID, name, args); ok {
			r.notifyCache(true, name)
			return hit, nil
		}
		r.notifyCache(false, name)
	}

	result, err := t.Invoke(ctx, args)
	if err != nil {
		return result, err
	}

	if cacheable && result.Error == "" {
		r.storeCache(ctx, convID, name, args, result)
	}
	return result, nil
}

func (r *Registry) lookupCache(ctx context.Context, convID int64, name string, args map[string]any) (Result, bool) {
	desc, err := cache.Descriptor(name, args)
	if err != nil {
		return Result{}, false
	}
	hits, err := r.cache.Search(ctx, convID, desc, cache.SearchOptions{Tool: name, K: 1, SimilarityThreshold: 0.999})
	if err != nil || len(hits) == 0 {
		return Result{}, false
	}
	return Result{Content: hits[0].Result}, true
}

func (r *Registry) notifyCache(hit bool, toolName string) {
	r.mu.RLock()
	obs := r.observer
	r.mu.RUnlock()
	if obs == nil {
		return
	}
	if hit {
		obs.RecordCacheHit(toolName)
		return
	}
	obs.RecordCacheMiss(toolName)
}

func (r *Registry) storeCache(ctx context.Context, convID int64, name string, args map[string]any, result Result) {
	hash, err := cache.ArgsHash(args)
	if err != nil {
		return
	}
	if err := r.cache.Store(ctx, convID, name, args, result.Content); err != nil {
		r.log.Warn("tool result cache store failed", "tool", name, "conv_id", convID, "args_hash", hash, "error", err)
	}
}

// SchemaJSON returns the JSON-encoded adapted schema for name, useful
// when assembling a model function-call manifest.
func (r *Registry) SchemaJSON(name string) (json.RawMessage, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("tool: %q is not registered", name)
	}
	return json.Marshal(e.Schema)
}
