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

// Package logger initializes opscored's structured log/slog logger
// (SPEC_FULL.md A2): leveled, package-scoped filtering so third-party
// dependency chatter (consul, chi, otel) stays quiet outside debug
// level, with a JSON handler for production and a colored text
// handler for local development.
package logger

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"strings"
)

var defaultLogger *slog.Logger

// modulePrefix is opscored's own import path; log records whose
// caller falls outside it are treated as third-party and filtered
// unless Init was called at debug level.
const modulePrefix = "github.com/opscore/orchestrator"

// ParseLevel converts a string log level to slog.Level. An
// unrecognized value falls back to Info rather than erroring, since a
// misconfigured log level should never prevent the process from
// starting.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Format selects the output encoding Init uses.
type Format string

const (
	// FormatJSON is the production default: one JSON object per line.
	FormatJSON Format = "json"
	// FormatText is a colorized "LEVEL message key=value ..." line,
	// intended for local development against a terminal.
	FormatText Format = "text"
)

// filteringHandler suppresses third-party library log records below
// debug level, so operators tuning opscored's own log level aren't
// flooded by every dependency's internal logging.
type filteringHandler struct {
	handler  slog.Handler
	minLevel slog.Level
}

func (h *filteringHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.minLevel && h.handler.Enabled(ctx, level)
}

func (h *filteringHandler) Handle(ctx context.Context, record slog.Record) error {
	if h.minLevel <= slog.LevelDebug || isOwnPackage(record.PC) {
		return h.handler.Handle(ctx, record)
	}
	return nil
}

func (h *filteringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &filteringHandler{handler: h.handler.WithAttrs(attrs), minLevel: h.minLevel}
}

func (h *filteringHandler) WithGroup(name string) slog.Handler {
	return &filteringHandler{handler: h.handler.WithGroup(name), minLevel: h.minLevel}
}

func isOwnPackage(pc uintptr) bool {
	if pc == 0 {
		return false
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return false
	}
	return strings.Contains(fn.Name(), modulePrefix)
}

// Init builds and installs the process-wide default logger.
func Init(level slog.Level, output *os.File, format Format) {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch format {
	case FormatText:
		handler = &coloredTextHandler{inner: slog.NewTextHandler(output, opts), writer: output, color: isTerminal(output)}
	default:
		handler = slog.NewJSONHandler(output, opts)
	}

	defaultLogger = slog.New(&filteringHandler{handler: handler, minLevel: level})
	slog.SetDefault(defaultLogger)
}

// Get returns the process-wide logger, initializing it at info/JSON
// defaults if Init was never called.
func Get() *slog.Logger {
	if defaultLogger == nil {
		Init(slog.LevelInfo, os.Stderr, FormatJSON)
	}
	return defaultLogger
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
