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

package logger

import (
	"bufio"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	require.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelError, ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, ParseLevel("info"))
	require.Equal(t, slog.LevelInfo, ParseLevel("not-a-level"))
}

func TestInitWritesJSONAndFiltersBelowMinLevel(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "opscored-log-*.json")
	require.NoError(t, err)
	defer f.Close()

	Init(slog.LevelWarn, f, FormatJSON)
	log := Get()
	log.Info("should be filtered")
	log.Warn("should appear", "conv_id", 42)
	require.NoError(t, f.Sync())

	data, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	lines := countLines(string(data))
	require.Equal(t, 1, lines)
	require.Contains(t, string(data), "should appear")
	require.NotContains(t, string(data), "should be filtered")
}

func countLines(s string) int {
	n := 0
	sc := bufio.NewScanner(strings.NewReader(s))
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) != "" {
			n++
		}
	}
	return n
}
