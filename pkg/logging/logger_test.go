// SPDX-FileCopyrightText: 2025 The energysched Authors
// SPDX-License-Identifier: Apache-2.0

package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerText(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: slog.LevelDebug, Format: FormatText, Output: &buf, Version: "1.0.0"})

	logger.Info("job launched", "job_id", "j1", "hosts", "0-3")

	out := buf.String()
	assert.Contains(t, out, "job launched")
	assert.Contains(t, out, "job_id=j1")
	assert.Contains(t, out, "service=energysched")
	assert.Contains(t, out, "version=1.0.0")
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: slog.LevelInfo, Format: FormatJSON, Output: &buf})

	logger.Warn("duplicate completion ignored", "job_id", "j9")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "duplicate completion ignored", record["msg"])
	assert.Equal(t, "j9", record["job_id"])
	assert.Equal(t, "energysched", record["service"])
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: slog.LevelWarn, Format: FormatText, Output: &buf})

	logger.Debug("not shown")
	logger.Info("not shown either")
	logger.Error("shown")

	out := buf.String()
	assert.NotContains(t, out, "not shown")
	assert.Contains(t, out, "shown")
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: slog.LevelInfo, Format: FormatText, Output: &buf})

	child := logger.With("policy", "reduce_pc")
	child.Info("reservation installed")
	logger.Info("plain")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "policy=reduce_pc")
	assert.NotContains(t, lines[1], "policy=")
}

func TestNoOpLogger(t *testing.T) {
	var logger Logger = NoOpLogger{}
	logger.Info("discarded")
	assert.Equal(t, NoOpLogger{}, logger.With("k", "v"))
}
