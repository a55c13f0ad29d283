package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/ledger-reconciler/internal/infrastructure/config"
)

func TestMavenHandler_Format(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewMavenHandler(&buf, nil)).With(SystemKey, "sync")

	logger.Info("Batch ingested", "saved", 3, "name", "facturas 2025.csv")

	line := buf.String()
	assert.Regexp(t, `^\[INFO\] \[sync\] \[\d{2}:\d{2}:\d{2}\] Batch ingested`, line)
	assert.Contains(t, line, " saved=3")
	assert.Contains(t, line, ` name="facturas 2025.csv"`)
	assert.NotContains(t, line, "system=")
	assert.NotContains(t, line, "\033[", "no colors when not a terminal")
	assert.True(t, strings.HasSuffix(line, "\n"))
}

func TestMavenHandler_Values(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewMavenHandler(&buf, nil))

	logger.Error("Store chunk failed",
		"error", errors.New("database is locked"),
		"duration", 1500*time.Millisecond,
		"empty", "",
	)

	line := buf.String()
	assert.Contains(t, line, "[ERROR]")
	assert.Contains(t, line, `error="database is locked"`)
	assert.Contains(t, line, "duration=1.5s")
	assert.Contains(t, line, `empty=""`)
}

func TestMavenHandler_Groups(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewMavenHandler(&buf, nil)).
		WithGroup("store").
		With("driver", "sqlite")

	logger.Info("opened", slog.Group("pool", "max", 1))

	line := buf.String()
	assert.Contains(t, line, " store.driver=sqlite")
	assert.Contains(t, line, " store.pool.max=1")
}

func TestMavenHandler_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewMavenHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "[WARN]")
}

func TestMavenHandler_WithAttrsDoesNotLeak(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(NewMavenHandler(&buf, nil))
	_ = base.With("request", "a")

	base.Info("plain")

	assert.NotContains(t, buf.String(), "request=")
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, config.LoggingConfig{Level: "debug", Format: "json"})

	logger.Debug("Loaded state", "records", 12)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Loaded state", entry["msg"])
	assert.Equal(t, "DEBUG", entry["level"])
	assert.EqualValues(t, 12, entry["records"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}
