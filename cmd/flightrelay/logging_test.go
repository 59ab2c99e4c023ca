package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("bogus"))
}

func TestSetupLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(&buf, "info", "json")

	logger.Debug("hidden")
	logger.Info("Stats", "flights_seen", 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Stats", entry["msg"])
	assert.Equal(t, appName, entry["service"])
	assert.Equal(t, float64(3), entry["flights_seen"])
}

func TestSetupLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	setupLogger(&buf, "warn", "text").Warn("Broker close failed")
	assert.Contains(t, buf.String(), "msg=\"Broker close failed\"")
}
