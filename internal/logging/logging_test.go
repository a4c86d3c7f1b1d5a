package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/querykit/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"Warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNew_JSONToStdout(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := New(config.LogConfig{Level: "info", JSON: true}, &buf, false)
	require.NoError(t, err)
	defer closer.Close()

	logger.Debug("hidden")
	logger.Info("fetch", "entity", "Person")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "fetch", rec["msg"])
	assert.Equal(t, "Person", rec["entity"])
}

func TestNew_VerboseForcesDebug(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := New(config.LogConfig{Level: "error"}, &buf, true)
	require.NoError(t, err)

	logger.Debug("shown")
	assert.Contains(t, buf.String(), "msg=shown")
}

func TestNew_FileOnly(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "querykit.log")
	cfg := config.LogConfig{Level: "info", File: path, NoTerminal: true, Rotation: config.RotationConfig{MaxSize: 1}}

	logger, closer, err := New(cfg, &buf, false)
	require.NoError(t, err)
	logger.Info("to file")
	require.NoError(t, closer.Close())

	assert.Empty(t, buf.String())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
}

func TestNew_BadLevel(t *testing.T) {
	_, _, err := New(config.LogConfig{Level: "chatty"}, nil, false)
	assert.Error(t, err)
}
