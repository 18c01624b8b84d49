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
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLogger(Config{Level: "info", JSONFormat: true}, &buf)
	require.NoError(t, err)

	l.Slog().With("component", "engine").Info("turn complete", "rule", "distance_check")
	l.Slog().Debug("dropped")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "turn complete", line["msg"])
	assert.Equal(t, "engine", line["component"])
	assert.Equal(t, "distance_check", line["rule"])
}

func TestNewLogger_FileRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logs", "chatform.log")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("x"), 64), 0644))

	var buf bytes.Buffer
	l, err := NewLogger(Config{OutputFile: path, MaxSize: 32}, &buf)
	require.NoError(t, err)
	defer l.Close()

	_, err = os.Stat(path + ".1")
	assert.NoError(t, err, "oversized log should be rotated")

	l.Slog().Info("hello")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
	assert.Contains(t, buf.String(), "hello")
}
