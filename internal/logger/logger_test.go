package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capture swaps the package logger for a JSON one writing to a buffer.
func capture(t *testing.T, level slog.Level) *bytes.Buffer {
	t.Helper()
	prev := log
	t.Cleanup(func() { log = prev })

	var buf bytes.Buffer
	log = New(NewJSONHandler(&buf, &slog.HandlerOptions{Level: level}))
	return &buf
}

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var out map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &out))
	return out
}

func TestInit(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "json")
	prev := log
	t.Cleanup(func() { log = prev })

	Init()
	assert.True(t, log.Enabled(context.Background(), slog.LevelDebug))
	assert.Equal(t, log, slog.Default())
}

func TestLevels(t *testing.T) {
	buf := capture(t, slog.LevelInfo)

	Debug("hidden")
	assert.Empty(t, buf.String())

	Info("payment settled", "correlation_id", "ws_CO_1", "outcome", "completed")
	line := lastLine(t, buf)
	assert.Equal(t, "INFO", line["level"])
	assert.Equal(t, "payment settled", line["msg"])
	assert.Equal(t, "ws_CO_1", line["correlation_id"])

	Warn("malformed receipt number", "receipt", "bad")
	assert.Equal(t, "WARN", lastLine(t, buf)["level"])

	Error("sweep reconcile failed", "error", assert.AnError.Error())
	line = lastLine(t, buf)
	assert.Equal(t, "ERROR", line["level"])
	assert.Equal(t, assert.AnError.Error(), line["error"])
}

func TestDebugEnabled(t *testing.T) {
	buf := capture(t, slog.LevelDebug)

	Debug("payment sweep idle")
	assert.Equal(t, "payment sweep idle", lastLine(t, buf)["msg"])
}

func TestFromContext(t *testing.T) {
	buf := capture(t, slog.LevelInfo)

	ctx := IntoContext(context.Background(), log.With("request_id", "req-1"))
	FromContext(ctx).Info("scoped")

	assert.Equal(t, "req-1", lastLine(t, buf)["request_id"])
	assert.Equal(t, log, FromContext(context.Background()))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}
