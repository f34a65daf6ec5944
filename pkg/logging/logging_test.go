package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	require.Equal(t, slog.LevelError, ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, ParseLevel("info"))
	require.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelInfo, "json")
	logger.Debug("hidden")
	logger.Info("team created", "team_id", "t1")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	require.Equal(t, "team created", rec["msg"])
	require.Equal(t, "t1", rec["team_id"])
}

func TestTextFormatIsPlainOffTerminal(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelWarn, "text")
	logger.Info("hidden")
	logger.Warn("heartbeat failed", "user_id", "u1")

	out := buf.String()
	require.Contains(t, out, "heartbeat failed")
	require.Contains(t, out, "user_id=u1")
	require.NotContains(t, out, "hidden")
	require.NotContains(t, out, "\x1b[", "no color codes when not a terminal")
}
