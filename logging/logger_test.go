package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LogLevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LogLevelWarn, ParseLevel("warning"))
	assert.Equal(t, LogLevelError, ParseLevel("error"))
	assert.Equal(t, LogLevelInfo, ParseLevel("bogus"))
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelInfo, Format: "json", Output: &buf, Component: "router"})

	l.Debug("hidden")
	l.Info("router.route.start", "agent", "Dexter")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "router.route.start", entry["msg"])
	assert.Equal(t, "Dexter", entry["agent"])
	assert.Equal(t, "router", entry["component"])
}

func TestWithSlog(t *testing.T) {
	var buf bytes.Buffer
	l := With(NewLogger(&LoggerConfig{Output: &buf}), "run_id", "r1")
	l.Warn("turn.step.retry")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "r1", entry["run_id"])
}

func TestZerologAdapter(t *testing.T) {
	var buf bytes.Buffer
	l := NewZerologAdapter(zerolog.New(&buf))

	l.Error("tool.call.error", "tool", "web_fetch", "error", errors.New("boom"), "attempt", 2, "dangling")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "tool.call.error", entry["message"])
	assert.Equal(t, "web_fetch", entry["tool"])
	assert.Equal(t, "boom", entry["error"])
	assert.EqualValues(t, 2, entry["attempt"])
	assert.Equal(t, "dangling", entry["arg"])

	buf.Reset()
	With(l, "agent", "Rita").Info("a2a.chat.start")
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Rita", entry["agent"])
}

func TestNoOpLogger(t *testing.T) {
	var l Logger = NoOpLogger{}
	l.Info("nothing")
	assert.Equal(t, l, With(l, "k", "v"))
}
