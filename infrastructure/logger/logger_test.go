package logger

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestNewWithFileOutputs(t *testing.T) {
	dir := t.TempDir()
	l, err := New(Config{
		Level:      "debug",
		Outputs:    []string{"file"},
		OutputFile: filepath.Join(dir, "bridge.log"),
		ErrorFile:  filepath.Join(dir, "bridge_errors.log"),
		Format:     "console",
	})
	require.NoError(t, err)
	l.Info("hello")
	require.NoError(t, l.SetLevel("warn"))
	assert.Equal(t, "warn", l.Level())
	assert.Error(t, l.SetLevel("nope"))
	_ = l.Close()
}

func TestLogEventValidatesSchema(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := FromZap(zap.New(core))

	l.LogEvent("stream_state", map[string]interface{}{"from": "connecting"})
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "stream_state", entry.Message)
	assert.Equal(t, "missing fields: to", entry.ContextMap()["_schema_error"])

	l.LogEvent("stream_state", map[string]interface{}{"from": "backoff", "to": "connecting", "error": "boom"})
	entry = logs.All()[1]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	_, hasSchemaErr := entry.ContextMap()["_schema_error"]
	assert.False(t, hasSchemaErr)
}

func TestLogErrorAndWithFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := FromZap(zap.New(core)).WithFields(map[string]interface{}{"component": "stream"})

	l.LogError(errors.New("dial refused"), map[string]interface{}{"action": "dial"})
	require.Equal(t, 1, logs.Len())
	ctx := logs.All()[0].ContextMap()
	assert.Equal(t, "dial refused", ctx["error"])
	assert.Equal(t, "stream", ctx["component"])
	assert.Equal(t, "dial", ctx["action"])
}
