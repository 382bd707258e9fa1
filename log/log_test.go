package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZap(InfoLevel, &buf)

	logger.Debug("hidden")
	logger.With("session", "abc").Infof("frame %d applied", 3)
	require.NoError(t, logger.Sync())

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "frame 3 applied", entry["msg"])
	assert.Equal(t, "abc", entry["session"])
	assert.Equal(t, InfoLevel, logger.LogLevel())
}

func TestZapLoggerWrapsCore(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewZapLogger(zap.New(core), DebugLevel)

	logger.Warnf("sync key %q skipped", "tasks")
	logger.Error("boom")

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, `sync key "tasks" skipped`, logs.All()[0].Message)
	assert.Equal(t, zapcore.ErrorLevel, logs.All()[1].Level)
}

func TestDisabledLevelEmitsNothing(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZap(Disabled, &buf)
	logger.Error("nothing")
	_ = logger.Sync()
	assert.Zero(t, buf.Len())
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]Level{
		"DEBUG": DebugLevel, "": InfoLevel, "warning": WarningLevel, "error": ErrorLevel, "off": Disabled,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestDiscardLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		DiscardLogger.With("k", 1).Errorf("%d", 1)
	})
	assert.Equal(t, Disabled, DiscardLogger.LogLevel())
}
