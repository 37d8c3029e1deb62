package log

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObserved(level zapcore.Level) (*zapLogger, *observer.ObservedLogs) {
	atomic := zap.NewAtomicLevelAt(level)
	core, logs := observer.New(atomic)
	return &zapLogger{core: zap.New(core), level: atomic}, logs
}

func TestSetLevel(t *testing.T) {
	l, logs := newObserved(zapcore.InfoLevel)
	child := l.WithName("display").WithValues("screen", "tram")

	child.Debug("hidden")
	require.NoError(t, l.SetLevel("debug"))
	child.Debug("shown")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "shown", entries[0].Message)
	assert.Equal(t, "display", entries[0].LoggerName)
	assert.Equal(t, "tram", entries[0].ContextMap()["screen"])

	assert.Error(t, l.SetLevel("verbose"))
}

func TestErrorField(t *testing.T) {
	l, logs := newObserved(zapcore.InfoLevel)

	l.Error(errors.New("boom"), "Epoch failed", "epoch", 3)
	l.Error(nil, "No cause")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "boom", entries[0].ContextMap()["error"])
	assert.Equal(t, int64(3), entries[0].ContextMap()["epoch"])
	assert.NotContains(t, entries[1].ContextMap(), "error")
}

func TestPrintfLogger(t *testing.T) {
	l, logs := newObserved(zapcore.DebugLevel)

	NewPrintfLogger(l, false).Printf("connecting to %s\n", "broker")
	NewPrintfLogger(l, true).Println("connection", "lost")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "connecting to broker", entries[0].Message)
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "connection lost", entries[1].Message)
}

func TestNewLoggerDefaults(t *testing.T) {
	assert.NotNil(t, NewLogger(nil))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("nonsense"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warn"))
}
