package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestTemporalLoggerForwardsKeyvals(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewTemporalLogger(zap.New(core))

	l.Info("Browser session created", "sessionID", "abc", "pid", 42)
	l.With("runID", "r1").Error("Verification step failed", "step", "wait")
	l.Debug("dbg")
	l.Warn("careful")

	entries := logs.All()
	require.Len(t, entries, 4)

	assert.Equal(t, "Browser session created", entries[0].Message)
	assert.Equal(t, "abc", entries[0].ContextMap()["sessionID"])
	assert.EqualValues(t, 42, entries[0].ContextMap()["pid"])

	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "r1", entries[1].ContextMap()["runID"])
	assert.Equal(t, "wait", entries[1].ContextMap()["step"])

	assert.Equal(t, zapcore.DebugLevel, entries[2].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[3].Level)
}

func TestNewLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	l, err := New()
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	t.Setenv("LOG_LEVEL", "loud")
	_, err = New()
	assert.Error(t, err)
}
