package zap

import (
	"context"
	"testing"

	logpkg "github.com/TheOusia/ousia/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"go.uber.org/zap/zapcore"
)

func newObservedLogger(level zapcore.Level) (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return &Logger{logger: zap.New(core), atomicLevel: zap.NewAtomicLevelAt(level)}, logs
}

func TestLogger_Log_Levels(t *testing.T) {
	t.Parallel()

	logger, logs := newObservedLogger(zapcore.DebugLevel)
	ctx := context.Background()

	logger.Log(ctx, logpkg.LevelDebug, "debug msg")
	logger.Log(ctx, logpkg.LevelInfo, "info msg")
	logger.Log(ctx, logpkg.LevelWarn, "warn msg")
	logger.Log(ctx, logpkg.LevelError, "error msg")

	entries := logs.All()
	require.Len(t, entries, 4)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
}

func TestLogger_With_AttachesFields(t *testing.T) {
	t.Parallel()

	logger, logs := newObservedLogger(zapcore.InfoLevel)

	child := logger.With(logpkg.String("component", "ledger"), logpkg.Int64("amount", 25000))
	child.Log(context.Background(), logpkg.LevelInfo, "plan committed")

	entries := logs.All()
	require.Len(t, entries, 1)

	fields := entries[0].ContextMap()
	assert.Equal(t, "ledger", fields["component"])
	assert.Equal(t, int64(25000), fields["amount"])
}

func TestLogger_Enabled(t *testing.T) {
	t.Parallel()

	logger, _ := newObservedLogger(zapcore.WarnLevel)

	assert.True(t, logger.Enabled(logpkg.LevelError))
	assert.True(t, logger.Enabled(logpkg.LevelWarn))
	assert.False(t, logger.Enabled(logpkg.LevelInfo))
	assert.False(t, logger.Enabled(logpkg.LevelDebug))
}

func TestLogger_NilReceiverIsSafe(t *testing.T) {
	t.Parallel()

	var logger *Logger

	// Must not panic.
	logger.Log(context.Background(), logpkg.LevelInfo, "nop")
	assert.NotNil(t, logger.With(logpkg.String("k", "v")))
}

func TestNew_ValidatesEnvironment(t *testing.T) {
	t.Parallel()

	_, _, err := New(Config{Environment: "qa"})
	require.Error(t, err)

	logger, level, err := New(Config{Environment: EnvironmentLocal})
	require.NoError(t, err)
	assert.NotNil(t, logger)
	assert.Equal(t, zapcore.DebugLevel, level.Level())
}

func TestNew_InvalidLevel(t *testing.T) {
	t.Parallel()

	_, _, err := New(Config{Environment: EnvironmentProduction, Level: "loud"})
	require.Error(t, err)
}
