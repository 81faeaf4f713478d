package log

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevel_String(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level Level
		want  string
	}{
		{LevelError, "error"},
		{LevelWarn, "warn"},
		{LevelInfo, "info"},
		{LevelDebug, "debug"},
		{Level(42), "unknown"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, tt.level.String())
		})
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	t.Run("valid levels", func(t *testing.T) {
		t.Parallel()

		for in, want := range map[string]Level{
			"debug":   LevelDebug,
			"INFO":    LevelInfo,
			"warn":    LevelWarn,
			"warning": LevelWarn,
			"Error":   LevelError,
		} {
			got, err := ParseLevel(in)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
	})

	t.Run("invalid level", func(t *testing.T) {
		t.Parallel()

		_, err := ParseLevel("loud")
		require.Error(t, err)
	})
}

func TestFieldConstructors(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Field{Key: "k", Value: "v"}, String("k", "v"))
	assert.Equal(t, Field{Key: "n", Value: 7}, Int("n", 7))
	assert.Equal(t, Field{Key: "amount", Value: int64(25000)}, Int64("amount", 25000))
	assert.Equal(t, Field{Key: "ok", Value: true}, Bool("ok", true))

	err := errors.New("boom")
	assert.Equal(t, Field{Key: "error", Value: err}, Err(err))
}

func TestNopLogger(t *testing.T) {
	t.Parallel()

	logger := NewNop()

	// Must never panic and always report disabled.
	logger.Log(context.Background(), LevelError, "ignored", String("k", "v"))
	assert.False(t, logger.Enabled(LevelError))
	assert.Same(t, logger, logger.With(String("k", "v")))
	assert.Same(t, logger, logger.WithGroup("group"))
	require.NoError(t, logger.Sync(context.Background()))
}
