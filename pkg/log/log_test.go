package log

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetup(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	Setup("debug")
	assert.True(t, slog.Default().Enabled(context.Background(), slog.LevelDebug))

	Setup("bogus")
	assert.False(t, slog.Default().Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, slog.Default().Enabled(context.Background(), slog.LevelInfo))
}

func TestFromContext(t *testing.T) {
	assert.Equal(t, slog.Default(), FromContext(context.Background()))

	logger := slog.Default().With("execution_id", "exec-1")
	assert.Same(t, logger, FromContext(WithLogger(context.Background(), logger)))
}
