package logger

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
	}{
		{name: "debug level", logLevel: "debug"},
		{name: "info level", logLevel: "info"},
		{name: "warn level", logLevel: "warn"},
		{name: "error level", logLevel: "error"},
		{name: "mixed case", logLevel: "WARN"},
		{name: "invalid level falls back to info", logLevel: "verbose"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := Setup(tt.logLevel)
			require.NoError(t, err)
			assert.NotNil(t, logger)
			assert.Equal(t, logger, slog.Default())
		})
	}
}

func TestWithLoggerAndFromContext(t *testing.T) {
	custom := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := WithLogger(context.Background(), custom)

	assert.Equal(t, custom, FromContext(ctx))
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	assert.Equal(t, slog.Default(), FromContext(context.Background()))
}

func TestFromContextOrDefault(t *testing.T) {
	def := slog.New(slog.NewTextHandler(io.Discard, nil))
	custom := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("empty context returns default", func(t *testing.T) {
		assert.Equal(t, def, FromContextOrDefault(context.Background(), def))
	})

	t.Run("context logger wins", func(t *testing.T) {
		ctx := WithLogger(context.Background(), custom)
		assert.Equal(t, custom, FromContextOrDefault(ctx, def))
	})
}
