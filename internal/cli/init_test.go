package cli

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLoggerUnknownLevel(t *testing.T) {
	logger := SetupLogger("verbose")
	require.NotNil(t, logger)
	assert.False(t, logger.Enabled(context.Background(), -4), "debug must be off at the info fallback")
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("DATA_BACKEND", "memory")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.DataBackend)

	t.Setenv("JWT_SECRET", "")
	_, err = LoadConfig()
	assert.Error(t, err)
}

func TestGracefulShutdown(t *testing.T) {
	logger := SetupLogger("error")

	t.Run("runs cleanup", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		called := false
		err := GracefulShutdown(ctx, logger, time.Second, func(context.Context) error {
			called = true
			return nil
		})
		assert.NoError(t, err)
		assert.True(t, called)
	})

	t.Run("propagates cleanup error", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		boom := errors.New("boom")
		err := GracefulShutdown(ctx, logger, time.Second, func(context.Context) error { return boom })
		assert.ErrorIs(t, err, boom)
	})

	t.Run("times out", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := GracefulShutdown(ctx, logger, 10*time.Millisecond, func(c context.Context) error {
			<-c.Done()
			time.Sleep(50 * time.Millisecond)
			return nil
		})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
