package idempotency

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupManager(t *testing.T) Manager {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewManager(NewRedisStore(client, log), log)
}

func TestExecute_RunsOperationOnce(t *testing.T) {
	manager := setupManager(t)
	ctx := context.Background()

	runs := 0
	fn := func(context.Context) error {
		runs++
		return nil
	}

	executed, err := manager.Execute(ctx, "msg:1:100", time.Hour, fn)
	require.NoError(t, err)
	assert.True(t, executed)

	// redelivery of the same update is dropped
	executed, err = manager.Execute(ctx, "msg:1:100", time.Hour, fn)
	require.NoError(t, err)
	assert.False(t, executed)

	assert.Equal(t, 1, runs)
}

func TestExecute_DistinctKeysBothRun(t *testing.T) {
	manager := setupManager(t)
	ctx := context.Background()

	runs := 0
	fn := func(context.Context) error {
		runs++
		return nil
	}

	for _, key := range []string{"msg:1:100", "msg:1:101"} {
		executed, err := manager.Execute(ctx, key, time.Hour, fn)
		require.NoError(t, err)
		assert.True(t, executed)
	}

	assert.Equal(t, 2, runs)
}

func TestExecute_FailedOperationCanBeRetried(t *testing.T) {
	manager := setupManager(t)
	ctx := context.Background()

	boom := errors.New("boom")
	executed, err := manager.Execute(ctx, "msg:1:100", time.Hour, func(context.Context) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.True(t, executed)

	// the failure was not marked completed, a retry runs again
	executed, err = manager.Execute(ctx, "msg:1:100", time.Hour, func(context.Context) error {
		return nil
	})
	require.NoError(t, err)
	assert.True(t, executed)
}

func TestExecute_ConcurrentDeliveryReturnsInProgress(t *testing.T) {
	manager := setupManager(t)
	ctx := context.Background()

	_, err := manager.Execute(ctx, "msg:1:100", time.Hour, func(ctx context.Context) error {
		_, innerErr := manager.Execute(ctx, "msg:1:100", time.Hour, func(context.Context) error {
			return nil
		})
		return innerErr
	})

	assert.ErrorIs(t, err, ErrInProgress)
}

func TestExecute_NilOperation(t *testing.T) {
	manager := setupManager(t)

	_, err := manager.Execute(context.Background(), "msg:1:100", time.Hour, nil)
	assert.Error(t, err)
}
