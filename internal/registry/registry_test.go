package registry

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	srv, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	return client, func() {
		_ = client.Close()
		srv.Close()
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegistry_AddAndList(t *testing.T) {
	client, cleanup := setup(t)
	defer cleanup()

	reg := NewRegistry(client, testLogger())
	ctx := context.Background()

	require.NoError(t, reg.Add(ctx, 1))
	require.NoError(t, reg.Add(ctx, 2))
	require.NoError(t, reg.Add(ctx, 2)) // duplicate is a no-op

	ids, err := reg.All(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 2}, ids)

	count, err := reg.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestBanList_RoundTrip(t *testing.T) {
	client, cleanup := setup(t)
	defer cleanup()

	bans := NewBanList(client, testLogger())
	ctx := context.Background()

	banned, err := bans.Contains(ctx, 42)
	require.NoError(t, err)
	assert.False(t, banned)

	require.NoError(t, bans.Add(ctx, 42))

	banned, err = bans.Contains(ctx, 42)
	require.NoError(t, err)
	assert.True(t, banned)

	require.NoError(t, bans.Remove(ctx, 42))

	banned, err = bans.Contains(ctx, 42)
	require.NoError(t, err)
	assert.False(t, banned)
}

func TestBanList_RemoveAbsentIsNotAnError(t *testing.T) {
	client, cleanup := setup(t)
	defer cleanup()

	bans := NewBanList(client, testLogger())
	assert.NoError(t, bans.Remove(context.Background(), 99))
}

func TestRegistry_BanDoesNotRemoveFromRegistry(t *testing.T) {
	client, cleanup := setup(t)
	defer cleanup()

	reg := NewRegistry(client, testLogger())
	bans := NewBanList(client, testLogger())
	ctx := context.Background()

	require.NoError(t, reg.Add(ctx, 42))
	require.NoError(t, bans.Add(ctx, 42))

	ids, err := reg.All(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, int64(42))
}
