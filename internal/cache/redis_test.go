package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStoreFromClient(client), mr
}

func TestRedisStore_SetGet(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "emb:abc", []byte(`[0.1,0.2]`), time.Hour))

	data, ok, err := store.Get(ctx, "emb:abc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte(`[0.1,0.2]`), data)
}

func TestRedisStore_MissIsNotAnError(t *testing.T) {
	store, _ := newTestStore(t)

	data, ok, err := store.Get(context.Background(), "emb:missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, data)
}

func TestRedisStore_TTLExpiry(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "emb:abc", []byte("v"), time.Minute))

	mr.FastForward(2 * time.Minute)

	_, ok, err := store.Get(ctx, "emb:abc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_BackendFailure(t *testing.T) {
	store, mr := newTestStore(t)
	mr.Close()

	_, _, err := store.Get(context.Background(), "emb:abc")
	assert.Error(t, err)
	assert.Error(t, store.Set(context.Background(), "emb:abc", []byte("v"), time.Minute))
}
