package dedupe

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T, key string) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), key)
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestRedisStoreGetPut(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t, "")

	_, ok, err := store.Get(ctx, "37.1000,127.0000.jpg")
	require.NoError(t, err)
	assert.False(t, ok, "missing field is not found")

	require.NoError(t, store.Put(ctx, "37.1000,127.0000.jpg", "aaaa"))
	fp, ok, err := store.Get(ctx, "37.1000,127.0000.jpg")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "aaaa", fp)

	require.NoError(t, store.Put(ctx, "37.1000,127.0000.jpg", "bbbb"))
	fp, _, err = store.Get(ctx, "37.1000,127.0000.jpg")
	require.NoError(t, err)
	assert.Equal(t, "bbbb", fp)

	assert.Equal(t, "bbbb", mr.HGet("remote_dedupe", "37.1000,127.0000.jpg"))
}

func TestRedisStoreCustomKey(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t, "pipeline:seen")

	require.NoError(t, store.Put(ctx, "a.jpg", "aaaa"))
	assert.Equal(t, "aaaa", mr.HGet("pipeline:seen", "a.jpg"))
	assert.False(t, mr.Exists("remote_dedupe"))
}

func TestRedisStoreServerDown(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t, "")
	mr.Close()

	_, _, err := store.Get(ctx, "a.jpg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get fingerprint")

	require.Error(t, store.Put(ctx, "a.jpg", "aaaa"))
}

func TestOpenRedisStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	store, err := OpenRedisStore(ctx, mr.Addr(), "", "")
	require.NoError(t, err)
	defer store.Close()

	tr := NewTracker(store, RecordOnSubmit)
	require.NoError(t, tr.Record(ctx, "a.jpg", "aaaa"))
	process, err := tr.ShouldProcess(ctx, "a.jpg", "aaaa")
	require.NoError(t, err)
	assert.False(t, process)

	mr.Close()
	_, err = OpenRedisStore(ctx, mr.Addr(), "", "")
	require.Error(t, err)
}
