package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitfi/service_layer/internal/domain"
)

func newRedisTestStore(t *testing.T, ttl time.Duration) *RedisStore {
	t.Helper()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	prefix := "fitfi:test:" + uuid.NewString() + ":"
	store := NewRedisStoreWithClient(client, prefix, ttl)
	t.Cleanup(func() { _ = store.Clear(context.Background()) })
	return store
}

func TestRedisStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newRedisTestStore(t, time.Minute)

	entry, err := NewEntry("outfits_{}", []string{"o1"}, domain.OriginSnapshot, time.Now())
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, entry))

	got, ok, err := store.Get(ctx, "outfits_{}")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.OriginSnapshot, got.Origin)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Live)

	removed, err := store.DeletePrefix(ctx, "outfits_")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestRedisStore_LazyExpiry(t *testing.T) {
	ctx := context.Background()
	store := newRedisTestStore(t, time.Minute)
	now := time.Now()
	store.now = func() time.Time { return now }

	entry, err := NewEntry("products_{}", 1, domain.OriginRemote, now)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, entry))

	now = now.Add(time.Minute)
	_, ok, err := store.Get(ctx, "products_{}")
	require.NoError(t, err)
	assert.False(t, ok)
}
