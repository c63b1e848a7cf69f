package stock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute), mr
}

func TestCacheVersionInitialises(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	ver, err := cache.Version(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), ver)

	ver, err = cache.Version(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), ver)
}

func TestFetchJSONFillsThenHits(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	key, err := cache.BuildKey(ctx, "warehouse", "3")
	require.NoError(t, err)

	calls := 0
	loader := func(context.Context) (interface{}, error) {
		calls++
		return []WarehouseRow{{ProductID: 1, SKU: "SKU-1", Quantity: 42}}, nil
	}

	var rows []WarehouseRow
	require.NoError(t, cache.FetchJSON(ctx, key, &rows, loader))
	require.Equal(t, 1, calls)
	require.Len(t, rows, 1)
	require.Equal(t, int64(42), rows[0].Quantity)

	rows = nil
	require.NoError(t, cache.FetchJSON(ctx, key, &rows, loader))
	require.Equal(t, 1, calls, "second read must come from the cache")
	require.Len(t, rows, 1)
}

func TestBumpChangesKeys(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	before, err := cache.BuildKey(ctx, "low")
	require.NoError(t, err)

	require.NoError(t, cache.Bump(ctx))

	after, err := cache.BuildKey(ctx, "low")
	require.NoError(t, err)
	require.NotEqual(t, before, after)
}

func TestCacheDisabledFallsThrough(t *testing.T) {
	var cache *Cache
	ctx := context.Background()

	key, err := cache.BuildKey(ctx, "product", "9")
	require.NoError(t, err)
	require.Equal(t, "stock:product:9", key)

	calls := 0
	var rows []ProductRow
	loader := func(context.Context) (interface{}, error) {
		calls++
		return []ProductRow{{LocationID: 4, Quantity: 7}}, nil
	}
	require.NoError(t, cache.FetchJSON(ctx, key, &rows, loader))
	require.NoError(t, cache.FetchJSON(ctx, key, &rows, loader))
	require.Equal(t, 2, calls)

	require.NoError(t, cache.Bump(ctx))
}
