package redis_a_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redis_a "github.com/ammerola/stockledger/internal/adapters/redis_adapter"
	"github.com/ammerola/stockledger/test/helpers"
)

func newCache(t *testing.T, namespace string) (*redis_a.Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return redis_a.NewCache(client, namespace, helpers.TestLogger()), mr
}

func TestCache_SetAndGet(t *testing.T) {
	ctx := context.Background()
	cache, _ := newCache(t, "test")

	tests := []struct {
		name  string
		key   string
		value interface{}
	}{
		{
			name:  "stores_and_retrieves_string",
			key:   "test:string",
			value: "test value",
		},
		{
			name: "stores_and_retrieves_struct",
			key:  "test:struct",
			value: struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			}{ID: "123", Name: "Test"},
		},
		{
			name:  "stores_and_retrieves_slice",
			key:   "test:slice",
			value: []string{"item1", "item2", "item3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, cache.SetWithTTL(ctx, tt.key, tt.value, time.Minute))

			var got json.RawMessage
			require.NoError(t, cache.Get(ctx, tt.key, &got))

			want, err := json.Marshal(tt.value)
			require.NoError(t, err)
			assert.JSONEq(t, string(want), string(got))
		})
	}
}

func TestCache_Namespace(t *testing.T) {
	ctx := context.Background()
	cache, mr := newCache(t, "stockledger:")

	require.NoError(t, cache.SetWithTTL(ctx, "stats:dashboard", 1, time.Minute))

	assert.True(t, mr.Exists("stockledger:stats:dashboard"))
	assert.False(t, mr.Exists("stats:dashboard"))
}

func TestCache_EmptyNamespace(t *testing.T) {
	ctx := context.Background()
	cache, mr := newCache(t, "")

	require.NoError(t, cache.SetWithTTL(ctx, "plain", "v", time.Minute))
	assert.True(t, mr.Exists("plain"))
}

func TestCache_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	cache, mr := newCache(t, "test")

	require.NoError(t, cache.SetWithTTL(ctx, "ttl:test", "value", 100*time.Millisecond))

	var result string
	require.NoError(t, cache.Get(ctx, "ttl:test", &result))
	assert.Equal(t, "value", result)

	mr.FastForward(200 * time.Millisecond)

	err := cache.Get(ctx, "ttl:test", &result)
	assert.ErrorIs(t, err, redis_a.ErrCacheMiss)
}

func TestCache_Delete(t *testing.T) {
	ctx := context.Background()
	cache, _ := newCache(t, "test")

	keys := []string{"del:1", "del:2", "del:3"}
	for _, key := range keys {
		require.NoError(t, cache.SetWithTTL(ctx, key, "value", time.Minute))
	}

	require.NoError(t, cache.Delete(ctx, keys...))
	require.NoError(t, cache.Delete(ctx))

	for _, key := range keys {
		var result string
		assert.ErrorIs(t, cache.Get(ctx, key, &result), redis_a.ErrCacheMiss)
	}
}

func TestCache_DeletePattern(t *testing.T) {
	ctx := context.Background()
	cache, mr := newCache(t, "test")

	// A key outside the namespace must survive even if it matches the pattern.
	require.NoError(t, mr.Set("stats:report:foreign", "x"))

	keysToDelete := []string{"stats:report:20260101:open", "stats:report:open:open"}
	keysToKeep := []string{"stats:dashboard", "notify:low_stock:1"}
	for _, key := range append(keysToDelete, keysToKeep...) {
		require.NoError(t, cache.SetWithTTL(ctx, key, "value", time.Minute))
	}

	require.NoError(t, cache.DeletePattern(ctx, "stats:report:*"))
	require.NoError(t, cache.DeletePattern(ctx, "nothing:*"))

	for _, key := range keysToDelete {
		var result string
		assert.ErrorIs(t, cache.Get(ctx, key, &result), redis_a.ErrCacheMiss)
	}
	for _, key := range keysToKeep {
		var result string
		require.NoError(t, cache.Get(ctx, key, &result))
		assert.Equal(t, "value", result)
	}
	assert.True(t, mr.Exists("stats:report:foreign"))
}

func TestCache_Exists(t *testing.T) {
	ctx := context.Background()
	cache, _ := newCache(t, "test")

	require.NoError(t, cache.SetWithTTL(ctx, "a", 1, time.Minute))
	require.NoError(t, cache.SetWithTTL(ctx, "b", 2, time.Minute))

	ok, err := cache.Exists(ctx, "a", "b")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cache.Exists(ctx, "a", "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_GetOrSet(t *testing.T) {
	ctx := context.Background()
	cache, _ := newCache(t, "test")

	type stats struct {
		Total int `json:"total"`
	}

	fetchCount := 0
	fetch := func() (interface{}, error) {
		fetchCount++
		return &stats{Total: 42}, nil
	}

	var first stats
	require.NoError(t, cache.GetOrSet(ctx, "getorset:test", &first, fetch, time.Minute))
	assert.Equal(t, 42, first.Total)
	assert.Equal(t, 1, fetchCount)

	var second stats
	require.NoError(t, cache.GetOrSet(ctx, "getorset:test", &second, fetch, time.Minute))
	assert.Equal(t, 42, second.Total)
	assert.Equal(t, 1, fetchCount)
}

func TestCache_GetOrSet_FetchError(t *testing.T) {
	ctx := context.Background()
	cache, _ := newCache(t, "test")

	wantErr := errors.New("database down")
	var dest string
	err := cache.GetOrSet(ctx, "getorset:err", &dest, func() (interface{}, error) {
		return nil, wantErr
	}, time.Minute)
	assert.ErrorIs(t, err, wantErr)

	ok, err := cache.Exists(ctx, "getorset:err")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_GetOrSet_RedisDownFallsBackToSource(t *testing.T) {
	ctx := context.Background()
	cache, mr := newCache(t, "test")
	mr.Close()

	var dest string
	err := cache.GetOrSet(ctx, "k", &dest, func() (interface{}, error) {
		return "from source", nil
	}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "from source", dest)
}

func TestCache_Increment(t *testing.T) {
	ctx := context.Background()
	cache, _ := newCache(t, "test")

	val, err := cache.Increment(ctx, "counter:test")
	require.NoError(t, err)
	assert.Equal(t, int64(1), val)

	val, err = cache.Increment(ctx, "counter:test")
	require.NoError(t, err)
	assert.Equal(t, int64(2), val)
}

func TestCache_SetNX(t *testing.T) {
	ctx := context.Background()
	cache, mr := newCache(t, "test")

	ok, err := cache.SetNX(ctx, "notify:low_stock:p1", "first", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cache.SetNX(ctx, "notify:low_stock:p1", "second", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	var result string
	require.NoError(t, cache.Get(ctx, "notify:low_stock:p1", &result))
	assert.Equal(t, "first", result)

	mr.FastForward(2 * time.Minute)
	ok, err = cache.SetNX(ctx, "notify:low_stock:p1", "third", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCache_Ping(t *testing.T) {
	ctx := context.Background()
	cache, mr := newCache(t, "test")

	require.NoError(t, cache.Ping(ctx))
	mr.Close()
	assert.Error(t, cache.Ping(ctx))
}
