package catalog

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLoader(counter *int, material Material) func(context.Context) (Material, error) {
	return func(context.Context) (Material, error) {
		*counter++
		return material, nil
	}
}

func TestCacheNilClientDelegatesToLoader(t *testing.T) {
	cache := NewCache(nil, time.Minute)

	calls := 0
	material := Material{ID: uuid.New(), Name: "Цемент М500"}
	for i := 0; i < 3; i++ {
		got, err := cache.FetchMaterial(context.Background(), material.ID.String(), testLoader(&calls, material))
		require.NoError(t, err)
		assert.Equal(t, material.Name, got.Name)
	}
	assert.Equal(t, 3, calls)
}

func TestCacheServesSecondFetchFromRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(client, time.Minute)

	calls := 0
	material := Material{ID: uuid.New(), Name: "Цемент М500"}
	loader := testLoader(&calls, material)

	_, err := cache.FetchMaterial(context.Background(), material.ID.String(), loader)
	require.NoError(t, err)
	got, err := cache.FetchMaterial(context.Background(), material.ID.String(), loader)
	require.NoError(t, err)

	assert.Equal(t, material.Name, got.Name)
	assert.Equal(t, 1, calls)
}

func TestCacheBumpInvalidatesEntries(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(client, time.Minute)

	calls := 0
	material := Material{ID: uuid.New(), Name: "Цемент М500"}
	loader := testLoader(&calls, material)

	_, err := cache.FetchMaterial(context.Background(), material.ID.String(), loader)
	require.NoError(t, err)

	cache.Bump(context.Background())

	_, err = cache.FetchMaterial(context.Background(), material.ID.String(), loader)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestCacheRedisOutageFallsThrough(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(client, time.Minute)
	mr.Close()

	calls := 0
	material := Material{ID: uuid.New(), Name: "Цемент М500"}
	got, err := cache.FetchMaterial(context.Background(), material.ID.String(), testLoader(&calls, material))
	require.NoError(t, err)
	assert.Equal(t, material.Name, got.Name)
	assert.Equal(t, 1, calls)
}
