package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return map[string]Client{
		"memory": NewMemory("test", 0),
		"redis":  NewRedisWithClient(rdb, "test"),
	}
}

func TestClient_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	for name, c := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := c.Get(ctx, "k")
			assert.True(t, IsNotFound(err))

			require.NoError(t, c.Set(ctx, "k", "v", 0))
			v, err := c.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, "v", v)

			ok, err := c.Exists(ctx, "k")
			require.NoError(t, err)
			assert.True(t, ok)

			existed, err := c.Delete(ctx, "k")
			require.NoError(t, err)
			assert.True(t, existed)

			existed, err = c.Delete(ctx, "k")
			require.NoError(t, err)
			assert.False(t, existed)
		})
	}
}

func TestClient_Add(t *testing.T) {
	ctx := context.Background()
	for name, c := range backends(t) {
		t.Run(name, func(t *testing.T) {
			added, err := c.Add(ctx, "a", "1", 0)
			require.NoError(t, err)
			assert.True(t, added)

			added, err = c.Add(ctx, "a", "2", 0)
			require.NoError(t, err)
			assert.False(t, added)

			v, _ := c.Get(ctx, "a")
			assert.Equal(t, "1", v)
		})
	}
}

func TestClient_TakeIsOneShot(t *testing.T) {
	ctx := context.Background()
	for name, c := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, c.Set(ctx, "code", "payload", time.Minute))

			var wins int32
			var wg sync.WaitGroup
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if v, err := c.Take(ctx, "code"); err == nil && v == "payload" {
						atomic.AddInt32(&wins, 1)
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, int32(1), wins)

			_, err := c.Take(ctx, "code")
			assert.True(t, IsNotFound(err))
		})
	}
}

func TestMemory_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemory("", 0)
	require.NoError(t, c.Set(ctx, "short", "v", 20*time.Millisecond))
	time.Sleep(40 * time.Millisecond)

	_, err := c.Get(ctx, "short")
	assert.True(t, IsNotFound(err))
	_, err = c.Take(ctx, "short")
	assert.True(t, IsNotFound(err))
}

func TestRedis_Expiry(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	c := NewRedisWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "")

	require.NoError(t, c.Set(ctx, "short", "v", time.Second))
	mr.FastForward(2 * time.Second)

	_, err := c.Get(ctx, "short")
	assert.True(t, IsNotFound(err))
}

func TestNew_UnknownDriver(t *testing.T) {
	_, err := New(context.Background(), Config{Driver: "memcached"})
	assert.Error(t, err)
}

func TestClient_Incr(t *testing.T) {
	ctx := context.Background()
	for name, c := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for want := int64(1); want <= 3; want++ {
				n, err := c.Incr(ctx, "hits", time.Minute)
				require.NoError(t, err)
				assert.Equal(t, want, n)
			}
			v, err := c.Get(ctx, "hits")
			require.NoError(t, err)
			assert.Equal(t, "3", v)
		})
	}
}

func TestRedis_IncrWindowExpires(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	c := NewRedisWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "")

	_, err := c.Incr(ctx, "w", time.Minute)
	require.NoError(t, err)
	_, err = c.Incr(ctx, "w", time.Minute)
	require.NoError(t, err)
	mr.FastForward(61 * time.Second)

	n, err := c.Incr(ctx, "w", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
