package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func TestFixedWindowAllow(t *testing.T) {
	ctx := context.Background()

	t.Run("阈值内放行，超出后拒绝", func(t *testing.T) {
		_, rdb := newTestRedis(t)
		l := NewFixedWindow(rdb, "general", 20, time.Minute)

		for i := 0; i < 20; i++ {
			ok, err := l.Allow(ctx, "user-1")
			require.NoError(t, err)
			assert.True(t, ok, "第 %d 次请求应被放行", i+1)
		}
		ok, err := l.Allow(ctx, "user-1")
		require.NoError(t, err)
		assert.False(t, ok, "第 21 次请求应被拒绝")
	})

	t.Run("窗口过期后计数重置", func(t *testing.T) {
		mr, rdb := newTestRedis(t)
		l := NewFixedWindow(rdb, "generation", 5, time.Minute)

		for i := 0; i < 5; i++ {
			ok, err := l.Allow(ctx, "user-1")
			require.NoError(t, err)
			require.True(t, ok)
		}
		ok, err := l.Allow(ctx, "user-1")
		require.NoError(t, err)
		require.False(t, ok)

		mr.FastForward(time.Minute + time.Second)

		ok, err = l.Allow(ctx, "user-1")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("不同 identity 的计数相互独立", func(t *testing.T) {
		_, rdb := newTestRedis(t)
		l := NewFixedWindow(rdb, "generation", 1, time.Minute)

		ok, err := l.Allow(ctx, "user-1")
		require.NoError(t, err)
		require.True(t, ok)
		ok, err = l.Allow(ctx, "user-1")
		require.NoError(t, err)
		require.False(t, ok)

		ok, err = l.Allow(ctx, "user-2")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("不同 scope 的计数相互独立", func(t *testing.T) {
		_, rdb := newTestRedis(t)
		general := NewFixedWindow(rdb, "general", 1, time.Minute)
		generation := NewFixedWindow(rdb, "generation", 1, time.Minute)

		ok, err := general.Allow(ctx, "user-1")
		require.NoError(t, err)
		require.True(t, ok)
		ok, err = general.Allow(ctx, "user-1")
		require.NoError(t, err)
		require.False(t, ok)

		// general 超限不影响 generation 计数器
		ok, err = generation.Allow(ctx, "user-1")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("首次自增时设置窗口过期", func(t *testing.T) {
		mr, rdb := newTestRedis(t)
		l := NewFixedWindow(rdb, "general", 20, time.Minute)

		_, err := l.Allow(ctx, "user-1")
		require.NoError(t, err)
		ttl := mr.TTL("ratelimit:general:user-1")
		assert.Equal(t, time.Minute, ttl)
	})

	t.Run("Redis 不可用时返回错误", func(t *testing.T) {
		mr, rdb := newTestRedis(t)
		l := NewFixedWindow(rdb, "general", 20, time.Minute)
		mr.Close()

		_, err := l.Allow(ctx, "user-1")
		assert.Error(t, err)
	})
}
