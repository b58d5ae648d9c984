// Package limiter 实现了基于 Redis 固定窗口计数器的限流。
package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"ask-docs-go/pkg/log"
)

// FixedWindow 是按 (scope, identity) 键控的固定窗口计数器。
// 计数器在窗口自然过期时才重置，没有滑动窗口、没有部分额度。
type FixedWindow struct {
	rdb    *redis.Client
	scope  string
	limit  int
	window time.Duration
}

// NewFixedWindow 创建一个固定窗口限流器。
// scope 区分相互独立的计数器（如 general / generation）。
func NewFixedWindow(rdb *redis.Client, scope string, limit int, window time.Duration) *FixedWindow {
	return &FixedWindow{rdb: rdb, scope: scope, limit: limit, window: window}
}

// Window 返回窗口长度，作为 429 响应的重试提示。
func (l *FixedWindow) Window() time.Duration {
	return l.window
}

// Allow 对 identity 的计数加一并判断是否超限。
// 自增结果为 1 时说明这是窗口内的第一次请求，此时设置过期时间；
// 自增结果超过阈值则拒绝。
func (l *FixedWindow) Allow(ctx context.Context, identity string) (bool, error) {
	key := fmt.Sprintf("ratelimit:%s:%s", l.scope, identity)

	count, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("限流计数失败: %w", err)
	}
	if count == 1 {
		if err := l.rdb.Expire(ctx, key, l.window).Err(); err != nil {
			log.Errorf("[limiter] 设置窗口过期时间失败, key: %s, err: %v", key, err)
		}
	}

	if count > int64(l.limit) {
		log.Warnf("[limiter] 超出限流阈值, scope: %s, identity: %s, count: %d, limit: %d",
			l.scope, identity, count, l.limit)
		return false, nil
	}
	return true, nil
}
