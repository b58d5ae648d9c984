package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"ask-docs-go/pkg/log"
)

// AnswerCacheRepository 定义了问答缓存的操作接口。
// 键为 (用户, 原样问题串)，不做任何归一化：大小写或空白不同即是不同键。
type AnswerCacheRepository interface {
	Get(ctx context.Context, userID, question string) (string, bool, error)
	Set(ctx context.Context, userID, question, answer string, ttl time.Duration) error
	DeleteByUser(ctx context.Context, userID string) (int, error)
}

// redisAnswerCacheRepository 是 AnswerCacheRepository 的 Redis 实现。
type redisAnswerCacheRepository struct {
	rdb *redis.Client
}

// NewAnswerCacheRepository 创建一个新的 AnswerCacheRepository 实例。
func NewAnswerCacheRepository(rdb *redis.Client) AnswerCacheRepository {
	return &redisAnswerCacheRepository{rdb: rdb}
}

func cacheKey(userID, question string) string {
	return fmt.Sprintf("answer:%s:%s", userID, question)
}

// Get 查询缓存的答案。第二个返回值表示是否命中。
func (r *redisAnswerCacheRepository) Get(ctx context.Context, userID, question string) (string, bool, error) {
	answer, err := r.rdb.Get(ctx, cacheKey(userID, question)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("读取问答缓存失败: %w", err)
	}
	return answer, true, nil
}

// Set 以 SETEX 语义写入答案并设置过期时间。
func (r *redisAnswerCacheRepository) Set(ctx context.Context, userID, question, answer string, ttl time.Duration) error {
	if err := r.rdb.SetEX(ctx, cacheKey(userID, question), answer, ttl).Err(); err != nil {
		return fmt.Errorf("写入问答缓存失败: %w", err)
	}
	return nil
}

// DeleteByUser 枚举并删除某个用户的全部缓存条目，返回删除数量。
// 使用 SCAN 遍历避免 KEYS 阻塞。
func (r *redisAnswerCacheRepository) DeleteByUser(ctx context.Context, userID string) (int, error) {
	pattern := fmt.Sprintf("answer:%s:*", userID)
	deleted := 0

	iter := r.rdb.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := r.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			log.Errorf("[cache] 删除缓存键失败, key: %s, err: %v", iter.Val(), err)
			continue
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("遍历用户缓存键失败: %w", err)
	}
	return deleted, nil
}
