// Package database 提供 MySQL 与 Redis 客户端的构造函数。
package database

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"ask-docs-go/pkg/log"
)

// NewRedis 建立 Redis 客户端连接并验证连通性。
func NewRedis(addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// 测试连接
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}

	log.Info("Redis client connected successfully")
	return rdb, nil
}
