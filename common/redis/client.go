package redis

import (
	"context"
	"fmt"
	"time"

	"medease-realtime/common/config"

	"github.com/go-redis/redis/v8"
)

// Client go-redis 客户端别名，调用方无需直接依赖 go-redis
type Client = redis.Client

// NewRedisClient 快照缓存与变更 stream 共用一个连接池
func NewRedisClient(cfg *config.RedisConfig) *redis.Client {
	opts := &redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
		// XREADGROUP BLOCK 由 go-redis 自行延长读超时
		ReadTimeout: 3 * time.Second,
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	return redis.NewClient(opts)
}

// Ping 探活，错误带上地址
func Ping(ctx context.Context, client *redis.Client) error {
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis %s: %w", client.Options().Addr, err)
	}
	return nil
}

// Close nil 安全
func Close(client *redis.Client) error {
	if client == nil {
		return nil
	}
	return client.Close()
}
