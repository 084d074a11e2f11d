package service

import (
	"context"
	"fmt"

	"medease-realtime/common/database"
	rediscommon "medease-realtime/common/redis"
	"medease-realtime/internal/config"
	"medease-realtime/internal/feed"
	"medease-realtime/migrations"

	"go.uber.org/zap"
)

// RunRelay Postgres 通知 → Redis Streams，阻塞直到 ctx 结束
func RunRelay(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	redisClient := rediscommon.NewRedisClient(&cfg.Redis)
	defer rediscommon.Close(redisClient)
	if err := rediscommon.Ping(ctx, redisClient); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	source := feed.NewPGFeed(cfg.Database.GetDSN(), cfg.Feed.MinReconnect, cfg.Feed.MaxReconnect, logger)
	sink := feed.NewStreamFeed(redisClient, feed.StreamFeedOptions{
		Prefix:    cfg.Feed.StreamPrefix,
		MaxLen:    cfg.Feed.StreamMaxLen,
		BatchSize: cfg.Feed.BatchSize,
		Block:     cfg.Feed.Block,
	}, logger)
	return feed.NewRelay(source, sink, logger).Run(ctx)
}

// Migrate 安装变更通知触发器
func Migrate(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	db, err := database.NewPostgresDB(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close(db)
	return migrations.Apply(ctx, db, logger)
}
