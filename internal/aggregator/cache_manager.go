package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"medease-realtime/internal/models"

	"go.uber.org/zap"
)

// CacheManager 快照缓存（最近一次成功的聚合结果），用于初始拉取失败时兜底
type CacheManager struct {
	kv     KVStore
	ttl    time.Duration
	logger *zap.Logger
}

// NewCacheManager 创建缓存管理器
func NewCacheManager(kv KVStore, ttl time.Duration, logger *zap.Logger) *CacheManager {
	return &CacheManager{
		kv:     kv,
		ttl:    ttl,
		logger: logger,
	}
}

// SnapshotKey 用户快照的缓存 key
func SnapshotKey(userID string) string {
	return fmt.Sprintf("medease:dashboard:%s:snapshot", userID)
}

// SaveSnapshot 写入快照（warnings 不缓存）
func (c *CacheManager) SaveSnapshot(ctx context.Context, snap models.Snapshot) error {
	key := SnapshotKey(snap.UserID)
	snap.Warnings = nil

	jsonData, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := c.kv.Set(ctx, key, string(jsonData), c.ttl); err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}

	c.logger.Debug("Updated snapshot cache",
		zap.String("user_id", snap.UserID),
		zap.String("key", key),
	)

	return nil
}

// LoadSnapshot 读取快照，不存在时返回 ErrCacheMiss；无法解析的缓存会被删除并按未命中处理
func (c *CacheManager) LoadSnapshot(ctx context.Context, userID string) (*models.Snapshot, error) {
	key := SnapshotKey(userID)
	raw, err := c.kv.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var snap models.Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		c.logger.Warn("Dropping unreadable snapshot cache",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		if delErr := c.kv.Delete(ctx, key); delErr != nil {
			return nil, fmt.Errorf("failed to drop unreadable snapshot: %w", delErr)
		}
		return nil, ErrCacheMiss
	}
	return &snap, nil
}
