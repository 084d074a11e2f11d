package aggregator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

var ErrCacheMiss = errors.New("cache miss")

// KVStore 快照缓存与服药标记共用的 KV 接口
// Get 在 key 不存在或已过期时返回 ErrCacheMiss
type KVStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

var (
	_ KVStore = (*RedisKVStore)(nil)
	_ KVStore = (*MemoryKVStore)(nil)
)

// RedisKVStore 单机、哨兵、集群均可
type RedisKVStore struct {
	client redis.UniversalClient
}

func NewRedisKVStore(client redis.UniversalClient) *RedisKVStore {
	return &RedisKVStore{client: client}
}

func (s *RedisKVStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	return val, err
}

// Set ttl <= 0 表示不过期
func (s *RedisKVStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisKVStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// MemoryKVStore 进程内 KV，没有 Redis 时保存提醒标记
type MemoryKVStore struct {
	mu      sync.Mutex
	values  map[string]string
	expires map[string]time.Time
	now     func() time.Time
}

func NewMemoryKVStore() *MemoryKVStore {
	return &MemoryKVStore{
		values:  make(map[string]string),
		expires: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (m *MemoryKVStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if exp, ok := m.expires[key]; ok && !m.now().Before(exp) {
		delete(m.values, key)
		delete(m.expires, key)
	}
	v, ok := m.values[key]
	if !ok {
		return "", ErrCacheMiss
	}
	return v, nil
}

// Set 顺带清理已过期的 key
func (m *MemoryKVStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for k, exp := range m.expires {
		if !now.Before(exp) {
			delete(m.values, k)
			delete(m.expires, k)
		}
	}
	m.values[key] = value
	delete(m.expires, key)
	if ttl > 0 {
		m.expires[key] = now.Add(ttl)
	}
	return nil
}

func (m *MemoryKVStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	delete(m.expires, key)
	return nil
}
