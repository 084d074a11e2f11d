package aggregator_test

import (
	"context"
	"sync"
	"time"

	agg "medease-realtime/internal/aggregator"
)

// memKV 内存 KV，按墙钟判断过期
type memKV struct {
	mu      sync.Mutex
	values  map[string]string
	expires map[string]time.Time
	deletes int
}

func newMemKV() *memKV {
	return &memKV{values: make(map[string]string), expires: make(map[string]time.Time)}
}

func (m *memKV) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if exp, ok := m.expires[key]; ok && time.Now().After(exp) {
		delete(m.values, key)
		delete(m.expires, key)
	}
	v, ok := m.values[key]
	if !ok {
		return "", agg.ErrCacheMiss
	}
	return v, nil
}

func (m *memKV) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	delete(m.expires, key)
	if ttl > 0 {
		m.expires[key] = time.Now().Add(ttl)
	}
	return nil
}

func (m *memKV) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	delete(m.expires, key)
	m.deletes++
	return nil
}
