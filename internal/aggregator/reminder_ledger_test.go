package aggregator

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestReminderLedger_RedisExpiresAtLocalMidnight(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	loc, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)
	now := time.Date(2025, 3, 10, 21, 30, 0, 0, loc)
	at := time.Date(2025, 3, 10, 9, 0, 0, 0, loc)

	ctx := context.Background()
	ledger := NewReminderLedger(NewRedisKVStore(client), zap.NewNop())
	require.NoError(t, ledger.add(ctx, "user-1", "m1", at, now, loc))

	key := ReminderLedgerKey("user-1", now)
	assert.Equal(t, "medease:reminders:user-1:2025-03-10", key)
	assert.Equal(t, 150*time.Minute, mr.TTL(key))

	marks, err := ledger.load(ctx, "user-1", now, loc)
	require.NoError(t, err)
	assert.True(t, marks[reminderKey{medicationID: "m1", at: at.Unix()}])

	mr.FastForward(151 * time.Minute)
	marks, err = ledger.load(ctx, "user-1", now, loc)
	require.NoError(t, err)
	assert.Empty(t, marks)
}

func TestReminderLedger_AddMergesAndDedupes(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 13, 0, 0, 0, time.UTC)
	nine := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	eight := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	kv := NewMemoryKVStore()
	// 两个实例共享同一存储
	a := NewReminderLedger(kv, zap.NewNop())
	b := NewReminderLedger(kv, zap.NewNop())

	require.NoError(t, a.add(ctx, "user-1", "m1", nine, now, time.UTC))
	require.NoError(t, b.add(ctx, "user-1", "m2", eight, now, time.UTC))
	require.NoError(t, b.add(ctx, "user-1", "m1", nine, now, time.UTC))

	marks, err := a.load(ctx, "user-1", now, time.UTC)
	require.NoError(t, err)
	assert.Len(t, marks, 2)

	other, err := a.load(ctx, "user-2", now, time.UTC)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestMemoryKVStore_Expiry(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2025, 3, 10, 23, 0, 0, 0, time.UTC)
	kv := NewMemoryKVStore()
	kv.now = func() time.Time { return clock }

	require.NoError(t, kv.Set(ctx, "a", "1", time.Hour))
	require.NoError(t, kv.Set(ctx, "b", "2", 0))

	v, err := kv.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	clock = clock.Add(time.Hour)
	_, err = kv.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrCacheMiss)
	v, err = kv.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "2", v)

	require.NoError(t, kv.Delete(ctx, "b"))
	_, err = kv.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
