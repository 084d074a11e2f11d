package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *redis.Client {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestCreateConsumerGroup_Idempotent(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, CreateConsumerGroup(ctx, client, "changes", "g1", "$"))
	require.NoError(t, CreateConsumerGroup(ctx, client, "changes", "g1", "$"))
}

func TestPublishJSONToStream_ReadFromStream(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, CreateConsumerGroup(ctx, client, "changes", "g1", "$"))

	id, err := PublishJSONToStream(ctx, client, "changes", 0, map[string]string{"table": "appointments"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgs, err := ReadFromStream(ctx, client, "changes", "g1", "c1", 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, id, msgs[0].ID)
	assert.JSONEq(t, `{"table":"appointments"}`, msgs[0].Values["data"].(string))

	require.NoError(t, Ack(ctx, client, "changes", "g1", id))

	msgs, err = ReadFromStream(ctx, client, "changes", "g1", "c1", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestPublishToStream_StringifiesValues(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	_, err := PublishToStream(ctx, client, "s", 0, map[string]interface{}{
		"n":    int64(3),
		"ok":   true,
		"tags": []string{"a"},
	})
	require.NoError(t, err)

	entries, err := client.XRange(ctx, "s", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "3", entries[0].Values["n"])
	assert.Equal(t, "true", entries[0].Values["ok"])
	assert.Equal(t, `["a"]`, entries[0].Values["tags"])
}

func TestReadFromStreams_MultipleStreams(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	for _, s := range []string{"changes:a", "changes:b"} {
		require.NoError(t, CreateConsumerGroup(ctx, client, s, "g1", "$"))
	}
	_, err := PublishJSONToStream(ctx, client, "changes:a", 0, map[string]int{"n": 1})
	require.NoError(t, err)
	_, err = PublishJSONToStream(ctx, client, "changes:b", 0, map[string]int{"n": 2})
	require.NoError(t, err)

	msgs, err := ReadFromStreams(ctx, client, []string{"changes:a", "changes:b"}, "g1", "c1", 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	streams := []string{msgs[0].Stream, msgs[1].Stream}
	assert.ElementsMatch(t, []string{"changes:a", "changes:b"}, streams)
}

func TestDestroyConsumerGroup(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, CreateConsumerGroup(ctx, client, "changes", "g1", "$"))
	require.NoError(t, DestroyConsumerGroup(ctx, client, "changes", "g1"))

	_, err := ReadFromStream(ctx, client, "changes", "g1", "c1", 10, 0)
	assert.Error(t, err)
}
