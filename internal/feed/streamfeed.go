package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	rediscommon "medease-realtime/common/redis"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// StreamFeed 基于 Redis Streams 的变更流。
// 每张表一个 stream，每个订阅一个消费者组（从 $ 开始），多实例各自完整收到变更。
type StreamFeed struct {
	client    *redis.Client
	prefix    string
	maxLen    int64
	batchSize int64
	block     time.Duration
	logger    *zap.Logger
}

// StreamFeedOptions stream 参数
type StreamFeedOptions struct {
	Prefix    string
	MaxLen    int64
	BatchSize int64
	Block     time.Duration
}

// NewStreamFeed 创建 Redis Streams 变更流
func NewStreamFeed(client *redis.Client, opts StreamFeedOptions, logger *zap.Logger) *StreamFeed {
	if opts.Prefix == "" {
		opts.Prefix = "medease:changes"
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.Block <= 0 {
		opts.Block = time.Second
	}
	return &StreamFeed{
		client:    client,
		prefix:    opts.Prefix,
		maxLen:    opts.MaxLen,
		batchSize: opts.BatchSize,
		block:     opts.Block,
		logger:    logger,
	}
}

// StreamName 表对应的 stream 名
func (f *StreamFeed) StreamName(table string) string {
	return f.prefix + ":" + table
}

// GroupName 订阅对应的消费者组名
func GroupName(subscription string) string {
	return "medease-" + subscription
}

// Publish 追加一条变更
func (f *StreamFeed) Publish(ctx context.Context, c Change) error {
	if c.Table == "" {
		return errors.New("change without table")
	}
	if _, err := rediscommon.PublishJSONToStream(ctx, f.client, f.StreamName(c.Table), f.maxLen, c); err != nil {
		return fmt.Errorf("failed to publish change for %s: %w", c.Table, err)
	}
	return nil
}

type streamChannel struct {
	*channelState
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
	cleanup  func()
}

// Subscribe 为订阅创建消费者组并开始读取
func (f *StreamFeed) Subscribe(ctx context.Context, name string, subs []Subscription, h Handler) (Channel, error) {
	group := GroupName(name)
	tables := tablesOf(subs)
	streams := make([]string, 0, len(tables))
	for _, table := range tables {
		stream := f.StreamName(table)
		if err := rediscommon.CreateConsumerGroup(ctx, f.client, stream, group, "$"); err != nil {
			return nil, fmt.Errorf("failed to create consumer group on %s: %w", stream, err)
		}
		streams = append(streams, stream)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	ch := &streamChannel{
		channelState: newChannelState(),
		cancel:       cancel,
	}
	ch.cleanup = func() {
		cctx, ccancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer ccancel()
		for _, stream := range streams {
			if err := rediscommon.DestroyConsumerGroup(cctx, f.client, stream, group); err != nil {
				f.logger.Debug("Failed to destroy consumer group",
					zap.String("stream", stream),
					zap.String("group", group),
					zap.Error(err),
				)
			}
		}
	}

	r := router{subs: subs, handler: h}
	ch.wg.Add(1)
	go f.consume(loopCtx, ch, r, streams, group, name)

	return ch, nil
}

func (f *StreamFeed) consume(ctx context.Context, ch *streamChannel, r router, streams []string, group, consumer string) {
	defer ch.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}
		msgs, err := rediscommon.ReadFromStreams(ctx, f.client, streams, group, consumer, f.batchSize, f.block)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			ch.finish(fmt.Errorf("failed to read change stream: %w", err))
			return
		}

		for _, msg := range msgs {
			// Close 之后不再回调
			if ctx.Err() != nil {
				return
			}
			if change, err := parseChange(msg); err != nil {
				f.logger.Warn("Dropping malformed change message",
					zap.String("stream", msg.Stream),
					zap.String("message_id", msg.ID),
					zap.Error(err),
				)
			} else {
				r.dispatch(change)
			}
			if err := rediscommon.Ack(ctx, f.client, msg.Stream, group, msg.ID); err != nil && ctx.Err() == nil {
				f.logger.Warn("Failed to ack message",
					zap.String("message_id", msg.ID),
					zap.Error(err),
				)
			}
		}
	}
}

func parseChange(msg rediscommon.StreamMessage) (Change, error) {
	var c Change
	data, ok := msg.Values["data"].(string)
	if !ok {
		return c, errors.New("missing data field")
	}
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return c, err
	}
	return c, nil
}

// Close 停止读取并删除消费者组
func (c *streamChannel) Close() error {
	c.stopOnce.Do(func() {
		c.cancel()
		c.wg.Wait()
		c.finish(nil)
		c.cleanup()
	})
	return nil
}
