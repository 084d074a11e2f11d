package feed

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Publisher 变更写入端
type Publisher interface {
	Publish(ctx context.Context, c Change) error
}

// Relay 订阅源变更流（全部表、不过滤）并转发到 Redis Streams，供多实例消费
type Relay struct {
	source     Feed
	sink       Publisher
	tables     []string
	logger     *zap.Logger
	backoff    time.Duration
	maxBackoff time.Duration
}

// NewRelay 创建转发器
func NewRelay(source Feed, sink Publisher, logger *zap.Logger) *Relay {
	return &Relay{
		source:     source,
		sink:       sink,
		tables:     Tables,
		logger:     logger,
		backoff:    time.Second,
		maxBackoff: 30 * time.Second,
	}
}

// Run 阻塞直到 ctx 结束；订阅失败或断开时指数退避后重建
func (r *Relay) Run(ctx context.Context) error {
	subs := make([]Subscription, 0, len(r.tables))
	for _, t := range r.tables {
		subs = append(subs, Subscription{Table: t})
	}

	r.logger.Info("Change relay started", zap.Strings("tables", r.tables))

	backoffDuration := r.backoff
	for {
		ch, err := r.source.Subscribe(ctx, "relay", subs, func(c Change) {
			if err := r.sink.Publish(ctx, c); err != nil {
				r.logger.Error("Failed to relay change",
					zap.String("table", c.Table),
					zap.String("type", string(c.Type)),
					zap.Error(err),
				)
			}
		})
		if err == nil {
			// 成功时重置退避时间
			backoffDuration = r.backoff
			select {
			case <-ctx.Done():
				_ = ch.Close()
				return nil
			case <-ch.Done():
				err = ch.Err()
				_ = ch.Close()
			}
		}
		if ctx.Err() != nil {
			return nil
		}

		r.logger.Error("Change relay subscription lost",
			zap.Error(err),
			zap.Duration("backoff", backoffDuration),
		)

		// 指数退避
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoffDuration):
			backoffDuration *= 2
			if backoffDuration > r.maxBackoff {
				backoffDuration = r.maxBackoff
			}
		}
	}
}
