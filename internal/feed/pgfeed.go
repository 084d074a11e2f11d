package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// NotifyChannel 触发器 pg_notify 使用的频道名
func NotifyChannel(table string) string {
	return "realtime_" + table
}

// PGFeed 基于 LISTEN/NOTIFY 的变更流，每个订阅独占一个 pq.Listener
type PGFeed struct {
	dsn          string
	minReconnect time.Duration
	maxReconnect time.Duration
	pingInterval time.Duration
	logger       *zap.Logger
}

// NewPGFeed 创建 Postgres 变更流
func NewPGFeed(dsn string, minReconnect, maxReconnect time.Duration, logger *zap.Logger) *PGFeed {
	return &PGFeed{
		dsn:          dsn,
		minReconnect: minReconnect,
		maxReconnect: maxReconnect,
		pingInterval: 90 * time.Second,
		logger:       logger,
	}
}

type pgChannel struct {
	*channelState
	listener *pq.Listener
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Subscribe LISTEN 每张表的频道；连接断开即结束订阅，由调用方决定是否重建
func (f *PGFeed) Subscribe(ctx context.Context, name string, subs []Subscription, h Handler) (Channel, error) {
	ch := &pgChannel{
		channelState: newChannelState(),
		stop:         make(chan struct{}),
	}

	logger := f.logger.With(zap.String("subscription", name))
	ch.listener = pq.NewListener(f.dsn, f.minReconnect, f.maxReconnect, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventDisconnected:
			logger.Warn("Change feed connection lost", zap.Error(err))
			ch.finish(fmt.Errorf("listener disconnected: %w", errOrUnknown(err)))
		case pq.ListenerEventConnectionAttemptFailed:
			ch.finish(fmt.Errorf("listener connection failed: %w", errOrUnknown(err)))
		}
	})

	for _, table := range tablesOf(subs) {
		if err := ch.listener.Listen(NotifyChannel(table)); err != nil {
			_ = ch.listener.Close()
			return nil, fmt.Errorf("failed to listen on %s: %w", table, err)
		}
	}
	// Listen 在未连上时只登记频道，Ping 确认连接可用
	if err := ch.listener.Ping(); err != nil {
		_ = ch.listener.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}
	if ctx.Err() != nil {
		_ = ch.listener.Close()
		return nil, ctx.Err()
	}

	r := router{subs: subs, handler: h}
	ch.wg.Add(1)
	go ch.loop(r, f.pingInterval, logger)

	logger.Debug("Change feed subscribed", zap.Int("tables", len(tablesOf(subs))))
	return ch, nil
}

func (c *pgChannel) loop(r router, pingInterval time.Duration, logger *zap.Logger) {
	defer c.wg.Done()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-c.done:
			return
		case n := <-c.listener.Notify:
			// nil 表示连接已重建，期间的通知可能丢失；断开时 channel 已结束
			if n == nil {
				continue
			}
			var change Change
			if err := json.Unmarshal([]byte(n.Extra), &change); err != nil {
				logger.Warn("Dropping malformed change payload",
					zap.String("channel", n.Channel),
					zap.Error(err),
				)
				continue
			}
			r.dispatch(change)
		case <-ticker.C:
			go func() {
				if err := c.listener.Ping(); err != nil {
					c.finish(fmt.Errorf("listener ping failed: %w", err))
				}
			}()
		}
	}
}

// Close 停止分发并关闭 listener；返回后 handler 不会再被调用
func (c *pgChannel) Close() error {
	var err error
	c.stopOnce.Do(func() {
		close(c.stop)
		c.wg.Wait()
		c.finish(nil)
		err = c.listener.Close()
	})
	return err
}

func errOrUnknown(err error) error {
	if err == nil {
		return errors.New("unknown error")
	}
	return err
}
